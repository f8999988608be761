package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/vocdoni/evote-tally/archive"
	"github.com/vocdoni/evote-tally/config"
	"github.com/vocdoni/evote-tally/crypto/authority"
	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/db/metadb"
	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/service"
	"github.com/vocdoni/evote-tally/storage"
	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/web3"
)

// mongoDatabase is the database name used with the mongodb backend.
const mongoDatabase = "evotetally"

// Services holds all the running services
type Services struct {
	Contracts *web3.Contracts
	Storage   *storage.Storage
	Tally     *service.TallyService
	API       *service.APIService
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting evote-tally", "version", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		shutdownServices(services)
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// openDatabase opens the configured storage backend.
func openDatabase(cfg *Config) (db.Database, error) {
	opts := db.Options{Path: filepath.Join(cfg.Datadir, "db"), URI: cfg.DB.URI}
	if cfg.DB.Type == db.TypeMongo {
		opts.Path = mongoDatabase
	}
	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DB.Type)
	return metadb.Open(cfg.DB.Type, opts)
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}
	contract := common.HexToAddress(cfg.Web3.Contract)

	database, err := openDatabase(cfg)
	if err != nil {
		return services, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(database)

	log.Info("initializing web3 contracts")
	endpoints := rpcEndpoints(cfg)
	services.Contracts, err = web3.New(endpoints, contract)
	if err != nil {
		return services, fmt.Errorf("failed to initialize web3 client: %w", err)
	}
	if n, ok := config.Network(cfg.Web3.Network); ok && len(cfg.Web3.Rpc) == 0 && n.ChainID != services.Contracts.ChainID {
		log.Warnw("endpoint chain id does not match the configured network",
			"network", cfg.Web3.Network, "expected", n.ChainID, "got", services.Contracts.ChainID)
	}
	log.Infow("contracts initialized",
		"chainId", services.Contracts.ChainID,
		"contract", contract.Hex(),
		"endpoints", len(endpoints))

	engine, err := tally.New(tally.Config{
		Ledger:       services.Contracts,
		KeyLoader:    &authority.FileKeyLoader{Path: cfg.Key.Path, Password: cfg.Key.Password},
		Workers:      cfg.Tally.Workers,
		FetchWorkers: cfg.Tally.Fetchers,
	})
	if err != nil {
		return services, fmt.Errorf("failed to create tally engine: %w", err)
	}

	var publisher service.Publisher
	if cfg.S3.Enabled {
		a, err := archive.New(&archive.Config{
			Enabled:    true,
			HostBase:   cfg.S3.Host,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Space:      cfg.S3.Space,
			Bucket:     cfg.S3.Bucket,
			PublicRead: cfg.S3.Public,
		})
		if err != nil {
			return services, fmt.Errorf("failed to create report archive: %w", err)
		}
		if err := a.Ping(ctx); err != nil {
			log.Warnw("report archive not reachable, uploads may fail", "error", err)
		}
		publisher = a
	}

	services.Tally, err = service.NewTally(&service.TallyConfig{
		Engine:   engine,
		Storage:  services.Storage,
		Archive:  publisher,
		Contract: contract,
		ChainID:  services.Contracts.ChainID,
		Timeout:  cfg.Tally.Timeout,
	})
	if err != nil {
		return services, fmt.Errorf("failed to create tally service: %w", err)
	}
	if err := services.Tally.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start tally service: %w", err)
	}

	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = service.NewAPI(services.Tally, services.Contracts, contract, cfg.API.Host, cfg.API.Port, false)
	services.API.SetTallyTimeout(cfg.Tally.Timeout)
	if err := services.API.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start API service: %w", err)
	}

	log.Info("evote-tally is running, ready to tally votes")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.API != nil {
		services.API.Stop()
	}
	if services.Tally != nil {
		services.Tally.Stop()
	}
	if services.Contracts != nil {
		services.Contracts.Close()
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
}
