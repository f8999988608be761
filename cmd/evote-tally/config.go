package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vocdoni/evote-tally/config"
	"github.com/vocdoni/evote-tally/db/metadb"
	"github.com/vocdoni/evote-tally/internal"
	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/tally"
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Web3    Web3Config
	Key     KeyConfig
	Tally   TallyConfig
	API     APIConfig
	DB      DBConfig
	S3      S3Config
	Log     LogConfig
	Datadir string
}

// Web3Config holds the ledger configuration
type Web3Config struct {
	Network  string   `mapstructure:"network"`
	Rpc      []string `mapstructure:"rpc"`
	Contract string   `mapstructure:"contract"`
}

// KeyConfig locates the authority private key
type KeyConfig struct {
	Path     string `mapstructure:"path"`
	Password string `mapstructure:"password"`
}

// TallyConfig holds the engine tuning knobs
type TallyConfig struct {
	Workers  int           `mapstructure:"workers"`
	Fetchers int           `mapstructure:"fetchers"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DBConfig selects the storage backend
type DBConfig struct {
	Type string `mapstructure:"type"`
	URI  string `mapstructure:"uri"`
}

// S3Config holds the report archive configuration
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"key"`
	SecretKey string `mapstructure:"secret"`
	Space     string `mapstructure:"space"`
	Bucket    string `mapstructure:"bucket"`
	Public    bool   `mapstructure:"public"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// newFlagSet declares every flag with its default value.
func newFlagSet(defaultDatadir string) *flag.FlagSet {
	fs := flag.NewFlagSet("evote-tally", flag.ContinueOnError)
	fs.StringP("web3.network", "n", config.DefaultNetwork,
		fmt.Sprintf("network used to pick RPC endpoints when none are given %v", config.AvailableNetworks()))
	fs.StringSliceP("web3.rpc", "w", []string{}, "web3 rpc endpoint(s), comma-separated")
	fs.StringP("web3.contract", "c", "", "EVoting contract address (required)")
	fs.StringP("key.path", "k", config.DefaultKeyPath, "authority private key PEM file")
	fs.String("key.password", "", "password of an encrypted PKCS#8 key")
	fs.Int("tally.workers", 0, "decrypt workers (0 means one per CPU)")
	fs.Int("tally.fetchers", tally.DefaultFetchWorkers, "concurrent ledger readers")
	fs.Duration("tally.timeout", config.DefaultTallyTimeout, "maximum duration of a tally run")
	fs.StringP("api.host", "a", config.DefaultAPIHost, "API host")
	fs.IntP("api.port", "p", config.DefaultAPIPort, "API port")
	fs.String("db.type", config.DefaultDBType, "storage backend (pebble, leveldb, mongodb, inmemory)")
	fs.String("db.uri", "", "mongodb connection URI")
	fs.Bool("s3.enabled", false, "archive every tally record to S3")
	fs.String("s3.host", "ams3.digitaloceanspaces.com", "S3 endpoint host")
	fs.String("s3.region", "us-east-1", "S3 region")
	fs.String("s3.key", "", "S3 access key")
	fs.String("s3.secret", "", "S3 secret key")
	fs.String("s3.space", "evote", "S3 bucket (space) name")
	fs.String("s3.bucket", "tallies", "folder inside the space")
	fs.Bool("s3.public", false, "publish archived records with a public-read ACL")
	fs.StringP("log.level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", config.DefaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("datadir", "d", defaultDatadir, "data directory for the database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "evote-tally v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: evote-tally [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, EVOTE_WEB3_CONTRACT or EVOTE_KEY_PATH\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Tally a contract deployed on a local node\n")
		fmt.Fprintf(os.Stderr, "  evote-tally --web3.contract=0x123...\n\n")
		fmt.Fprintf(os.Stderr, "  # Use custom RPC endpoints and an encrypted key\n")
		fmt.Fprintf(os.Stderr, "  evote-tally --web3.contract=0x123... --web3.rpc=https://rpc1.com,https://rpc2.com --key.password=secret\n")
	}
	fs.SortFlags = false
	return fs
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, config.DefaultDatadir)

	v.SetDefault("web3.network", config.DefaultNetwork)
	v.SetDefault("web3.rpc", []string{})
	v.SetDefault("key.path", config.DefaultKeyPath)
	v.SetDefault("tally.fetchers", tally.DefaultFetchWorkers)
	v.SetDefault("tally.timeout", config.DefaultTallyTimeout)
	v.SetDefault("api.host", config.DefaultAPIHost)
	v.SetDefault("api.port", config.DefaultAPIPort)
	v.SetDefault("db.type", config.DefaultDBType)
	v.SetDefault("log.level", config.DefaultLogLevel)
	v.SetDefault("log.output", config.DefaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	fs := newFlagSet(defaultDatadirPath)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("EVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration. Missing settings wrap
// tally.ErrConfigMissing.
func validateConfig(cfg *Config) error {
	if cfg.Web3.Contract == "" {
		return fmt.Errorf("%w: contract address (use --web3.contract or EVOTE_WEB3_CONTRACT)", tally.ErrConfigMissing)
	}
	if !common.IsHexAddress(cfg.Web3.Contract) {
		return fmt.Errorf("invalid contract address %q", cfg.Web3.Contract)
	}
	if cfg.Key.Path == "" {
		return fmt.Errorf("%w: key path (use --key.path or EVOTE_KEY_PATH)", tally.ErrConfigMissing)
	}
	if len(cfg.Web3.Rpc) == 0 {
		if _, ok := config.Network(cfg.Web3.Network); !ok {
			return fmt.Errorf("invalid network %s, available networks: %v", cfg.Web3.Network, config.AvailableNetworks())
		}
	}
	if !metadb.ValidType(cfg.DB.Type) {
		return fmt.Errorf("invalid db type %q", cfg.DB.Type)
	}
	if cfg.Tally.Workers < 0 || cfg.Tally.Fetchers < 0 {
		return fmt.Errorf("tally workers and fetchers must not be negative")
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", cfg.API.Port)
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if cfg.S3.Enabled && (cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "") {
		return fmt.Errorf("%w: s3 access and secret keys", tally.ErrConfigMissing)
	}
	return nil
}

// rpcEndpoints returns the configured endpoints, or the ones of the
// configured network.
func rpcEndpoints(cfg *Config) []string {
	if len(cfg.Web3.Rpc) > 0 {
		return cfg.Web3.Rpc
	}
	n, _ := config.Network(cfg.Web3.Network)
	return n.RPC
}
