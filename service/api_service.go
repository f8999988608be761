package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/evote-tally/api"
	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/web3"
)

var (
	_ api.Tallier      = (*TallyService)(nil)
	_ api.LedgerHealth = (*web3.Contracts)(nil)
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	API          *api.API
	tallier      api.Tallier
	ledger       api.LedgerHealth
	contract     common.Address
	mu           sync.Mutex
	cancel       context.CancelFunc
	host         string
	port         int
	tallyTimeout time.Duration
}

// NewAPI creates a new APIService instance.
func NewAPI(tallier api.Tallier, ledger api.LedgerHealth, contract common.Address,
	host string, port int, disableLogging bool,
) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{
		tallier:  tallier,
		ledger:   ledger,
		contract: contract,
		host:     host,
		port:     port,
	}
}

// SetTallyTimeout bounds the POST /tally handler.
func (as *APIService) SetTallyTimeout(timeout time.Duration) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.tallyTimeout = timeout
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	var sctx context.Context
	sctx, as.cancel = context.WithCancel(ctx)

	var err error
	as.API, err = api.New(sctx, &api.APIConfig{
		Host:         as.host,
		Port:         as.port,
		Tallier:      as.tallier,
		Ledger:       as.ledger,
		Contract:     as.contract,
		TallyTimeout: as.tallyTimeout,
	})
	if err != nil {
		as.cancel()
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// HostPort returns the host and port of the API server. Once started, the
// port is the one actually bound, which differs from the configured one
// when that was 0.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.API != nil {
		if tcp, ok := as.API.Addr().(*net.TCPAddr); ok {
			return as.host, tcp.Port
		}
	}
	return as.host, as.port
}
