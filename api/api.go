// Package api exposes the tally service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/storage"
	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/types"
)

const shutdownTimeout = 10 * time.Second

// Tallier runs tallies and serves their history.
type Tallier interface {
	Tally(ctx context.Context) (*storage.TallyRecord, error)
	Status() tally.Status
	TallyRecords() ([]*storage.TallyRecord, error)
	TallyRecord(id string) (*storage.TallyRecord, error)
	VoteSummary(ctx context.Context, limit int) (*tally.VoteSummary, error)
	ListCandidates(ctx context.Context) ([]types.Candidate, error)
}

// LedgerHealth reports the state of the ledger connection.
type LedgerHealth interface {
	Providers() []string
	NetworkID() uint64
	// Connected reports whether the ledger answers and its latest block.
	Connected(ctx context.Context) (bool, uint64)
	VotingStatus(ctx context.Context) (*types.VotingStatus, error)
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Tallier  Tallier
	Ledger   LedgerHealth
	Contract common.Address
	// TallyTimeout bounds the POST /tally handler. Zero means the handler
	// waits for the run to finish.
	TallyTimeout time.Duration
}

// API type represents the API HTTP server.
type API struct {
	router       *chi.Mux
	server       *http.Server
	addr         net.Addr
	tallier      Tallier
	ledger       LedgerHealth
	contract     common.Address
	tallyTimeout time.Duration
}

// New creates a new API instance with the given configuration and starts
// serving on host:port. The server is shut down when ctx is done.
func New(ctx context.Context, conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", conf.Host, conf.Port, err)
	}
	a.addr = listener.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			log.Warnw("failed to shut down API server", "error", err)
		}
	}()
	return a, nil
}

func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Tallier == nil {
		return nil, fmt.Errorf("missing tally service")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger")
	}
	a := &API{
		tallier:      conf.Tallier,
		ledger:       conf.Ledger,
		contract:     conf.Contract,
		tallyTimeout: conf.TallyTimeout,
	}
	a.initRouter()
	return a, nil
}

// Addr returns the address the server listens on, or nil if it is not
// serving.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)
	// ledger endpoints
	log.Infow("register handler", "endpoint", CandidatesEndpoint, "method", "GET")
	a.router.Get(CandidatesEndpoint, a.candidates)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "GET", "parameters", VotesLimitParam)
	a.router.Get(VotesEndpoint, a.votes)
	// tally endpoints
	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "POST")
	a.router.Post(TallyEndpoint, a.tally)
	log.Infow("register handler", "endpoint", TallyStatusEndpoint, "method", "GET")
	a.router.Get(TallyStatusEndpoint, a.tallyStatus)
	log.Infow("register handler", "endpoint", TalliesEndpoint, "method", "GET")
	a.router.Get(TalliesEndpoint, a.tallies)
	log.Infow("register handler", "endpoint", TallyRecordEndpoint, "method", "GET")
	a.router.Get(TallyRecordEndpoint, a.tallyRecord)

	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Withf("%s %s", r.Method, r.URL.Path).Write(w)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(requestLogger(DefaultLoggingConfig()))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))

	a.registerHandlers()
}
