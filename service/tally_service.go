package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/storage"
	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/types"
)

// DefaultTallyTimeout bounds a single run when no timeout is configured.
const DefaultTallyTimeout = 10 * time.Minute

// archiveTimeout bounds the upload of a single record.
var archiveTimeout = time.Minute

// Publisher uploads stored records somewhere outside the node.
type Publisher interface {
	Publish(ctx context.Context, rec *storage.TallyRecord) (string, error)
}

// TallyConfig holds the collaborators of a TallyService.
type TallyConfig struct {
	Engine   *tally.Engine
	Storage  *storage.Storage
	Archive  Publisher // optional
	Contract common.Address
	ChainID  uint64
	Timeout  time.Duration
}

// TallyService runs tallies on demand, stores every completed run and
// publishes it to the archive when one is configured.
type TallyService struct {
	engine   *tally.Engine
	storage  *storage.Storage
	archive  Publisher
	contract common.Address
	chainID  uint64
	timeout  time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	uploads sync.WaitGroup
}

// NewTally creates a new TallyService.
func NewTally(cfg *TallyConfig) (*TallyService, error) {
	if cfg == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("%w: tally engine", tally.ErrConfigMissing)
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("%w: storage", tally.ErrConfigMissing)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTallyTimeout
	}
	return &TallyService{
		engine:   cfg.Engine,
		storage:  cfg.Storage,
		archive:  cfg.Archive,
		contract: cfg.Contract,
		chainID:  cfg.ChainID,
		timeout:  timeout,
	}, nil
}

// Start binds the service to ctx: cancelling ctx, or calling Stop, aborts
// the run in progress.
func (ts *TallyService) Start(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ts.ctx, ts.cancel = context.WithCancel(ctx)
	ts.stopped = false
	log.Infow("tally service started", "contract", ts.contract.Hex(), "timeout", ts.timeout.String())
	return nil
}

// Stop aborts the run in progress and waits for pending archive uploads.
// Records stored after Stop are not archived.
func (ts *TallyService) Stop() {
	ts.mu.Lock()
	ts.stopped = true
	if ts.cancel != nil {
		ts.cancel()
		ts.cancel = nil
	}
	ts.mu.Unlock()
	ts.uploads.Wait()
}

// trackUpload registers a pending upload, unless the service is stopping.
func (ts *TallyService) trackUpload() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stopped {
		return false
	}
	ts.uploads.Add(1)
	return true
}

func (ts *TallyService) baseContext() context.Context {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.ctx
}

// Tally performs a run bounded by the configured timeout. Completed runs,
// including runs over an empty ledger, are stored and returned with their
// run id; aborted runs return the engine error and leave no trace in the
// storage.
func (ts *TallyService) Tally(ctx context.Context) (*storage.TallyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, ts.timeout)
	defer cancel()
	if base := ts.baseContext(); base != nil {
		stop := context.AfterFunc(base, cancel)
		defer stop()
	}

	runID := storage.NewRunID()
	started := time.Now()
	log.Infow("tally run started", "runId", runID)
	report, err := ts.engine.Tally(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := storage.NewTallyRecord(runID, started, ts.contract, ts.chainID, report)
	if err != nil {
		return nil, err
	}
	if err := ts.storage.PushTallyRecord(rec); err != nil {
		return nil, fmt.Errorf("store tally record: %w", err)
	}
	log.Infow("tally run stored", "runId", rec.ID, "digest", rec.Digest.String(),
		"took", rec.FinishedAt.Sub(rec.StartedAt).String())

	if ts.archive != nil {
		if !ts.trackUpload() {
			log.Warnw("service stopped, tally record not archived", "runId", rec.ID)
			return rec, nil
		}
		go func() {
			defer ts.uploads.Done()
			actx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if _, err := ts.archive.Publish(actx, rec); err != nil {
				log.Warnw("failed to archive tally record", "runId", rec.ID, "error", err)
			}
		}()
	}
	return rec, nil
}

// Status returns the progress of the current or last run.
func (ts *TallyService) Status() tally.Status {
	return ts.engine.Status()
}

// TallyRecords returns the stored runs, newest first.
func (ts *TallyService) TallyRecords() ([]*storage.TallyRecord, error) {
	return ts.storage.TallyRecords()
}

// TallyRecord returns the stored run with the given id.
func (ts *TallyService) TallyRecord(id string) (*storage.TallyRecord, error) {
	return ts.storage.TallyRecord(id)
}

// VoteSummary returns the metadata of the first limit ballots.
func (ts *TallyService) VoteSummary(ctx context.Context, limit int) (*tally.VoteSummary, error) {
	return ts.engine.VoteSummary(ctx, limit)
}

// ListCandidates returns the candidate registry.
func (ts *TallyService) ListCandidates(ctx context.Context) ([]types.Candidate, error) {
	return ts.engine.ListCandidates(ctx)
}
