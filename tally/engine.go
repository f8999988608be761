// Package tally implements the tallying engine: it reads encrypted ballots
// from the ledger, decrypts them with the authority key, counts the
// selections and joins the counts with the candidate registry.
package tally

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vocdoni/evote-tally/crypto/authority"
	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/types"
)

const (
	// DefaultSummaryLimit is the number of ballots returned by VoteSummary
	// when no limit is given.
	DefaultSummaryLimit = 10
	// MaxSummaryLimit caps the VoteSummary limit.
	MaxSummaryLimit = 1000
	// DefaultFetchWorkers is the number of concurrent ledger readers.
	DefaultFetchWorkers = 4

	progressLogInterval = 5 * time.Second
)

// Ledger is the read-only view of the EVoting contract used by the engine.
// Vote must return an error wrapping types.ErrLedgerUnavailable when the
// ledger cannot be reached at all; any other error is treated as a failed
// read of that single ballot.
type Ledger interface {
	TotalVotes(ctx context.Context) (uint64, error)
	Vote(ctx context.Context, index uint64) (*types.Ballot, error)
	CandidatesCount(ctx context.Context) (uint64, error)
	Candidate(ctx context.Context, id uint64) (*types.Candidate, error)
	AllCandidates(ctx context.Context) ([]types.Candidate, error)
}

// Config holds the engine collaborators and tuning knobs.
type Config struct {
	Ledger       Ledger
	KeyLoader    authority.KeyLoader
	Workers      int
	FetchWorkers int
}

// VoteSummary is the audit view of the first ballots on the ledger.
type VoteSummary struct {
	TotalVotes uint64                 `json:"totalVotes"`
	Ballots    []types.BallotMetadata `json:"votesSample"`
}

// Engine runs tallies. A single Engine executes at most one run at a time.
type Engine struct {
	ledger    Ledger
	keys      authority.KeyLoader
	workers   int
	fetchers  int
	running   atomic.Bool
	processed atomic.Uint64

	mu     sync.RWMutex
	status Status
}

// New validates cfg and returns an idle engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger", ErrConfigMissing)
	}
	if cfg.KeyLoader == nil {
		return nil, fmt.Errorf("%w: key loader", ErrConfigMissing)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fetchers := cfg.FetchWorkers
	if fetchers <= 0 {
		fetchers = DefaultFetchWorkers
	}
	return &Engine{
		ledger:   cfg.Ledger,
		keys:     cfg.KeyLoader,
		workers:  workers,
		fetchers: fetchers,
		status:   Status{Phase: PhaseIdle},
	}, nil
}

// Tally performs a complete run. It returns either a report or an
// *AbortedError, never both. The key is loaded on every run and released
// when the run ends.
func (e *Engine) Tally(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrTallyInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	e.processed.Store(0)
	e.setStatus(Status{Phase: PhaseKeyLoading, StartedAt: start})

	key, err := e.keys.LoadPrivateKey()
	if err != nil {
		return nil, e.abort(ctx, ReasonKeyUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.abort(ctx, ReasonCanceled, err)
	}

	e.setPhase(PhaseFetching)
	total, err := e.ledger.TotalVotes(ctx)
	if err != nil {
		return nil, e.abort(ctx, ReasonLedgerUnavailable, fmt.Errorf("read total votes: %w", err))
	}
	if total == 0 {
		log.Infow("no ballots on ledger, nothing to tally")
		e.setPhase(PhaseDone)
		return EmptyReport(), nil
	}

	e.mu.Lock()
	e.status.Phase = PhaseDecrypting
	e.status.Total = total
	e.mu.Unlock()
	log.Infow("decrypting ballots", "total", total, "workers", e.workers, "fetchers", e.fetchers)

	state, err := e.decryptAll(ctx, key, total)
	if err != nil {
		return nil, e.abort(ctx, ReasonLedgerUnavailable, err)
	}

	e.setPhase(PhaseCompiling)
	registry, err := e.registry(ctx)
	if err != nil {
		return nil, e.abort(ctx, ReasonRegistryUnavailable, err)
	}
	report := Compile(state, registry)
	if gap := report.ReconciliationGap(); gap > 0 {
		log.Warnw("ballots selected candidates missing from the registry",
			"ballots", gap, "candidates", len(registry))
	}

	e.setPhase(PhaseDone)
	log.Infow("tally completed",
		"processed", report.TotalBallotsProcessed,
		"decryptionErrors", report.DecryptionErrors,
		"counted", report.CountedVotes(),
		"took", time.Since(start).String())
	return report, nil
}

type fetched struct {
	index  uint64
	ballot *types.Ballot
	err    error
}

// decryptAll reads ballots 0..total-1 with a pool of fetchers and feeds them
// to a pool of decrypt workers. Each worker owns its accumulator; they are
// merged once the worker has drained the queue. Only a ledger outage or a
// cancellation returns an error.
func (e *Engine) decryptAll(ctx context.Context, key *authority.KeyMaterial, total uint64) (*State, error) {
	g, gctx := errgroup.WithContext(ctx)
	indexes := make(chan uint64)
	ballots := make(chan fetched, 2*e.workers)

	g.Go(func() error {
		defer close(indexes)
		for i := uint64(0); i < total; i++ {
			select {
			case indexes <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var fetchWG sync.WaitGroup
	for range e.fetchers {
		fetchWG.Add(1)
		g.Go(func() error {
			defer fetchWG.Done()
			for idx := range indexes {
				ballot, err := e.ledger.Vote(gctx, idx)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if errors.Is(err, types.ErrLedgerUnavailable) {
						return fmt.Errorf("read ballot %d: %w", idx, err)
					}
				} else if ballot == nil {
					err = fmt.Errorf("%w: ballot %d missing", types.ErrLedgerRead, idx)
				}
				select {
				case ballots <- fetched{index: idx, ballot: ballot, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		fetchWG.Wait()
		close(ballots)
		return nil
	})

	acc := NewAccumulator()
	for range e.workers {
		g.Go(func() error {
			local := NewAccumulator()
			for b := range ballots {
				if err := gctx.Err(); err != nil {
					return err
				}
				var outcome Outcome
				if b.err != nil {
					log.Debugw("ballot could not be read", "index", b.index)
					outcome = Failed(b.err)
				} else {
					outcome = Decrypt(b.ballot.Ciphertext, key)
					if !outcome.IsSelected() {
						log.Debugw("ballot could not be decrypted", "index", b.index)
					}
				}
				local.Add(outcome)
				e.processed.Add(1)
			}
			acc.Merge(local)
			return nil
		})
	}

	stopMonitor := e.monitorProgress(gctx, total)
	err := g.Wait()
	stopMonitor()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return acc.State(), nil
}

func (e *Engine) monitorProgress(ctx context.Context, total uint64) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(progressLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Monitor("tally progress", map[string]any{
					"processed": e.processed.Load(),
					"total":     total,
				})
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

const registryPrealloc = 256

// registry reads the whole candidate registry, ids 1..CandidatesCount. Any
// failure is returned so that no partial report is ever produced.
func (e *Engine) registry(ctx context.Context) ([]types.Candidate, error) {
	count, err := e.ledger.CandidatesCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("read candidates count: %w", err)
	}
	// count comes from the ledger, so it only bounds the loop
	candidates := make([]types.Candidate, 0, min(count, registryPrealloc))
	for id := uint64(1); id <= count; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := e.ledger.Candidate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read candidate %d: %w", id, err)
		}
		if c == nil {
			return nil, fmt.Errorf("read candidate %d: %w: empty response", id, types.ErrLedgerRead)
		}
		candidates = append(candidates, *c)
	}
	return candidates, nil
}

// abort records the failure and builds the returned error. A cancelled
// context always wins over the reason of the failing stage.
func (e *Engine) abort(ctx context.Context, reason AbortReason, err error) error {
	if ctx.Err() != nil {
		reason = ReasonCanceled
		if !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}
	aerr := &AbortedError{Reason: reason, Err: err}
	e.mu.Lock()
	e.status.Phase = PhaseAborted
	e.status.Reason = reason
	e.mu.Unlock()
	log.Warnw("tally aborted", "reason", string(reason), "error", err.Error())
	return aerr
}

// VoteSummary returns the metadata of the first limit ballots, without
// decrypting anything. limit <= 0 means DefaultSummaryLimit.
func (e *Engine) VoteSummary(ctx context.Context, limit int) (*VoteSummary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	limit = min(limit, MaxSummaryLimit)
	total, err := e.ledger.TotalVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("read total votes: %w", err)
	}
	n := min(uint64(limit), total)
	summary := &VoteSummary{
		TotalVotes: total,
		Ballots:    make([]types.BallotMetadata, 0, n),
	}
	for i := uint64(0); i < n; i++ {
		b, err := e.ledger.Vote(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("read ballot %d: %w", i, err)
		}
		summary.Ballots = append(summary.Ballots, b.Metadata())
	}
	return summary, nil
}

// ListCandidates passes the registry through unmodified.
func (e *Engine) ListCandidates(ctx context.Context) ([]types.Candidate, error) {
	return e.ledger.AllCandidates(ctx)
}
