package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocdoni/evote-tally/types"
)

// MockLedger is an in-memory EVoting contract. It counts every read so
// tests can assert that nothing touched the ledger.
type MockLedger struct {
	mu         sync.RWMutex
	ballots    []types.Ballot
	candidates []types.Candidate

	// VoteErrs maps ballot indexes to the error returned by Vote.
	VoteErrs map[uint64]error
	// TotalErr, CandidatesErr and CandidateErrs make the matching reads fail.
	TotalErr      error
	CandidatesErr error
	CandidateErrs map[uint64]error
	// VoteHook, if set, runs before every Vote read.
	VoteHook func(ctx context.Context, index uint64)

	reads atomic.Int64
}

// NewMockLedger returns a ledger with the given candidate names registered
// with ids 1..len(names).
func NewMockLedger(names ...string) *MockLedger {
	l := &MockLedger{
		VoteErrs:      map[uint64]error{},
		CandidateErrs: map[uint64]error{},
	}
	for _, name := range names {
		l.AddCandidate(name)
	}
	return l
}

// AddCandidate registers a candidate and returns its id.
func (l *MockLedger) AddCandidate(name string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uint64(len(l.candidates) + 1)
	l.candidates = append(l.candidates, types.Candidate{ID: id, Name: name})
	return id
}

// CastRaw appends a ballot with the given ciphertext.
func (l *MockLedger) CastRaw(ciphertext string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := uint64(len(l.ballots))
	l.ballots = append(l.ballots, types.Ballot{
		Index:      idx,
		Voter:      DeterministicAddress(idx),
		Ciphertext: ciphertext,
		Timestamp:  uint64(time.Unix(1700000000, 0).Add(time.Duration(idx) * time.Minute).Unix()),
	})
	return idx
}

// Cast encrypts id for AuthorityKey and appends the ballot. Like the
// contract, the registered vote counter of the candidate is bumped even
// though it is never used for tallying.
func (l *MockLedger) Cast(id uint64) uint64 {
	idx := l.CastRaw(EncryptChoice(id))
	l.mu.Lock()
	if id >= 1 && id <= uint64(len(l.candidates)) {
		l.candidates[id-1].RegisteredVoteCount++
	}
	l.mu.Unlock()
	return idx
}

// Reads returns the number of ledger calls served so far.
func (l *MockLedger) Reads() int64 {
	return l.reads.Load()
}

func (l *MockLedger) TotalVotes(ctx context.Context) (uint64, error) {
	l.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if l.TotalErr != nil {
		return 0, l.TotalErr
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.ballots)), nil
}

func (l *MockLedger) Vote(ctx context.Context, index uint64) (*types.Ballot, error) {
	l.reads.Add(1)
	if l.VoteHook != nil {
		l.VoteHook(ctx, index)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err, ok := l.VoteErrs[index]; ok {
		return nil, err
	}
	if index >= uint64(len(l.ballots)) {
		return nil, fmt.Errorf("%w: invalid vote index %d", types.ErrLedgerRead, index)
	}
	b := l.ballots[index]
	return &b, nil
}

func (l *MockLedger) CandidatesCount(ctx context.Context) (uint64, error) {
	l.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if l.CandidatesErr != nil {
		return 0, l.CandidatesErr
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.candidates)), nil
}

func (l *MockLedger) Candidate(ctx context.Context, id uint64) (*types.Candidate, error) {
	l.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err, ok := l.CandidateErrs[id]; ok {
		return nil, err
	}
	if id == 0 || id > uint64(len(l.candidates)) {
		return nil, fmt.Errorf("%w: invalid candidate id %d", types.ErrLedgerRead, id)
	}
	c := l.candidates[id-1]
	return &c, nil
}

func (l *MockLedger) AllCandidates(ctx context.Context) ([]types.Candidate, error) {
	l.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.CandidatesErr != nil {
		return nil, l.CandidatesErr
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]types.Candidate(nil), l.candidates...), nil
}
