package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/evote-tally/db/metadb"
	"github.com/vocdoni/evote-tally/internal/testutil"
	"github.com/vocdoni/evote-tally/storage"
	"github.com/vocdoni/evote-tally/tally"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, rec *storage.TallyRecord) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, rec.ID)
	return "tally-" + rec.ID + ".json", nil
}

func (p *fakePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func newTallyService(c *qt.C, ledger tally.Ledger, keys *testutil.StaticKeyLoader, pub Publisher) *TallyService {
	engine, err := tally.New(tally.Config{Ledger: ledger, KeyLoader: keys, Workers: 2, FetchWorkers: 2})
	c.Assert(err, qt.IsNil)
	st := storage.New(metadb.NewTest(c))
	ts, err := NewTally(&TallyConfig{
		Engine:   engine,
		Storage:  st,
		Archive:  pub,
		Contract: testutil.DeterministicAddress(42),
		ChainID:  1337,
		Timeout:  time.Minute,
	})
	c.Assert(err, qt.IsNil)
	return ts
}

func TestTallyServiceStoresRuns(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice", "Bob")
	ledger.Cast(1)
	ledger.Cast(2)
	ledger.Cast(2)
	pub := &fakePublisher{}
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Key: testutil.AuthorityKeyMaterial()}, pub)
	c.Assert(ts.Start(context.Background()), qt.IsNil)

	rec, err := ts.Tally(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(rec.ID, qt.Not(qt.Equals), "")
	c.Assert(rec.Report.PerCandidate, qt.DeepEquals, []tally.CandidateResult{
		{CandidateID: 1, Name: "Alice", Votes: 1},
		{CandidateID: 2, Name: "Bob", Votes: 2},
	})
	c.Assert(rec.Contract, qt.Equals, testutil.DeterministicAddress(42))
	c.Assert(rec.ChainID, qt.Equals, uint64(1337))
	c.Assert(rec.VerifyDigest(), qt.IsTrue)

	stored, err := ts.TallyRecord(rec.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Digest, qt.DeepEquals, rec.Digest)

	ts.Stop()
	c.Assert(pub.ids(), qt.DeepEquals, []string{rec.ID})

	records, err := ts.TallyRecords()
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)
	c.Assert(ts.Status().Phase, qt.Equals, tally.PhaseDone)
}

func TestTallyServiceAbortedRunsAreNotStored(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice")
	ledger.Cast(1)
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Err: errors.New("no key")}, nil)

	_, err := ts.Tally(context.Background())
	reason, ok := tally.AbortReasonOf(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(reason, qt.Equals, tally.ReasonKeyUnavailable)

	records, err := ts.TallyRecords()
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 0)
}

func TestTallyServiceArchiveFailureDoesNotFailRun(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice")
	pub := &fakePublisher{err: errors.New("bucket gone")}
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Key: testutil.AuthorityKeyMaterial()}, pub)

	rec, err := ts.Tally(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Report.NoBallots, qt.IsTrue)
	ts.Stop()

	latest, err := ts.storage.LatestTallyRecord()
	c.Assert(err, qt.IsNil)
	c.Assert(latest.ID, qt.Equals, rec.ID)
}

func TestTallyServiceStopCancelsRun(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice")
	for range 20 {
		ledger.Cast(1)
	}
	started := make(chan struct{})
	var once sync.Once
	ledger.VoteHook = func(ctx context.Context, index uint64) {
		once.Do(func() { close(started) })
		<-ctx.Done()
	}
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Key: testutil.AuthorityKeyMaterial()}, nil)
	c.Assert(ts.Start(context.Background()), qt.IsNil)
	c.Assert(ts.Start(context.Background()), qt.ErrorMatches, "service already running")

	errc := make(chan error, 1)
	go func() {
		_, err := ts.Tally(context.Background())
		errc <- err
	}()
	<-started

	// a concurrent run is rejected while the first one is in flight
	_, err := ts.Tally(context.Background())
	c.Assert(err, qt.ErrorIs, tally.ErrTallyInProgress)

	ts.Stop()
	err = <-errc
	reason, ok := tally.AbortReasonOf(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(reason, qt.Equals, tally.ReasonCanceled)
}

func TestTallyServiceSkipsArchiveAfterStop(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice")
	ledger.Cast(1)
	pub := &fakePublisher{}
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Key: testutil.AuthorityKeyMaterial()}, pub)
	ts.Stop()

	rec, err := ts.Tally(context.Background())
	c.Assert(err, qt.IsNil)
	ts.Stop()
	c.Assert(pub.ids(), qt.HasLen, 0)
	_, err = ts.TallyRecord(rec.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(ts.Start(context.Background()), qt.IsNil)
	rec, err = ts.Tally(context.Background())
	c.Assert(err, qt.IsNil)
	ts.Stop()
	c.Assert(pub.ids(), qt.DeepEquals, []string{rec.ID})
}

func TestTallyServiceTimeout(t *testing.T) {
	c := qt.New(t)
	ledger := testutil.NewMockLedger("Alice")
	ledger.Cast(1)
	ledger.VoteHook = func(ctx context.Context, _ uint64) { <-ctx.Done() }
	ts := newTallyService(c, ledger, &testutil.StaticKeyLoader{Key: testutil.AuthorityKeyMaterial()}, nil)
	ts.timeout = 50 * time.Millisecond

	_, err := ts.Tally(context.Background())
	reason, _ := tally.AbortReasonOf(err)
	c.Assert(reason, qt.Equals, tally.ReasonCanceled)
	c.Assert(errors.Is(err, context.DeadlineExceeded), qt.IsTrue)
}

func TestNewTallyRequiresCollaborators(t *testing.T) {
	c := qt.New(t)
	_, err := NewTally(nil)
	c.Assert(err, qt.ErrorIs, tally.ErrConfigMissing)
	engine, err := tally.New(tally.Config{Ledger: testutil.NewMockLedger(), KeyLoader: &testutil.StaticKeyLoader{}})
	c.Assert(err, qt.IsNil)
	_, err = NewTally(&TallyConfig{Engine: engine})
	c.Assert(err, qt.ErrorIs, tally.ErrConfigMissing)
}
