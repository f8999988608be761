package storage

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/evote-tally/db/metadb"
	"github.com/vocdoni/evote-tally/internal/testutil"
	"github.com/vocdoni/evote-tally/tally"
)

func testReport(votes ...uint64) *tally.Report {
	r := &tally.Report{Message: tally.MessageCompleted, PerCandidate: []tally.CandidateResult{}}
	for i, v := range votes {
		r.PerCandidate = append(r.PerCandidate, tally.CandidateResult{
			CandidateID: uint64(i + 1),
			Name:        testutil.SampleCandidateNames[i],
			Votes:       v,
		})
		r.TotalBallotsProcessed += v
	}
	return r
}

func TestTallyRecords(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))
	defer st.Close()

	_, err := st.LatestTallyRecord()
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	_, err = st.TallyRecord("missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	records, err := st.TallyRecords()
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 0)

	contract := testutil.DeterministicAddress(1)
	var ids []string
	for i := range 3 {
		rec, err := NewTallyRecord("", time.Now().Add(-time.Second), contract, 1337, testReport(uint64(i), 2))
		c.Assert(err, qt.IsNil)
		c.Assert(st.PushTallyRecord(rec), qt.IsNil)
		c.Assert(rec.ID, qt.Not(qt.Equals), "")
		ids = append(ids, rec.ID)
		// uuid v7 ordering has millisecond resolution
		time.Sleep(2 * time.Millisecond)
	}

	latest, err := st.LatestTallyRecord()
	c.Assert(err, qt.IsNil)
	c.Assert(latest.ID, qt.Equals, ids[2])
	c.Assert(latest.Report.PerCandidate[0].Votes, qt.Equals, uint64(2))

	records, err = st.TallyRecords()
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 3)
	for i, rec := range records {
		c.Assert(rec.ID, qt.Equals, ids[2-i])
		c.Assert(rec.Contract, qt.Equals, contract)
		c.Assert(rec.ChainID, qt.Equals, uint64(1337))
		c.Assert(rec.VerifyDigest(), qt.IsTrue)
	}

	c.Run("duplicate id", func(c *qt.C) {
		dup, err := NewTallyRecord(ids[0], time.Now(), contract, 1337, testReport(9))
		c.Assert(err, qt.IsNil)
		c.Assert(st.PushTallyRecord(dup), qt.ErrorIs, ErrKeyAlreadyExists)
		stored, err := st.TallyRecord(ids[0])
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Report.PerCandidate, qt.HasLen, 2)
	})

	c.Run("invalid record", func(c *qt.C) {
		c.Assert(st.PushTallyRecord(nil), qt.IsNotNil)
		c.Assert(st.PushTallyRecord(&TallyRecord{}), qt.IsNotNil)
		_, err := NewTallyRecord("", time.Now(), contract, 1, nil)
		c.Assert(err, qt.IsNotNil)
	})
}

func TestTallyRecordPersistence(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	st := New(database)

	started := time.Date(2026, 5, 4, 12, 0, 0, 987654321, time.UTC)
	rec, err := NewTallyRecord(NewRunID(), started, common.Address{0x01}, 1, testReport(4, 1, 0))
	c.Assert(err, qt.IsNil)
	c.Assert(st.PushTallyRecord(rec), qt.IsNil)

	// a fresh storage over the same database reads from disk, not the cache
	fresh := New(database)
	got, err := fresh.TallyRecord(rec.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.StartedAt.Equal(started), qt.IsTrue)
	c.Assert(got.FinishedAt.Equal(rec.FinishedAt), qt.IsTrue)
	c.Assert(got.Report, qt.DeepEquals, rec.Report)
	c.Assert(got.Digest, qt.DeepEquals, rec.Digest)
	c.Assert(got.Summary().TotalBallotsProcessed, qt.Equals, uint64(5))
	st.Close()
}

func TestReportDigest(t *testing.T) {
	c := qt.New(t)
	a, err := ReportDigest(testReport(1, 2, 3))
	c.Assert(err, qt.IsNil)
	c.Assert(a, qt.HasLen, 32)
	b, err := ReportDigest(testReport(1, 2, 3))
	c.Assert(err, qt.IsNil)
	c.Assert(a, qt.DeepEquals, b)
	other, err := ReportDigest(testReport(1, 2, 4))
	c.Assert(err, qt.IsNil)
	c.Assert(a.Equal(other), qt.IsFalse)

	rec := &TallyRecord{Report: testReport(1), Digest: a}
	c.Assert(rec.VerifyDigest(), qt.IsFalse)
}
