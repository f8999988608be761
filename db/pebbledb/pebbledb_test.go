package pebbledb

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/db/internal/dbtest"
	"github.com/vocdoni/evote-tally/db/prefixeddb"
)

func newTestDB(t *testing.T) *PebbleDB {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, newTestDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := newTestDB(t)
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, []byte("one")))
}

// NOTE: pebble.Batch doesn't detect conflicts, so TestConcurrentWriteTx is
// not run against this backend.

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	database, err := New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("key"), []byte("value")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNotNil)
	wTx.Discard()
	c.Assert(database.Compact(), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	database, err = New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	defer database.Close()
	v, err := database.Get([]byte("key"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(v), qt.Equals, "value")
}
