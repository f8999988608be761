// Package dbtest is the conformance suite run by every db backend.
package dbtest

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/evote-tally/db"
)

// TestWriteTx checks the basic transaction lifecycle.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)
	wTx := database.WriteTx()

	_, err := wTx.Get([]byte("a"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)

	c.Assert(wTx.Commit(), qt.IsNil)
	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)
	c.Assert(wTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)

	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("discarded"), []byte("x")), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("discarded"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)
}

// TestIterate checks prefix iteration order and early stop.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)
	wTx := database.WriteTx()
	for i := range 20 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "it/%02d", i), fmt.Appendf(nil, "v%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("other"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Set([]byte{'i', 't', '/', 0xff}, []byte("ff")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys [][]byte
	err := database.Iterate([]byte("it/"), func(key, value []byte) bool {
		c.Assert(bytes.HasPrefix(key, []byte("it/")), qt.IsTrue)
		keys = append(keys, bytes.Clone(key))
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.HasLen, 21)
	c.Assert(keys[0], qt.DeepEquals, []byte("it/00"))
	c.Assert(keys[19], qt.DeepEquals, []byte("it/19"))
	c.Assert(keys[20], qt.DeepEquals, []byte{'i', 't', '/', 0xff})

	n := 0
	err = database.Iterate([]byte("it/"), func(key, value []byte) bool {
		n++
		return n < 5
	})
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 5)

	// a transaction sees its own pending writes
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("it/20"), []byte("v20")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("it/00")), qt.IsNil)
	var txKeys []string
	err = wTx.Iterate([]byte("it/"), func(key, value []byte) bool {
		txKeys = append(txKeys, string(key))
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(txKeys, qt.HasLen, 21)
	c.Assert(txKeys[0], qt.Equals, "it/01")
	c.Assert(txKeys[19], qt.Equals, "it/20")
}

// TestWriteTxApply checks that Apply merges another transaction.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)
	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("a"), []byte("a")), qt.IsNil)
	other := database.WriteTx()
	c.Assert(other.Set([]byte("b"), []byte("b")), qt.IsNil)

	c.Assert(wTx.Apply(other), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	other.Discard()

	for _, k := range []string{"a", "b"} {
		v, err := database.Get([]byte(k))
		c.Assert(err, qt.IsNil)
		c.Assert(string(v), qt.Equals, k)
	}
}

// TestWriteTxApplyPrefixed checks Apply across a prefixed wrapper.
func TestWriteTxApplyPrefixed(t *testing.T, database, dbWithPrefix db.Database) {
	c := qt.New(t)
	wTxPrefixed := dbWithPrefix.WriteTx()
	c.Assert(wTxPrefixed.Set([]byte("one"), []byte("one")), qt.IsNil)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("two"), []byte("two")), qt.IsNil)
	c.Assert(wTx.Apply(wTxPrefixed), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTxPrefixed.Discard()

	got, err := dbWithPrefix.Get([]byte("one"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte("one"))
	got, err = database.Get([]byte("two"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte("two"))
	_, err = dbWithPrefix.Get([]byte("two"))
	c.Assert(errors.Is(err, db.ErrKeyNotFound), qt.IsTrue)
}

// TestConcurrentWriteTx checks optimistic conflict detection: concurrent
// increments of one counter never lose an update.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)
	key := []byte("counter")
	wTx := database.WriteTx()
	c.Assert(wTx.Set(key, []byte{0}), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	const workers = 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tx := database.WriteTx()
				v, err := tx.Get(key)
				if err != nil {
					tx.Discard()
					t.Error(err)
					return
				}
				if err := tx.Set(key, []byte{v[0] + 1}); err != nil {
					tx.Discard()
					t.Error(err)
					return
				}
				err = tx.Commit()
				if errors.Is(err, db.ErrConflict) {
					continue
				}
				if err != nil {
					t.Error(err)
				}
				return
			}
		}()
	}
	wg.Wait()
	v, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte{workers})
}
