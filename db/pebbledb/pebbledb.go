// Package pebbledb implements db.Database on top of CockroachDB's Pebble.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/log"
)

// PebbleDB is a db.Database stored in a local pebble directory.
type PebbleDB struct {
	db     *pebble.DB
	closed atomic.Bool
}

var _ db.Database = (*PebbleDB)(nil)

// pebbleLogger forwards pebble internal logs to the service logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...any)  { log.Debugf("pebble: "+format, args...) }
func (pebbleLogger) Errorf(format string, args ...any) { log.Warnf("pebble: "+format, args...) }
func (pebbleLogger) Fatalf(format string, args ...any) { log.Fatalf("pebble: "+format, args...) }

// New opens (or creates) the database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebble: no path provided")
	}
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, err
	}
	pdb, err := pebble.Open(opts.Path, &pebble.Options{Logger: pebbleLogger{}})
	if err != nil {
		return nil, fmt.Errorf("pebble: cannot open %s: %w", opts.Path, err)
	}
	return &PebbleDB{db: pdb}, nil
}

// Close closes the database, further calls are no-ops.
func (d *PebbleDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}

func (d *PebbleDB) Compact() error {
	first, last := []byte{}, []byte{}
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	if iter.First() {
		first = bytes.Clone(iter.Key())
	}
	if iter.Last() {
		last = bytes.Clone(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if len(last) == 0 {
		return nil
	}
	return d.db.Compact(first, append(last, 0), true)
}

func get(reader pebble.Reader, key []byte) ([]byte, error) {
	value, closer, err := reader.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func iterate(reader pebble.Reader, prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: db.PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Close()
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	return get(d.db, key)
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterate(d.db, prefix, callback)
}

// WriteTx returns an indexed batch. Pebble batches do not detect
// conflicts: concurrent transactions on the same keys are last writer wins.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

// WriteTx is a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
	done  bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return get(tx.batch, key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterate(tx.batch, prefix, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

// Apply merges the batch of other, which must be a pebble transaction,
// possibly wrapped.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherTx, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T to pebble tx", other)
	}
	return tx.batch.Apply(otherTx.batch, nil)
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("pebble: tx already committed or discarded")
	}
	tx.done = true
	if err := tx.batch.Commit(pebble.Sync); err != nil {
		_ = tx.batch.Close()
		return err
	}
	return tx.batch.Close()
}

func (tx *WriteTx) Discard() {
	if tx.done {
		return
	}
	tx.done = true
	_ = tx.batch.Close()
}
