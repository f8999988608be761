// Package leveldb implements db.Database on top of goleveldb.
package leveldb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vocdoni/evote-tally/db"
)

// LevelDB is a db.Database stored in a local goleveldb directory.
type LevelDB struct {
	db     *leveldb.DB
	closed atomic.Bool
}

var _ db.Database = (*LevelDB)(nil)

// New opens (or creates) the database at opts.Path.
func New(opts db.Options) (*LevelDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("leveldb: no path provided")
	}
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, err
	}
	ldb, err := leveldb.OpenFile(opts.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: cannot open %s: %w", opts.Path, err)
	}
	return &LevelDB{db: ldb}, nil
}

// Close closes the database, further calls are no-ops.
func (d *LevelDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}

func (d *LevelDB) Compact() error {
	return d.db.CompactRange(util.Range{})
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

func (d *LevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// WriteTx buffers the writes in memory and flushes them as a single
// leveldb.Batch. There is no conflict detection.
func (d *LevelDB) WriteTx() db.WriteTx {
	return &WriteTx{db: d, writes: make(map[string]*[]byte)}
}

// WriteTx overlays pending writes on top of the database.
type WriteTx struct {
	db     *LevelDB
	writes map[string]*[]byte
	done   bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if pending, ok := tx.writes[string(key)]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		entries[string(key)] = bytes.Clone(value)
		return true
	}); err != nil {
		return err
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = *v
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k), entries[k]) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	v := bytes.Clone(value)
	tx.writes[string(key)] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	tx.writes[string(key)] = nil
	return nil
}

// Apply copies the pending writes of other, which must be a leveldb
// transaction, possibly wrapped.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherTx, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T to leveldb tx", other)
	}
	for k, v := range otherTx.writes {
		tx.writes[k] = v
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("leveldb: tx already committed or discarded")
	}
	tx.done = true
	batch := new(leveldb.Batch)
	for k, v := range tx.writes {
		if v == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), *v)
	}
	return tx.db.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (tx *WriteTx) Discard() {
	tx.done = true
	tx.writes = map[string]*[]byte{}
}
