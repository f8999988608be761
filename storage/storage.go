/*
Package storage keeps the history of completed tally runs.

# Storage Organization

The storage uses a key-value database with prefixed namespaces:

  - tr/ : runID → TallyRecord (report of a completed run, CBOR encoded)
  - lt/ : "latest" → runID of the most recently stored record

Run ids are UUIDv7, so iterating tr/ visits the records in the order in
which the runs started. Aborted runs are never stored.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/db/prefixeddb"
	"github.com/vocdoni/evote-tally/log"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	tallyRecordPrefix = []byte("tr/")
	latestTallyPrefix = []byte("lt/")

	latestTallyKey = []byte("latest")

	cacheSize = 256
)

// Storage persists tally records.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex                       // Lock for write operations
	cache      *lru.Cache[string, *TallyRecord] // Cache for decoded records
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	cache, err := lru.New[string, *TallyRecord](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    db,
		cache: cache,
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.cache.Purge()
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// setArtifact encodes the artifact and stores it under the prefix and key
// provided. It returns ErrKeyAlreadyExists if overwrite is false and the key
// is already set.
func (s *Storage) setArtifact(prefix, key []byte, artifact any, overwrite bool) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}

	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()

	if !overwrite {
		if _, err := wTx.Get(key); err == nil {
			return ErrKeyAlreadyExists
		}
	}
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact retrieves the artifact stored under the prefix and key
// provided and decodes it into out. It returns ErrNotFound if the key is not
// set.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// listArtifacts retrieves all the keys for a given prefix in ascending
// order.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		kcopy := make([]byte, len(k))
		copy(kcopy, k)
		keys = append(keys, kcopy)
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
