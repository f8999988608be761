// Package db defines the key-value database abstraction shared by every
// storage backend.
package db

import (
	"errors"
	"io"
)

// Supported database backends.
const (
	TypePebble  = "pebble"
	TypeLevelDB = "leveldb"
	TypeMongo   = "mongodb"
	TypeInMem   = "inmemory"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when a key read by the transaction
	// was modified by another one in the meantime.
	ErrConflict = errors.New("transaction conflict")
	// ErrUnknownType is returned when asking for an unsupported backend.
	ErrUnknownType = errors.New("unknown database type")
)

// Options are the backend construction options. Path is a directory for
// the embedded backends and a database name for mongodb.
type Options struct {
	Path string
	URI  string
}

// Reader is the read-only part of a database or transaction.
type Reader interface {
	// Get returns a copy of the value of key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key starting with prefix, in
	// lexicographic order, until the callback returns false. The prefix is
	// included in the keys passed to callback. The slices are only valid
	// during the call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a set of writes applied atomically on Commit.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies the pending writes of other into the transaction.
	Apply(other WriteTx) error
	Commit() error
	// Discard drops the transaction; calling it after Commit is a no-op.
	Discard()
}

// Database is a key-value store.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}

// Unwrapper is implemented by WriteTx wrappers, such as the prefixed ones,
// so that backends can reach their own transaction type in Apply.
type Unwrapper interface {
	Unwrap() WriteTx
}

// UnwrapWriteTx returns the innermost transaction of tx.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(Unwrapper)
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}

// PrefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil if there is none.
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
