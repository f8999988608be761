// Package metadb opens any of the supported db backends by type name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/db/inmemory"
	"github.com/vocdoni/evote-tally/db/leveldb"
	"github.com/vocdoni/evote-tally/db/mongodb"
	"github.com/vocdoni/evote-tally/db/pebbledb"
)

// New opens a database of type typ located at dir.
func New(typ, dir string) (db.Database, error) {
	return Open(typ, db.Options{Path: dir})
}

// Open opens a database of type typ with the given options.
func Open(typ string, opts db.Options) (db.Database, error) {
	var (
		database db.Database
		err      error
	)
	switch typ {
	case db.TypePebble:
		database, err = pebbledb.New(opts)
	case db.TypeLevelDB:
		database, err = leveldb.New(opts)
	case db.TypeMongo:
		database, err = mongodb.New(opts)
	case db.TypeInMem:
		database, err = inmemory.New(opts)
	default:
		return nil, fmt.Errorf("%w: %q", db.ErrUnknownType, typ)
	}
	if err != nil {
		return nil, err
	}
	return database, nil
}

// ValidType reports whether typ names a supported backend.
func ValidType(typ string) bool {
	switch typ {
	case db.TypePebble, db.TypeLevelDB, db.TypeMongo, db.TypeInMem:
		return true
	}
	return false
}

// NewTest returns a pebble database in a temporary directory, closed when
// the test ends.
func NewTest(tb testing.TB) db.Database {
	tb.Helper()
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}
