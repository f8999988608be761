// Package mongodb implements db.Database as a single MongoDB collection.
// Keys are stored hex encoded as the document _id, which keeps their
// lexicographic order and allows prefix iteration with a range query.
package mongodb

import (
	"bytes"
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vocdoni/evote-tally/db"
)

const (
	collectionName = "kv"
	opTimeout      = 10 * time.Second
)

type document struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoDB is a db.Database backed by a MongoDB collection.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ db.Database = (*MongoDB)(nil)

// New connects to opts.URI (or $MONGODB_URL) and uses opts.Path as the
// database name.
func New(opts db.Options) (*MongoDB, error) {
	uri := cmp.Or(opts.URI, os.Getenv("MONGODB_URL"))
	if uri == "" {
		return nil, fmt.Errorf("mongodb: no URI provided")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("mongodb: no database name provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: cannot connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping failed: %w", err)
	}
	return &MongoDB{
		client:     client,
		collection: client.Database(opts.Path).Collection(collectionName),
	}, nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	err := d.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

// Compact is a no-op, MongoDB manages its own storage.
func (d *MongoDB) Compact() error {
	return nil
}

func (d *MongoDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var doc document
	err := d.collection.FindOne(ctx, bson.M{"_id": hex.EncodeToString(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func prefixFilter(prefix []byte) bson.M {
	hp := hex.EncodeToString(prefix)
	// '~' sorts after every hex digit
	return bson.M{"_id": bson.M{"$gte": hp, "$lt": hp + "~"}}
}

func (d *MongoDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	cur, err := d.collection.Find(ctx, prefixFilter(prefix), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		key, err := hex.DecodeString(doc.ID)
		if err != nil {
			return fmt.Errorf("mongodb: invalid key %q: %w", doc.ID, err)
		}
		if !callback(key, doc.Value) {
			break
		}
	}
	return cur.Err()
}

func (d *MongoDB) WriteTx() db.WriteTx {
	return &WriteTx{db: d, writes: make(map[string]*[]byte)}
}

// WriteTx buffers the writes and flushes them with an ordered bulk write.
type WriteTx struct {
	db     *MongoDB
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
	type kv struct{ k, v []byte }
	var entries []kv
	seen := map[string]bool{}
	if err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		if pending, ok := tx.writes[string(key)]; ok {
			seen[string(key)] = true
			if pending == nil {
				return true
			}
			value = *pending
		}
		entries = append(entries, kv{bytes.Clone(key), bytes.Clone(value)})
		return true
	}); err != nil {
		return err
	}
	for k, v := range tx.writes {
		if seen[k] || v == nil || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		entries = append(entries, kv{[]byte(k), bytes.Clone(*v)})
	}
	slices.SortFunc(entries, func(a, b kv) int { return bytes.Compare(a.k, b.k) })
	for _, e := range entries {
		if !callback(e.k, e.v) {
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

// Apply copies the pending writes of other, which must be a mongodb
// transaction, possibly wrapped.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherTx, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T to mongodb tx", other)
	}
	for k, v := range otherTx.writes {
		tx.writes[k] = v
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("mongodb: tx already committed or discarded")
	}
	tx.done = true
	if len(tx.writes) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(tx.writes))
	for k, v := range tx.writes {
		id := hex.EncodeToString([]byte(k))
		if v == nil {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(document{ID: id, Value: *v}).
			SetUpsert(true))
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := tx.db.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (tx *WriteTx) Discard() {
	tx.done = true
	tx.writes = map[string]*[]byte{}
}
