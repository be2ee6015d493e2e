// Package mongoadapter is the narrow wrapper around the MongoDB driver
// that exposes exactly the primitives DocEngine, QueryTranslator and
// ViewEngine need: find_one, find_stream, insert_one, replace_one_if,
// count and list_collections (spec §4.7). It retries transient network
// errors with jittered exponential backoff and surfaces duplicate-key and
// concurrency outcomes as distinct error values instead of raw driver
// errors, so the higher layers never inspect driver error types.
package mongoadapter

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/metrics"
)

// Adapter wraps one MongoDB database handle.
type Adapter struct {
	client  *mongo.Client
	db      *mongo.Database
	log     *logger.Entry
	metrics metrics.Recorder
}

// New builds an Adapter over the given database name.
func New(client *mongo.Client, dbName string, rec metrics.Recorder) *Adapter {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Adapter{
		client:  client,
		db:      client.Database(dbName),
		log:     logger.WithNamespace("mongoadapter"),
		metrics: rec,
	}
}

func (a *Adapter) collection(name string) *mongo.Collection {
	return a.db.Collection(name)
}

// FindOne decodes the first document matching filter into out. Returns
// ErrNoMatch (not a driver error) when nothing matches, so callers never
// need to import mongo.ErrNoDocuments.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	return a.withRetry(ctx, "find_one", func() error {
		err := a.collection(collection).FindOne(ctx, filter).Decode(out)
		if err == mongo.ErrNoDocuments {
			return ErrNoMatch
		}
		return err
	})
}

// FindStream opens a cursor over filter with the given find options
// (projection, sort, skip, limit). The caller owns the returned cursor
// and must close it.
func (a *Adapter) FindStream(ctx context.Context, collection string, filter bson.M, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	var cur *mongo.Cursor
	err := a.withRetry(ctx, "find_stream", func() error {
		var err error
		cur, err = a.collection(collection).Find(ctx, filter, opts...)
		return err
	})
	return cur, err
}

// InsertOne inserts doc as a new document. Returns ErrDuplicateKey if the
// _id already exists in the collection.
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc interface{}) error {
	err := a.withRetry(ctx, "insert_one", func() error {
		_, err := a.collection(collection).InsertOne(ctx, doc)
		return err
	})
	if isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return err
}

// ReplaceOneIf performs the conditional write DocEngine uses for every
// revision-checked update: replace the document matching filter
// (typically {_id, _rev: expected}) with replacement. Returns ErrNoMatch
// when filter matched nothing, which DocEngine maps to *conflict*.
func (a *Adapter) ReplaceOneIf(ctx context.Context, collection string, filter bson.M, replacement interface{}) error {
	return a.withRetry(ctx, "replace_one_if", func() error {
		res, err := a.collection(collection).ReplaceOne(ctx, filter, replacement)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNoMatch
		}
		return nil
	})
}

// Count returns the number of documents matching filter.
func (a *Adapter) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	var n int64
	err := a.withRetry(ctx, "count", func() error {
		var err error
		n, err = a.collection(collection).CountDocuments(ctx, filter)
		return err
	})
	return n, err
}

// ListCollections returns the names of every collection in the database,
// backing GET /_all_dbs.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := a.withRetry(ctx, "list_collections", func() error {
		var err error
		names, err = a.db.ListCollectionNames(ctx, bson.M{})
		return err
	})
	return names, err
}

// CreateCollection creates the named collection if it does not already
// exist, backing PUT /{db}. Creation is idempotent: an already-exists
// error is swallowed.
func (a *Adapter) CreateCollection(ctx context.Context, collection string) error {
	err := a.withRetry(ctx, "create_collection", func() error {
		return a.db.CreateCollection(ctx, collection)
	})
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok && cmdErr.Code == 48 { // NamespaceExists
		return nil
	}
	return err
}

// DropCollection drops the named collection, backing DELETE /{db}.
func (a *Adapter) DropCollection(ctx context.Context, collection string) error {
	return a.withRetry(ctx, "drop_collection", func() error {
		return a.collection(collection).Drop(ctx)
	})
}

// CollectionExists reports whether the named collection exists.
func (a *Adapter) CollectionExists(ctx context.Context, collection string) (bool, error) {
	names, err := a.withRetryNames(ctx, collection)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == collection {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) withRetryNames(ctx context.Context, collection string) ([]string, error) {
	var names []string
	err := a.withRetry(ctx, "list_collections", func() error {
		var err error
		names, err = a.db.ListCollectionNames(ctx, bson.M{"name": collection})
		return err
	})
	return names, err
}

func asCommandError(err error, target *mongo.CommandError) bool {
	ce, ok := err.(mongo.CommandError)
	if ok {
		*target = ce
		return true
	}
	return false
}

// Collection exposes the raw *mongo.Collection for callers that need
// direct aggregation-pipeline or cursor-option access beyond the
// primitives above. DocEngine and ViewEngine use only those primitives.
func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.collection(name)
}
