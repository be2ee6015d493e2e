package couchdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/couchmongo/bridge/pkg/mongoadapter"
)

// fakeStore is a minimal in-memory mongoStore double: just enough of the
// conditional-write semantics (InsertOne fails on duplicate _id,
// ReplaceOneIf fails when the filter matches nothing) for DocEngine's
// write protocol to be exercised without a real MongoDB connection.
type fakeStore struct {
	docs map[string]map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]map[string]interface{}{}}
}

func (f *fakeStore) FindOne(_ context.Context, _ string, filter bson.M, out interface{}) error {
	id, _ := filter["_id"].(string)
	doc, ok := f.docs[id]
	if !ok {
		return mongoadapter.ErrNoMatch
	}
	*(out.(*map[string]interface{})) = doc
	return nil
}

func (f *fakeStore) FindStream(context.Context, string, bson.M, ...*options.FindOptions) (*mongo.Cursor, error) {
	panic("not used by these tests")
}

func (f *fakeStore) InsertOne(_ context.Context, _ string, doc interface{}) error {
	m := doc.(map[string]interface{})
	id := m["_id"].(string)
	if _, exists := f.docs[id]; exists {
		return mongoadapter.ErrDuplicateKey
	}
	f.docs[id] = m
	return nil
}

func (f *fakeStore) ReplaceOneIf(_ context.Context, _ string, filter bson.M, replacement interface{}) error {
	id, _ := filter["_id"].(string)
	rev, _ := filter["_rev"].(string)
	current, ok := f.docs[id]
	if !ok || current["_rev"] != rev {
		return mongoadapter.ErrNoMatch
	}
	f.docs[id] = replacement.(map[string]interface{})
	return nil
}

func (f *fakeStore) Count(context.Context, string, bson.M) (int64, error) {
	return int64(len(f.docs)), nil
}

func TestDocEnginePutThenGet(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	res, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 1.0}, "")
	require.NoError(t, err)
	assert.Equal(t, "doc1", res.ID)

	doc, err := engine.Get(context.Background(), "db", "doc1", "")
	require.NoError(t, err)
	assert.Equal(t, res.Rev, doc.Rev())
}

func TestDocEnginePutConflictOnStaleRev(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	first, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 1.0}, "")
	require.NoError(t, err)

	_, err = engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 2.0}, "1-stalestalestalestalestalestale")
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	// Correct rev still succeeds.
	_, err = engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 2.0}, first.Rev)
	require.NoError(t, err)
}

func TestDocEnginePostAssignsID(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	res, err := engine.Post(context.Background(), "db", map[string]interface{}{"a": 1.0})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
}

func TestDocEngineDeleteRequiresRev(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	_, err := engine.Delete(context.Background(), "db", "doc1", "")
	require.Error(t, err)
	assert.Equal(t, KindBadRequest, err.(*Error).Kind)
}

func TestDocEngineDeleteWritesTombstone(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	put, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 1.0}, "")
	require.NoError(t, err)

	_, err = engine.Delete(context.Background(), "db", "doc1", put.Rev)
	require.NoError(t, err)

	_, err = engine.Get(context.Background(), "db", "doc1", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDocEnginePutRecreatesOverTombstoneAtGenerationOne(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	put, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 1.0}, "")
	require.NoError(t, err)
	_, err = engine.Delete(context.Background(), "db", "doc1", put.Rev)
	require.NoError(t, err)

	// Recreating with no rev must succeed (new lineage), not fail as a
	// duplicate-key conflict against the retained tombstone row.
	recreated, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 2.0}, "")
	require.NoError(t, err)
	assert.Equal(t, "doc1", recreated.ID)

	rev, err := ParseRev(recreated.Rev)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev.Gen, "recreation over a tombstone starts a new lineage at generation 1")

	doc, err := engine.Get(context.Background(), "db", "doc1", "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, doc.Get("a"))
	assert.False(t, doc.Deleted())
}

func TestDocEnginePutWithNoRevConflictsOnLiveDuplicate(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	_, err := engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 1.0}, "")
	require.NoError(t, err)

	// doc1 is still live (not tombstoned): a second no-rev create must
	// still conflict, not silently overwrite it.
	_, err = engine.Put(context.Background(), "db", "doc1", map[string]interface{}{"a": 2.0}, "")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestDocEngineGetMissingIsNotFound(t *testing.T) {
	store := newFakeStore()
	engine := &DocEngine{store: store}

	_, err := engine.Get(context.Background(), "db", "nope", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
