package mango

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCompileFindAppliesSortAndFields(t *testing.T) {
	req := FindRequest{
		Selector: map[string]interface{}{"status": "open"},
		Sort:     []map[string]string{{"created_at": "desc"}},
		Fields:   []string{"title"},
		Limit:    10,
		Skip:     5,
	}
	compiled, err := CompileFind(req)
	require.NoError(t, err)

	assert.Equal(t, bson.M{"status": "open"}, compiled.Filter)
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}}, compiled.Sort)
	assert.Equal(t, bson.M{"_id": 1, "_rev": 1, "title": 1}, compiled.Projection)
	assert.EqualValues(t, 10, compiled.Limit)
	assert.EqualValues(t, 5, compiled.Skip)
}

func TestCompileSortRejectsUnknownDirection(t *testing.T) {
	_, err := CompileSort([]map[string]string{{"a": "sideways"}})
	require.Error(t, err)
}

func TestCompileAllDocsKeysTakePrecedenceOverRange(t *testing.T) {
	req := AllDocsRequest{
		Keys:     []string{"a", "b"},
		StartKey: "c", // would otherwise narrow the range, but Keys wins
		EndKey:   "z",
	}
	compiled := CompileAllDocs(req)
	assert.Equal(t, bson.M{
		"_deleted": bson.M{"$ne": true},
		"_id":      bson.M{"$in": []string{"a", "b"}},
	}, compiled.Filter)
}

func TestCompileAllDocsRangeWithoutKeys(t *testing.T) {
	req := AllDocsRequest{StartKey: "a", EndKey: "m", Descending: true}
	compiled := CompileAllDocs(req)
	assert.Equal(t, bson.M{
		"_deleted": bson.M{"$ne": true},
		"_id":      bson.M{"$gte": "a", "$lte": "m"},
	}, compiled.Filter)
	assert.Equal(t, bson.D{{Key: "_id", Value: -1}}, compiled.Sort)
}

func TestCompileAllDocsIncludeDocsDropsProjection(t *testing.T) {
	compiled := CompileAllDocs(AllDocsRequest{IncludeDocs: true})
	assert.Nil(t, compiled.Projection)
}

func TestCompileAllDocsExcludesTombstonesByDefault(t *testing.T) {
	compiled := CompileAllDocs(AllDocsRequest{})
	assert.Equal(t, bson.M{"$ne": true}, compiled.Filter["_deleted"])
}
