package mango

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCompileSelectorBareLiteralIsImplicitEq(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{"status": "open"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"status": "open"}, filter)
}

func TestCompileSelectorOperatorObject(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{
		"age": map[string]interface{}{"$gte": float64(18)},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"age": bson.M{"$gte": float64(18)}}, filter)
}

func TestCompileSelectorNestedFieldEqualityIsNotAnOperatorObject(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{
		"address": map[string]interface{}{"city": "NYC"},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"address": map[string]interface{}{"city": "NYC"}}, filter)
}

func TestCompileSelectorAndOr(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"a": float64(1)},
			map[string]interface{}{"b": float64(2)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{bson.M{"a": float64(1)}, bson.M{"b": float64(2)}}}, filter)
}

func TestCompileSelectorUnsupportedOperator(t *testing.T) {
	_, err := CompileSelector(map[string]interface{}{
		"a": map[string]interface{}{"$where": "true"},
	})
	require.Error(t, err)
	var opErr *UnsupportedOperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "$where", opErr.Op)
}

func TestCompileSelectorTypeNumberExpandsToAllNumericCodes(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{
		"n": map[string]interface{}{"$type": "number"},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"n": bson.M{"$type": bson.A{1, 16, 18, 19}}}, filter)
}

func TestCompileSelectorTypeUnknownName(t *testing.T) {
	_, err := CompileSelector(map[string]interface{}{
		"n": map[string]interface{}{"$type": "bigint"},
	})
	require.Error(t, err)
}

func TestCompileSelectorElemMatch(t *testing.T) {
	filter, err := CompileSelector(map[string]interface{}{
		"tags": map[string]interface{}{
			"$elemMatch": map[string]interface{}{"$eq": "x"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"tags": bson.M{"$elemMatch": bson.M{"$eq": "x"}}}, filter)
}
