package views

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMapEmitsRows(t *testing.T) {
	compiled, err := Compile("map", `function(doc) { emit(doc.key, doc.value); }`)
	require.NoError(t, err)

	rows, _, err := RunMap(context.Background(), compiled, map[string]interface{}{"key": "a", "value": float64(1)}, runtimeBudget{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].Key)
	assert.Equal(t, float64(1), rows[0].Value)
}

// TestRunMapHasNoDateGlobal pins spec §4.3's global-surface contract: the
// sandbox must not expose Date, since a map function's output has to be a
// pure function of the document, never of wall-clock time.
func TestRunMapHasNoDateGlobal(t *testing.T) {
	compiled, err := Compile("map", `function(doc) { emit("result", typeof Date); }`)
	require.NoError(t, err)

	rows, _, err := RunMap(context.Background(), compiled, map[string]interface{}{}, runtimeBudget{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "undefined", rows[0].Value)
}

func TestRunReduceSum(t *testing.T) {
	compiled, err := Compile("reduce", `function(keys, values, rereduce) { return sum(values); }`)
	require.NoError(t, err)

	result, err := RunReduce(context.Background(), compiled, nil, []interface{}{float64(1), float64(2), float64(3)}, false, runtimeBudget{})
	require.NoError(t, err)
	assert.Equal(t, float64(6), result)
}

func TestRunUpdateDecodesNewDocAndResponse(t *testing.T) {
	compiled, err := Compile("update", `function(doc, req) {
		doc.touched = true;
		return [doc, {body: "ok", code: 200}];
	}`)
	require.NoError(t, err)

	outcome, err := RunUpdate(context.Background(), compiled, map[string]interface{}{"_id": "x"}, UpdateRequest{}, runtimeBudget{})
	require.NoError(t, err)
	require.True(t, outcome.HasNewDoc)
	assert.Equal(t, true, outcome.NewDoc["touched"])
	assert.Equal(t, "ok", outcome.Response.Body)
	assert.Equal(t, 200, outcome.Response.Code)
}

func TestRunUpdateNullDocMeansNoWrite(t *testing.T) {
	compiled, err := Compile("update", `function(doc, req) { return [null, {body: "no-op"}]; }`)
	require.NoError(t, err)

	outcome, err := RunUpdate(context.Background(), compiled, nil, UpdateRequest{}, runtimeBudget{})
	require.NoError(t, err)
	assert.False(t, outcome.HasNewDoc)
	assert.Equal(t, "no-op", outcome.Response.Body)
}

func TestRunMapThrownExceptionPropagatesAsError(t *testing.T) {
	compiled, err := Compile("map", `function(doc) { throw new Error("bad doc"); }`)
	require.NoError(t, err)

	_, _, err = RunMap(context.Background(), compiled, map[string]interface{}{}, runtimeBudget{})
	require.Error(t, err)
}
