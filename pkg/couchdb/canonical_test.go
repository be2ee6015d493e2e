package couchdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	body := map[string]interface{}{"b": 1.0, "a": 2.0}
	out, err := canonicalize(body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestCanonicalizeDisablesHTMLEscaping(t *testing.T) {
	body := map[string]interface{}{"a": "<b>&'"}
	out, err := canonicalize(body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>&'"}`, string(out))
}

func TestWithoutRevStripsOnlyRev(t *testing.T) {
	body := map[string]interface{}{"_id": "x", "_rev": "1-abc", "a": 1.0}
	out := withoutRev(body)
	assert.Equal(t, map[string]interface{}{"_id": "x", "a": 1.0}, out)
	// Original map is untouched.
	assert.Contains(t, body, "_rev")
}

func TestWithoutRevNoopWhenAbsent(t *testing.T) {
	body := map[string]interface{}{"a": 1.0}
	out := withoutRev(body)
	assert.Equal(t, body, out)
}
