package couchdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevRoundTrip(t *testing.T) {
	rev, err := ParseRev("3-6f3f9d8f1a2b3c4d5e6f7a8b9c0d1e2f")
	require.NoError(t, err)
	assert.EqualValues(t, 3, rev.Gen)
	assert.Equal(t, "3-6f3f9d8f1a2b3c4d5e6f7a8b9c0d1e2f", rev.String())
}

func TestParseRevRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"no-dash-missing",
		"-6f3f9d8f1a2b3c4d5e6f7a8b9c0d1e2f",
		"3-",
		"0-6f3f9d8f1a2b3c4d5e6f7a8b9c0d1e2f",
		"3-tooshort",
		"3-6F3F9D8F1A2B3C4D5E6F7A8B9C0D1E2F", // uppercase hex rejected
		"3-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", // not hex
	}
	for _, c := range cases {
		_, err := ParseRev(c)
		assert.Error(t, err, "expected error for %q", c)
		assert.True(t, err.(*Error).Kind == KindBadRequest)
	}
}

func TestBumpRevIncrementsGeneration(t *testing.T) {
	body := map[string]interface{}{"a": 1.0}
	first, err := bumpRev(Rev{}, body)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Gen)

	second, err := bumpRev(first, body)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Gen)
	// Same content at different generations must not collide: at the very
	// least the wire string is different because the generation differs.
	assert.NotEqual(t, first.String(), second.String())
}

func TestBumpRevHashIsContentStable(t *testing.T) {
	body := map[string]interface{}{"a": 1.0, "b": "x"}
	r1, err := bumpRev(Rev{}, body)
	require.NoError(t, err)
	r2, err := bumpRev(Rev{}, body)
	require.NoError(t, err)
	assert.Equal(t, r1.Hash, r2.Hash, "identical bodies at the same generation must hash identically")
}

func TestBumpRevHashIgnoresRevField(t *testing.T) {
	withoutRevField := map[string]interface{}{"a": 1.0}
	withRevField := map[string]interface{}{"a": 1.0, "_rev": "1-deadbeef"}

	r1, err := bumpRev(Rev{}, withoutRevField)
	require.NoError(t, err)
	r2, err := bumpRev(Rev{}, withRevField)
	require.NoError(t, err)
	assert.Equal(t, r1.Hash, r2.Hash)
}
