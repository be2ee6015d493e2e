package web

import (
	"testing"

	"github.com/google/go-querystring/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allDocsQuery mirrors the GET /{db}/_all_docs query parameters this
// package parses in getAllDocs. Building requests from this struct via
// go-querystring (rather than hand-formatting a query string per test)
// keeps the test request construction immune to parameter-name drift.
type allDocsQuery struct {
	StartKey    string `url:"start_key,omitempty"`
	EndKey      string `url:"end_key,omitempty"`
	IncludeDocs bool   `url:"include_docs,omitempty"`
	Descending  bool   `url:"descending,omitempty"`
}

func TestAllDocsQueryEncoding(t *testing.T) {
	q := allDocsQuery{StartKey: "a", EndKey: "m", IncludeDocs: true}
	values, err := query.Values(q)
	require.NoError(t, err)

	assert.Equal(t, "a", values.Get("start_key"))
	assert.Equal(t, "m", values.Get("end_key"))
	assert.Equal(t, "true", values.Get("include_docs"))
	assert.Empty(t, values.Get("descending"))
}
