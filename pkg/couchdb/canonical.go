package couchdb

import (
	"bytes"
	"encoding/json"
)

// canonicalize renders body as JSON with object keys sorted
// lexicographically at every level and no insignificant whitespace. Go's
// encoding/json already sorts map[string]interface{} keys and renders
// float64 in its shortest round-trip form, so canonicalization only needs
// to disable HTML-escaping (which would otherwise vary the byte form of
// documents containing '<', '>' or '&' for no semantic reason) and strip
// any trailing newline the encoder adds.
func canonicalize(body map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// withoutRev returns a shallow copy of body with the _rev field removed,
// per RevCodec.compute's requirement that _rev is excluded from the hash
// while _id is included.
func withoutRev(body map[string]interface{}) map[string]interface{} {
	if _, ok := body["_rev"]; !ok {
		return body
	}
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "_rev" {
			continue
		}
		out[k] = v
	}
	return out
}
