// Package couchdb implements the document/revision engine and the Mango
// query translator: the two subsystems that give MongoDB collections a
// CouchDB-shaped document model. It is the outward contract of the proxy.
package couchdb

import (
	"encoding/json"
)

// Doc is implemented by anything that can be persisted through DocEngine.
// JSONDoc is the only implementation the proxy needs (the wire format is
// always JSON), but keeping the interface narrow mirrors the teacher's
// couchdb.Doc and lets tests substitute fakes.
type Doc interface {
	ID() string
	Rev() string
	SetID(id string)
	SetRev(rev string)
	Clone() Doc
}

// JSONDoc is a map-backed document, matching CouchDB's schemaless model.
type JSONDoc struct {
	M map[string]interface{}
}

// NewJSONDoc wraps an existing map. The map is used directly, not copied.
func NewJSONDoc(m map[string]interface{}) *JSONDoc {
	if m == nil {
		m = map[string]interface{}{}
	}
	return &JSONDoc{M: m}
}

// ID returns the _id field, or "" if absent.
func (j *JSONDoc) ID() string {
	id, _ := j.M["_id"].(string)
	return id
}

// Rev returns the _rev field, or "" if absent.
func (j *JSONDoc) Rev() string {
	rev, _ := j.M["_rev"].(string)
	return rev
}

// SetID sets or clears the _id field.
func (j *JSONDoc) SetID(id string) {
	if id == "" {
		delete(j.M, "_id")
	} else {
		j.M["_id"] = id
	}
}

// SetRev sets or clears the _rev field.
func (j *JSONDoc) SetRev(rev string) {
	if rev == "" {
		delete(j.M, "_rev")
	} else {
		j.M["_rev"] = rev
	}
}

// Deleted reports whether the document carries the tombstone marker.
func (j *JSONDoc) Deleted() bool {
	del, _ := j.M["_deleted"].(bool)
	return del
}

// SetDeleted sets or clears the _deleted tombstone marker.
func (j *JSONDoc) SetDeleted(deleted bool) {
	if deleted {
		j.M["_deleted"] = true
	} else {
		delete(j.M, "_deleted")
	}
}

// Get returns the value of one field, or nil if absent.
func (j *JSONDoc) Get(key string) interface{} {
	return j.M[key]
}

// Clone deep-copies the document so mutations to the clone never leak
// back into the original (used before handing a document to a JS sandbox
// invocation or a realtime-style hook).
func (j *JSONDoc) Clone() Doc {
	return &JSONDoc{M: deepClone(j.M)}
}

// MarshalJSON proxies to the internal map, so a JSONDoc serialises
// exactly like the document it represents.
func (j *JSONDoc) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.M)
}

// UnmarshalJSON proxies to the internal map.
func (j *JSONDoc) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.M)
}

func deepClone(m map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return deepClone(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = deepCloneValue(e)
		}
		return out
	default:
		return v
	}
}
