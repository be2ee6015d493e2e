// Package mango translates the CouchDB Mango selector algebra and
// _all_docs/_find request shapes into MongoDB filter, sort and projection
// documents. It mirrors the way the teacher's couchdb package builds
// mango.Equal/mango.SortBy values, generalised from a fixed set of
// hand-built queries to a full selector compiler.
package mango

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// UnsupportedOperatorError reports a Mango operator outside the
// supported set (spec §4.5). It is a plain error type, not a
// couchdb.Error, so this package never needs to import couchdb (which
// would create an import cycle with DocEngine.Find); callers translate
// it at the boundary.
type UnsupportedOperatorError struct {
	Op string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %s", e.Op)
}

func unsupportedOp(op string) error {
	return &UnsupportedOperatorError{Op: op}
}

// supportedOps is the operator set from spec §4.5. Anything outside this
// set (e.g. $mod, $where) is rejected with an unsupported-selector error,
// even if the name happens to collide with a MongoDB operator.
var supportedOps = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true, "$type": true, "$regex": true,
	"$and": true, "$or": true, "$not": true, "$nor": true,
	"$all": true, "$size": true, "$elemMatch": true,
}

// typeCodes maps CouchDB's Mango $type names to MongoDB BSON $type codes
// (spec §4.5). number covers both int and double at the Mango level;
// MongoDB additionally distinguishes int/long/double, so "number" expands
// to an $in over every numeric BSON code rather than a single one.
var typeCodes = map[string]interface{}{
	"null":    10,
	"boolean": 8,
	"number":  bson.A{1, 16, 18, 19}, // double, int, long, decimal
	"string":  2,
	"array":   4,
	"object":  3,
}

// CompileSelector translates a Mango selector document into a MongoDB
// filter document. It is purely syntactic: no MongoDB round trip is
// needed to validate it.
func CompileSelector(selector map[string]interface{}) (bson.M, error) {
	return compileObject(selector)
}

func compileObject(sel map[string]interface{}) (bson.M, error) {
	out := bson.M{}
	// Deterministic iteration keeps compiled filters stable for tests and
	// logs; selector keys are sorted before translation.
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := sel[key]
		switch key {
		case "$and", "$or", "$nor":
			arr, ok := val.([]interface{})
			if !ok {
				return nil, unsupportedOp(key)
			}
			compiled := make(bson.A, 0, len(arr))
			for _, item := range arr {
				itemSel, ok := item.(map[string]interface{})
				if !ok {
					return nil, unsupportedOp(key)
				}
				c, err := compileObject(itemSel)
				if err != nil {
					return nil, err
				}
				compiled = append(compiled, c)
			}
			out[key] = compiled
		case "$not":
			sub, ok := val.(map[string]interface{})
			if !ok {
				return nil, unsupportedOp(key)
			}
			c, err := compileObject(sub)
			if err != nil {
				return nil, err
			}
			out[key] = c
		default:
			if len(key) > 0 && key[0] == '$' && !supportedOps[key] {
				return nil, unsupportedOp(key)
			}
			cond, err := compileField(key, val)
			if err != nil {
				return nil, err
			}
			out[key] = cond
		}
	}
	return out, nil
}

// compileField compiles the condition for a single field path. value is
// either a bare literal (implicit $eq, passed through unchanged per spec
// §4.5) or an operator object.
func compileField(field string, value interface{}) (interface{}, error) {
	opObj, ok := value.(map[string]interface{})
	if !ok {
		return value, nil
	}
	// An operator object whose keys don't start with "$" is actually a
	// nested-field equality match (e.g. {"address": {"city": "NYC"}});
	// Mango treats that the same as a bare literal.
	if !looksLikeOperatorObject(opObj) {
		return value, nil
	}

	out := bson.M{}
	keys := make([]string, 0, len(opObj))
	for k := range opObj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, op := range keys {
		val := opObj[op]
		if !supportedOps[op] {
			return nil, unsupportedOp(op)
		}
		switch op {
		case "$type":
			name, ok := val.(string)
			if !ok {
				return nil, unsupportedOp("$type")
			}
			code, ok := typeCodes[name]
			if !ok {
				return nil, unsupportedOp(fmt.Sprintf("$type:%s", name))
			}
			// MongoDB's $type accepts either a single type code/alias or
			// an array of them, so "number" (which spans several BSON
			// numeric codes) compiles the same way "string" does.
			out["$type"] = code
		case "$elemMatch":
			sub, ok := val.(map[string]interface{})
			if !ok {
				return nil, unsupportedOp("$elemMatch")
			}
			compiled, err := compileObject(sub)
			if err != nil {
				return nil, err
			}
			out["$elemMatch"] = compiled
		default:
			out[op] = val
		}
	}
	return out, nil
}

func looksLikeOperatorObject(m map[string]interface{}) bool {
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return len(m) > 0
}
