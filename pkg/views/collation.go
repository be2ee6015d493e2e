// Package views implements DesignRepo, JSRuntime and ViewEngine: the
// JavaScript map/reduce/update-function execution sandbox and the view
// materialisation pipeline built on top of it.
package views

import (
	"fmt"
	"sort"
	"strings"
)

// collationRank orders the JSON value kinds per spec §4.4:
// null < false < true < number < string < array < object.
func collationRank(v interface{}) int {
	switch vv := v.(type) {
	case nil:
		return 0
	case bool:
		if !vv {
			return 1
		}
		return 2
	case float64, int, int64:
		return 3
	case string:
		return 4
	case []interface{}:
		return 5
	case map[string]interface{}:
		return 6
	default:
		return 6
	}
}

// CompareValues implements CouchDB's total collation order over JSON
// values: rank by kind first, then compare within a kind. Strings compare
// by Unicode code point (not locale collation); arrays and objects
// compare lexicographically element-by-element / key-by-key.
func CompareValues(a, b interface{}) int {
	ra, rb := collationRank(a), collationRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0, 1, 2:
		return 0 // null, false, true: singletons within their rank
	case 3:
		return compareNumbers(a, b)
	case 4:
		return strings.Compare(a.(string), b.(string))
	case 5:
		return compareArrays(a.([]interface{}), b.([]interface{}))
	case 6:
		return compareObjects(a.(map[string]interface{}), b.(map[string]interface{}))
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func compareNumbers(a, b interface{}) int {
	fa, fb := asFloat(a), asFloat(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

func compareArrays(a, b []interface{}) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// compareObjects compares objects by their sorted key/value pairs in
// turn, matching the way canonical JSON already orders map keys.
func compareObjects(a, b map[string]interface{}) int {
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := CompareValues(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return len(ak) - len(bk)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Row is one emitted view row, tagged with its source document id.
type Row struct {
	Key   interface{}
	Value interface{}
	ID    string
}

// SortRows orders rows by CompareValues(key), breaking ties by document
// id in ascending ASCII order (spec §4.4 step 3).
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := CompareValues(rows[i].Key, rows[j].Key); c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
}

// keyString renders a collation key for diagnostics/errors only; it is
// never used for comparison.
func keyString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
