package mango

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FindRequest is the decoded body of POST /{db}/_find.
type FindRequest struct {
	Selector map[string]interface{}   `json:"selector"`
	Sort     []map[string]string      `json:"sort,omitempty"`
	Fields   []string                 `json:"fields,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
	Skip     int                      `json:"skip,omitempty"`
}

// CompiledFind is what QueryTranslator hands to the Mongo adapter.
type CompiledFind struct {
	Filter     bson.M
	Sort       bson.D
	Projection bson.M
	Limit      int64
	Skip       int64
}

// CompileFind translates a FindRequest per spec §4.5: the selector
// compiles via CompileSelector, sort entries become +1/-1 in declaration
// order, and fields (if given) become an inclusion projection that always
// keeps _id and _rev so DocEngine can still report them.
func CompileFind(req FindRequest) (*CompiledFind, error) {
	filter, err := CompileSelector(req.Selector)
	if err != nil {
		return nil, err
	}

	sortDoc, err := CompileSort(req.Sort)
	if err != nil {
		return nil, err
	}

	compiled := &CompiledFind{
		Filter: filter,
		Sort:   sortDoc,
		Limit:  int64(req.Limit),
		Skip:   int64(req.Skip),
	}
	if len(req.Fields) > 0 {
		proj := bson.M{"_id": 1, "_rev": 1}
		for _, f := range req.Fields {
			proj[f] = 1
		}
		compiled.Projection = proj
	}
	return compiled, nil
}

// CompileSort translates a Mango sort spec `[{field: "asc"|"desc"}, ...]`
// into a MongoDB sort document with +1/-1, preserving field order since
// MongoDB sort is multi-key and order-sensitive.
func CompileSort(sortSpec []map[string]string) (bson.D, error) {
	out := make(bson.D, 0, len(sortSpec))
	for _, entry := range sortSpec {
		for field, dir := range entry {
			switch dir {
			case "asc", "":
				out = append(out, bson.E{Key: field, Value: 1})
			case "desc":
				out = append(out, bson.E{Key: field, Value: -1})
			default:
				return nil, unsupportedOp("sort:" + dir)
			}
		}
	}
	return out, nil
}

// AllDocsRequest is the decoded form of GET/POST /{db}/_all_docs.
type AllDocsRequest struct {
	Keys         []string `json:"keys,omitempty"`
	StartKey     string   `json:"start_key,omitempty"`
	EndKey       string   `json:"end_key,omitempty"`
	IncludeDocs  bool     `json:"include_docs,omitempty"`
	Descending   bool     `json:"descending,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Skip         int      `json:"skip,omitempty"`
}

// CompileAllDocs builds the filter/sort/projection for _all_docs per spec
// §4.5: a plain scan sorted by _id, narrowed to an $in filter when keys is
// given (which takes precedence over start_key/end_key, mirroring
// CouchDB), or a range filter on _id otherwise. Tombstones are always
// excluded, matching the document-listing semantics the rest of the
// surface uses.
func CompileAllDocs(req AllDocsRequest) *CompiledFind {
	filter := bson.M{"_deleted": bson.M{"$ne": true}}

	switch {
	case len(req.Keys) > 0:
		filter["_id"] = bson.M{"$in": req.Keys}
	default:
		rangeFilter := bson.M{}
		if req.StartKey != "" {
			rangeFilter["$gte"] = req.StartKey
		}
		if req.EndKey != "" {
			rangeFilter["$lte"] = req.EndKey
		}
		if len(rangeFilter) > 0 {
			filter["_id"] = rangeFilter
		}
	}

	order := 1
	if req.Descending {
		order = -1
	}

	projection := bson.M{"_id": 1, "_rev": 1}
	if req.IncludeDocs {
		projection = nil // nil projection means "whole document"
	}

	return &CompiledFind{
		Filter:     filter,
		Sort:       bson.D{{Key: "_id", Value: order}},
		Projection: projection,
		Limit:      int64(req.Limit),
		Skip:       int64(req.Skip),
	}
}
