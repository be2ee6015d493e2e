package views

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/semaphore"

	"github.com/couchmongo/bridge/pkg/couchdb"
	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/metrics"
)

// rereduceFanIn is the default fan-in threshold from spec §4.4 step 5:
// partitions larger than this are aggregated via rereduce instead of one
// single reduce call.
const rereduceFanIn = 500

// DocStream is the narrow surface ViewEngine needs from the Mongo
// adapter: a cursor over every document in a collection.
type DocStream interface {
	FindStream(ctx context.Context, collection string, filter bson.M) (Cursor, error)
}

// Cursor abstracts *mongo.Cursor so tests can substitute a fake.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(out interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// ViewEngine runs the map/collate/range-filter/reduce pipeline of spec
// §4.4, offloading the CPU-bound JS invocations to a bounded worker pool
// sized to the number of CPU cores (spec §5).
type ViewEngine struct {
	store    DocStream
	repo     *DesignRepo
	workers  int64
	log      *logger.Entry
	recorder metrics.Recorder
}

// NewViewEngine builds a ViewEngine with a worker pool sized to
// runtime.NumCPU(), per spec §5's default.
func NewViewEngine(store DocStream, repo *DesignRepo, rec metrics.Recorder) *ViewEngine {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &ViewEngine{
		store:    store,
		repo:     repo,
		workers:  int64(runtime.NumCPU()),
		log:      logger.WithNamespace("viewengine"),
		recorder: rec,
	}
}

// View implements couchdb.ViewDelegate.View.
func (e *ViewEngine) View(ctx context.Context, db, design, name string, opts couchdb.ViewOptions) (*couchdb.ViewResult, error) {
	start := time.Now()
	view, err := e.repo.LookupView(ctx, db, design, name)
	if err != nil {
		return nil, err
	}
	mapCompiled, err := e.repo.compiledFor(db+"/"+design, "map", name, view.MapSrc)
	if err != nil {
		return nil, err
	}

	rows, err := e.mapPhase(ctx, db, mapCompiled)
	if err != nil {
		return nil, err
	}
	mappedCount := len(rows)
	defer func() {
		e.recorder.ObserveViewBuild(db, design, name, mappedCount, time.Since(start))
	}()

	SortRows(rows)
	rows = applyKeysFilter(rows, opts.Keys)
	rows = applyRangeFilter(rows, opts)
	totalRows := len(rows)

	if opts.Descending {
		reverseRows(rows)
	}

	wantReduce := view.ReduceSrc != "" && (opts.Reduce == nil || *opts.Reduce)
	if wantReduce {
		reduceCompiled, err := e.repo.compiledFor(db+"/"+design, "reduce", name, view.ReduceSrc)
		if err != nil {
			return nil, err
		}
		reduced, err := e.reducePhase(ctx, reduceCompiled, rows, opts)
		if err != nil {
			return nil, err
		}
		reduced = windowMaps(reduced, opts.Skip, opts.Limit)
		return &couchdb.ViewResult{Offset: opts.Skip, Rows: reduced}, nil
	}

	windowed := windowRows(rows, opts.Skip, opts.Limit)
	outRows := make([]map[string]interface{}, 0, len(windowed))
	for _, r := range windowed {
		entry := map[string]interface{}{"id": r.ID, "key": r.Key, "value": r.Value}
		outRows = append(outRows, entry)
	}

	if opts.IncludeDocs {
		if err := e.attachDocs(ctx, db, outRows); err != nil {
			return nil, err
		}
	}

	return &couchdb.ViewResult{TotalRows: &totalRows, Offset: opts.Skip, Rows: outRows}, nil
}

// mapPhase streams every non-tombstone document through the map function,
// each in a fresh sandbox, dispatched across a bounded worker pool so a
// large collection does not spawn unbounded goroutines (spec §5).
func (e *ViewEngine) mapPhase(ctx context.Context, db string, mapCompiled *CompiledSource) ([]Row, error) {
	cur, err := e.store.FindStream(ctx, db, bson.M{
		"_deleted": bson.M{"$ne": true},
		// Map functions never run over design documents in CouchDB.
		"_id": bson.M{"$not": bson.M{"$regex": "^_design/"}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	sem := semaphore.NewWeighted(e.workers)
	var rowsMu rowCollector

	for cur.Next(ctx) {
		var doc map[string]interface{}
		if decErr := cur.Decode(&doc); decErr != nil {
			continue
		}
		if ctx.Err() != nil {
			// View builds observing cancellation stop dispatching new
			// map invocations (spec §5); in-flight ones still finish.
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		doc := doc
		go func() {
			defer sem.Release(1)
			id, _ := doc["_id"].(string)
			emitted, _, runErr := RunMap(ctx, mapCompiled, doc, runtimeBudget{})
			if runErr != nil {
				e.log.WithField("doc_id", id).Warnf("map invocation skipped: %s", runErr)
				e.recorder.IncJSBudgetExceeded("map")
				return
			}
			for _, row := range emitted {
				rowsMu.add(Row{Key: row.Key, Value: row.Value, ID: id})
			}
		}()
	}
	// Drain the semaphore to ensure every dispatched invocation has
	// finished before the rows slice is read.
	if err := sem.Acquire(ctx, e.workers); err != nil {
		return nil, err
	}
	sem.Release(e.workers)

	if err := cur.Err(); err != nil {
		return nil, err
	}
	return rowsMu.rows, nil
}

// rowCollector serialises appends from concurrent map invocations.
type rowCollector struct {
	mu   sync.Mutex
	rows []Row
}

func (c *rowCollector) add(r Row) {
	c.mu.Lock()
	c.rows = append(c.rows, r)
	c.mu.Unlock()
}

func applyKeysFilter(rows []Row, keys []interface{}) []Row {
	if len(keys) == 0 {
		return rows
	}
	allowed := make([]interface{}, len(keys))
	copy(allowed, keys)
	out := rows[:0:0]
	for _, r := range rows {
		for _, k := range allowed {
			if CompareValues(r.Key, k) == 0 {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// applyRangeFilter drops rows outside [start_key, end_key] in collation
// order (spec §4.4 step 4). keys takes precedence over range filters per
// CouchDB convention, so this is skipped when Keys was set.
func applyRangeFilter(rows []Row, opts couchdb.ViewOptions) []Row {
	if len(opts.Keys) > 0 {
		return rows
	}
	if opts.StartKey == nil && opts.EndKey == nil {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if opts.StartKey != nil && CompareValues(r.Key, opts.StartKey) < 0 {
			continue
		}
		if opts.StartKey != nil && CompareValues(r.Key, opts.StartKey) == 0 && opts.StartKeyDocID != "" && r.ID < opts.StartKeyDocID {
			continue
		}
		if opts.EndKey != nil && CompareValues(r.Key, opts.EndKey) > 0 {
			continue
		}
		if opts.EndKey != nil && CompareValues(r.Key, opts.EndKey) == 0 && opts.EndKeyDocID != "" && r.ID > opts.EndKeyDocID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func reverseRows(rows []Row) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func windowRows(rows []Row, skip, limit int) []Row {
	if skip > 0 {
		if skip >= len(rows) {
			return nil
		}
		rows = rows[skip:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func windowMaps(rows []map[string]interface{}, skip, limit int) []map[string]interface{} {
	if skip > 0 {
		if skip >= len(rows) {
			return nil
		}
		rows = rows[skip:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// reducePhase partitions rows by key (or group_level prefix, or a single
// partition if group=false) and reduces each partition, falling back to
// rereduce once a partition exceeds the fan-in threshold (spec §4.4 step
// 5). Result order follows group-key collation.
func (e *ViewEngine) reducePhase(ctx context.Context, reduceCompiled *CompiledSource, rows []Row, opts couchdb.ViewOptions) ([]map[string]interface{}, error) {
	partitions := partitionRows(rows, opts)

	groupKeys := make([]interface{}, 0, len(partitions))
	for k := range partitions {
		groupKeys = append(groupKeys, partitions[k].groupKey)
	}
	sort.SliceStable(groupKeys, func(i, j int) bool {
		return CompareValues(groupKeys[i], groupKeys[j]) < 0
	})

	out := make([]map[string]interface{}, 0, len(partitions))
	for _, gk := range groupKeys {
		part := findPartition(partitions, gk)
		val, err := e.reducePartition(ctx, reduceCompiled, part)
		if err != nil {
			return nil, err
		}
		entry := map[string]interface{}{"value": val}
		if opts.Group || opts.GroupLevel > 0 {
			entry["key"] = gk
		}
		out = append(out, entry)
	}
	return out, nil
}

type partition struct {
	groupKey interface{}
	keys     []interface{}
	values   []interface{}
}

func partitionRows(rows []Row, opts couchdb.ViewOptions) map[string]*partition {
	partitions := map[string]*partition{}
	for _, r := range rows {
		var groupKey interface{}
		switch {
		case !opts.Group && opts.GroupLevel == 0:
			groupKey = nil // single partition
		case opts.GroupLevel > 0:
			groupKey = groupLevelPrefix(r.Key, opts.GroupLevel)
		default:
			groupKey = r.Key
		}
		pk := keyString(groupKey)
		p := partitions[pk]
		if p == nil {
			p = &partition{groupKey: groupKey}
			partitions[pk] = p
		}
		p.keys = append(p.keys, r.Key)
		p.values = append(p.values, r.Value)
	}
	return partitions
}

func findPartition(partitions map[string]*partition, groupKey interface{}) *partition {
	return partitions[keyString(groupKey)]
}

func groupLevelPrefix(key interface{}, level int) interface{} {
	arr, ok := key.([]interface{})
	if !ok {
		return key
	}
	if level >= len(arr) {
		return arr
	}
	return arr[:level]
}

// reducePartition reduces a single partition, switching to rereduce once
// it exceeds rereduceFanIn by chunking into batches of that size and
// re-aggregating the partial outputs.
func (e *ViewEngine) reducePartition(ctx context.Context, compiled *CompiledSource, p *partition) (interface{}, error) {
	if len(p.values) <= rereduceFanIn {
		return RunReduce(ctx, compiled, p.keys, p.values, false, runtimeBudget{})
	}

	var partials []interface{}
	for start := 0; start < len(p.values); start += rereduceFanIn {
		end := start + rereduceFanIn
		if end > len(p.values) {
			end = len(p.values)
		}
		chunkKeys := p.keys[start:end]
		chunkValues := p.values[start:end]
		val, err := RunReduce(ctx, compiled, chunkKeys, chunkValues, false, runtimeBudget{})
		if err != nil {
			return nil, err
		}
		partials = append(partials, val)
	}
	return RunReduce(ctx, compiled, nil, partials, true, runtimeBudget{})
}

// attachDocs loads the current body of each row's document id and sets
// row["doc"] (spec §4.4 step 7, a second pass over non-reduced results).
func (e *ViewEngine) attachDocs(ctx context.Context, db string, rows []map[string]interface{}) error {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r["id"].(string))
	}
	cur, err := e.store.FindStream(ctx, db, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	byID := make(map[string]map[string]interface{}, len(ids))
	for cur.Next(ctx) {
		var doc map[string]interface{}
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		if id, ok := doc["_id"].(string); ok {
			byID[id] = doc
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	for _, r := range rows {
		if doc, ok := byID[r["id"].(string)]; ok {
			r["doc"] = doc
		}
	}
	return nil
}
