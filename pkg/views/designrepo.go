package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/couchmongo/bridge/pkg/couchdb"
	"github.com/couchmongo/bridge/pkg/logger"
)

// DocReader is the narrow slice of DocEngine that DesignRepo needs to
// fall back to stored design documents when no filesystem source exists
// (spec §4.2 source order: filesystem, then stored design docs).
type DocReader interface {
	Get(ctx context.Context, db, id, rev string) (*couchdb.JSONDoc, error)
}

// ViewSource is one named view's map (and optional reduce) source.
type ViewSource struct {
	Name   string
	MapSrc string
	ReduceSrc string
}

// UpdateSource is one named update function's source.
type UpdateSource struct {
	Name string
	Src  string
}

type designEntry struct {
	views       map[string]ViewSource
	updates     map[string]UpdateSource
	compiled    map[string]*CompiledSource // memoised across views/reduces/updates, keyed by "kind:name"
	compiledMu  sync.Mutex
}

// DesignRepo holds the set of {db -> design -> {views, updates}},
// populated from a filesystem tree and hot-reloaded on a polling
// interval (spec §4.2). It falls back to stored design documents read
// through DocReader when no filesystem entry exists for a given
// db/design pair.
type DesignRepo struct {
	viewsRoot   string
	updatesRoot string
	pollEvery   time.Duration
	reader      DocReader
	log         *logger.Entry

	mu      sync.RWMutex
	entries map[string]*designEntry // key "db/design"

	mtimes map[string]time.Time // per-file mtime, for change detection

	stop chan struct{}
}

// NewDesignRepo builds a DesignRepo rooted at viewsRoot/updatesRoot
// (spec §4.2's two filesystem directories). reader may be nil if no
// stored-design-document fallback is needed.
func NewDesignRepo(viewsRoot, updatesRoot string, pollEvery time.Duration, reader DocReader) *DesignRepo {
	if pollEvery <= 0 {
		pollEvery = 30 * time.Second
	}
	return &DesignRepo{
		viewsRoot:   viewsRoot,
		updatesRoot: updatesRoot,
		pollEvery:   pollEvery,
		reader:      reader,
		log:         logger.WithNamespace("designrepo"),
		entries:     map[string]*designEntry{},
		mtimes:      map[string]time.Time{},
		stop:        make(chan struct{}),
	}
}

// Start walks the filesystem once and then polls mtimes on an interval,
// reloading changed entries. It returns immediately; reloading happens on
// a background goroutine until Close is called.
func (r *DesignRepo) Start() error {
	if err := r.reload(); err != nil {
		return err
	}
	go r.pollLoop()
	return nil
}

// Close stops the background poll loop.
func (r *DesignRepo) Close() {
	close(r.stop)
}

func (r *DesignRepo) pollLoop() {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.reload(); err != nil {
				r.log.WithField("error", err).Warn("designrepo: reload failed")
			}
		case <-r.stop:
			return
		}
	}
}

// reload walks both filesystem roots and rebuilds the entries whose
// constituent file mtimes changed since the last walk. Entries untouched
// since the last walk (and their memoised compiled sources) are left
// alone, per spec §4.2's "invalidation replaces the entry wholesale" for
// changed files only.
func (r *DesignRepo) reload() error {
	next := map[string]*designEntry{}
	changed := map[string]bool{}

	if err := r.walkViews(next, changed); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("walk views root: %w", err)
	}
	if err := r.walkUpdates(next, changed); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("walk updates root: %w", err)
	}

	r.mu.Lock()
	for key, entry := range next {
		if changed[key] || r.entries[key] == nil {
			r.entries[key] = entry
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *DesignRepo) walkViews(next map[string]*designEntry, changed map[string]bool) error {
	return filepath.Walk(r.viewsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.viewsRoot, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		db, design, file := parts[0], parts[1], parts[2]
		name, kind, ok := splitViewFile(file)
		if !ok {
			return nil
		}

		key := db + "/" + design
		entry := next[key]
		if entry == nil {
			entry = r.getOrInitEntry(key)
			next[key] = entry
		}

		if r.fileChanged(path, info) {
			changed[key] = true
		}

		view := entry.views[name]
		view.Name = name
		src, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if kind == "map" {
			view.MapSrc = string(src)
		} else {
			view.ReduceSrc = string(src)
		}
		entry.views[name] = view
		return nil
	})
}

func (r *DesignRepo) walkUpdates(next map[string]*designEntry, changed map[string]bool) error {
	return filepath.Walk(r.updatesRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.updatesRoot, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		db, design, file := parts[0], parts[1], parts[2]
		if !strings.HasSuffix(file, ".js") {
			return nil
		}
		name := strings.TrimSuffix(file, ".js")

		key := db + "/" + design
		entry := next[key]
		if entry == nil {
			entry = r.getOrInitEntry(key)
			next[key] = entry
		}
		if r.fileChanged(path, info) {
			changed[key] = true
		}

		src, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		entry.updates[name] = UpdateSource{Name: name, Src: string(src)}
		return nil
	})
}

func (r *DesignRepo) getOrInitEntry(key string) *designEntry {
	r.mu.RLock()
	existing := r.entries[key]
	r.mu.RUnlock()
	if existing != nil {
		return &designEntry{
			views:    copyViews(existing.views),
			updates:  copyUpdates(existing.updates),
			compiled: map[string]*CompiledSource{},
		}
	}
	return &designEntry{views: map[string]ViewSource{}, updates: map[string]UpdateSource{}, compiled: map[string]*CompiledSource{}}
}

func copyViews(m map[string]ViewSource) map[string]ViewSource {
	out := make(map[string]ViewSource, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyUpdates(m map[string]UpdateSource) map[string]UpdateSource {
	out := make(map[string]UpdateSource, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *DesignRepo) fileChanged(path string, info os.FileInfo) bool {
	prev, ok := r.mtimes[path]
	mtime := info.ModTime()
	r.mtimes[path] = mtime
	return !ok || mtime.After(prev)
}

func splitViewFile(file string) (name, kind string, ok bool) {
	switch {
	case strings.HasSuffix(file, ".map.js"):
		return strings.TrimSuffix(file, ".map.js"), "map", true
	case strings.HasSuffix(file, ".reduce.js"):
		return strings.TrimSuffix(file, ".reduce.js"), "reduce", true
	default:
		return "", "", false
	}
}

// LookupView resolves {map_src, reduce_src?} for db/design/name,
// checking the filesystem-backed cache first and falling back to a
// stored design document (spec §4.2 source order).
func (r *DesignRepo) LookupView(ctx context.Context, db, design, name string) (*ViewSource, error) {
	key := db + "/" + design
	r.mu.RLock()
	entry := r.entries[key]
	r.mu.RUnlock()
	if entry != nil {
		if v, ok := entry.views[name]; ok {
			return &v, nil
		}
	}

	if r.reader == nil {
		return nil, fmt.Errorf("view %s/%s/%s not found", db, design, name)
	}
	return r.lookupStoredView(ctx, db, design, name)
}

// LookupUpdate resolves the source for db/design/name, same fallback
// order as LookupView.
func (r *DesignRepo) LookupUpdate(ctx context.Context, db, design, name string) (*UpdateSource, error) {
	key := db + "/" + design
	r.mu.RLock()
	entry := r.entries[key]
	r.mu.RUnlock()
	if entry != nil {
		if u, ok := entry.updates[name]; ok {
			return &u, nil
		}
	}

	if r.reader == nil {
		return nil, fmt.Errorf("update function %s/%s/%s not found", db, design, name)
	}
	return r.lookupStoredUpdate(ctx, db, design, name)
}

func (r *DesignRepo) lookupStoredView(ctx context.Context, db, design, name string) (*ViewSource, error) {
	doc, err := r.reader.Get(ctx, db, "_design/"+design, "")
	if err != nil {
		return nil, err
	}
	views, _ := doc.Get("views").(map[string]interface{})
	raw, ok := views[name].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("view %s/%s/%s not found", db, design, name)
	}
	view := ViewSource{Name: name}
	if m, ok := raw["map"].(string); ok {
		view.MapSrc = m
	}
	if red, ok := raw["reduce"].(string); ok {
		view.ReduceSrc = red
	}
	return &view, nil
}

func (r *DesignRepo) lookupStoredUpdate(ctx context.Context, db, design, name string) (*UpdateSource, error) {
	doc, err := r.reader.Get(ctx, db, "_design/"+design, "")
	if err != nil {
		return nil, err
	}
	updates, _ := doc.Get("updates").(map[string]interface{})
	src, ok := updates[name].(string)
	if !ok {
		return nil, fmt.Errorf("update function %s/%s/%s not found", db, design, name)
	}
	return &UpdateSource{Name: name, Src: src}, nil
}

// compiledFor returns the memoised *CompiledSource for one map, reduce or
// update source of a design entry, compiling on first use (spec §4.2:
// "compiled lazily").
func (r *DesignRepo) compiledFor(key, kind, name, src string) (*CompiledSource, error) {
	r.mu.RLock()
	entry := r.entries[key]
	r.mu.RUnlock()
	if entry == nil {
		return Compile(kind+":"+name, src)
	}

	cacheKey := kind + ":" + name
	entry.compiledMu.Lock()
	defer entry.compiledMu.Unlock()
	if c, ok := entry.compiled[cacheKey]; ok {
		return c, nil
	}
	c, err := Compile(cacheKey, src)
	if err != nil {
		return nil, err
	}
	entry.compiled[cacheKey] = c
	return c, nil
}
