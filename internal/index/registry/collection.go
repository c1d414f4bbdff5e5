package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/index"
	"github.com/mvp-joe/svdb/internal/jobs"
	"github.com/mvp-joe/svdb/internal/storage"
)

// Options configures a CollectionMgr. Every index it creates shares the
// job pool, the marker sink and the global defines.
type Options struct {
	Registry *Registry
	FS       fs.Provider

	// CacheRoot holds one persisted cache per base location. Empty keeps
	// every cache in memory.
	CacheRoot string

	Defines      map[string]string
	IncludePaths []string
	Markers      db.MarkerSink

	Workers           int
	IdleTimeout       time.Duration
	MaxExpansionDepth int
	FileCacheSize     int
	Progress          index.ProgressReporter
	Logger            logrus.FieldLogger
}

// CollectionMgr composes several indices into one query surface. Includes
// that an index cannot resolve with its own include directories escalate
// to the other indices of the collection.
type CollectionMgr struct {
	opts Options
	log  logrus.FieldLogger
	pool *jobs.Pool

	mu      sync.RWMutex
	indices []index.Index
}

// NewCollectionMgr creates an empty collection.
func NewCollectionMgr(opts Options) *CollectionMgr {
	if opts.Registry == nil {
		opts.Registry = New()
	}
	if opts.FS == nil {
		opts.FS = fs.NewOS()
	}
	if opts.Markers == nil {
		opts.Markers = db.NopMarkerSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &CollectionMgr{
		opts: opts,
		log:  opts.Logger,
		pool: jobs.NewPool(opts.Workers, opts.IdleTimeout, opts.Logger),
	}
}

// Add creates the index described by spec and adds it to the collection.
// Nothing is indexed until Rebuild.
func (m *CollectionMgr) Add(spec Spec) (index.Index, error) {
	opts := index.Options{
		FS:                m.opts.FS,
		Defines:           m.opts.Defines,
		IncludePaths:      m.opts.IncludePaths,
		Super:             superResolver{m: m},
		Markers:           m.opts.Markers,
		Pool:              m.pool,
		MaxExpansionDepth: m.opts.MaxExpansionDepth,
		FileCacheSize:     m.opts.FileCacheSize,
		Progress:          m.opts.Progress,
		Logger:            m.log,
	}
	if m.opts.CacheRoot != "" {
		location := m.opts.FS.ResolvePath(spec.Location, "")
		st, err := storage.Open(storage.CachePath(m.opts.CacheRoot, location))
		if err != nil {
			return nil, fmt.Errorf("failed to open cache for %s: %w", spec.Location, err)
		}
		opts.Store = st
	}

	idx, err := m.opts.Registry.Create(spec, opts)
	if err != nil {
		if opts.Store != nil {
			opts.Store.Close()
		}
		return nil, err
	}

	m.mu.Lock()
	m.indices = append(m.indices, idx)
	m.mu.Unlock()
	return idx, nil
}

// Indices returns the indices in the order they were added.
func (m *CollectionMgr) Indices() []index.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]index.Index(nil), m.indices...)
}

// Rebuild rebuilds every index concurrently. Stats come back in index order.
func (m *CollectionMgr) Rebuild(ctx context.Context) ([]*index.Stats, error) {
	return m.each(ctx, func(ctx context.Context, idx index.Index) (*index.Stats, error) {
		return idx.Rebuild(ctx)
	})
}

// Refresh is Rebuild with the changed files handed to every index.
func (m *CollectionMgr) Refresh(ctx context.Context, changed []string) ([]*index.Stats, error) {
	return m.each(ctx, func(ctx context.Context, idx index.Index) (*index.Stats, error) {
		return idx.Refresh(ctx, changed)
	})
}

func (m *CollectionMgr) each(ctx context.Context, fn func(context.Context, index.Index) (*index.Stats, error)) ([]*index.Stats, error) {
	indices := m.Indices()
	stats := make([]*index.Stats, len(indices))

	g, ctx := errgroup.WithContext(ctx)
	for i, idx := range indices {
		g.Go(func() error {
			s, err := fn(ctx, idx)
			if err != nil {
				return fmt.Errorf("%s: %w", idx.BaseLocation(), err)
			}
			stats[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// superResolver lets one index find includes in the others.
type superResolver struct {
	m *CollectionMgr
}

func (s superResolver) ResolveInclude(fromPath, name string) (string, bool) {
	for _, idx := range s.m.Indices() {
		if path, ok := idx.ResolveLocal(fromPath, name); ok {
			return path, true
		}
	}
	return "", false
}

// FindGlobalScopeDecl collects matches from every index.
func (m *CollectionMgr) FindGlobalScopeDecl(ctx context.Context, name string, matcher index.Matcher) []db.DeclCacheItem {
	var out []db.DeclCacheItem
	for _, idx := range m.Indices() {
		if ctx.Err() != nil {
			break
		}
		out = append(out, idx.FindGlobalScopeDecl(ctx, name, matcher)...)
	}
	return out
}

// FindPackageDecl asks the index that owns pkg first. A package no index
// claims is looked up everywhere.
func (m *CollectionMgr) FindPackageDecl(ctx context.Context, pkg db.DeclCacheItem) []db.DeclCacheItem {
	if idx := m.owner(pkg); idx != nil {
		return idx.FindPackageDecl(ctx, pkg)
	}
	var out []db.DeclCacheItem
	for _, idx := range m.Indices() {
		out = append(out, idx.FindPackageDecl(ctx, pkg)...)
	}
	return out
}

// FindSuperClass resolves in the index that owns cls, then in the others.
func (m *CollectionMgr) FindSuperClass(ctx context.Context, cls db.DeclCacheItem) *db.DeclCacheItem {
	owner := m.owner(cls)
	if owner != nil {
		if d := owner.FindSuperClass(ctx, cls); d != nil {
			return d
		}
	}
	for _, idx := range m.Indices() {
		if idx == owner {
			continue
		}
		if d := idx.FindSuperClass(ctx, cls); d != nil {
			return d
		}
	}
	return nil
}

// GetDeclFile loads the symbol file of item from the index that owns it.
func (m *CollectionMgr) GetDeclFile(ctx context.Context, item db.DeclCacheItem) (*db.File, error) {
	if idx := m.owner(item); idx != nil {
		return idx.GetDeclFile(ctx, item)
	}
	for _, idx := range m.Indices() {
		f, err := idx.GetDeclFile(ctx, item)
		if err != nil || f != nil {
			return f, err
		}
	}
	return nil, nil
}

func (m *CollectionMgr) owner(item db.DeclCacheItem) index.Index {
	if item.Index == "" {
		return nil
	}
	for _, idx := range m.Indices() {
		if idx.BaseLocation() == item.Index {
			return idx
		}
	}
	return nil
}

// FindIncludedFile returns the matching files of every index, sorted and
// without duplicates.
func (m *CollectionMgr) FindIncludedFile(name string, matcher index.Matcher) []string {
	seen := make(map[string]bool)
	var out []string
	for _, idx := range m.Indices() {
		for _, f := range idx.FindIncludedFile(name, matcher) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

// FindMacro returns the definition from the first index that has one.
func (m *CollectionMgr) FindMacro(name string) *db.MacroDef {
	for _, idx := range m.Indices() {
		if d := idx.FindMacro(name); d != nil {
			return d
		}
	}
	return nil
}

// FindMacroAt asks the index that holds path for the definition of name
// visible at line. It returns nil when no index holds path.
func (m *CollectionMgr) FindMacroAt(ctx context.Context, name, path string, line int) (*db.MacroDef, error) {
	path = m.opts.FS.ResolvePath(path, "")
	for _, idx := range m.Indices() {
		if containsFile(idx.Files(), path) {
			return idx.FindMacroAt(ctx, name, path, line)
		}
	}
	return nil, nil
}

func (m *CollectionMgr) MacroNames(query string, matcher index.Matcher) []string {
	seen := make(map[string]bool)
	var out []string
	for _, idx := range m.Indices() {
		for _, n := range idx.MacroNames(query, matcher) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ForEachDecl visits the declarations of every index until fn returns false.
func (m *CollectionMgr) ForEachDecl(fn func(db.DeclCacheItem) bool) {
	stopped := false
	for _, idx := range m.Indices() {
		idx.ForEachDecl(func(d db.DeclCacheItem) bool {
			if !fn(d) {
				stopped = true
			}
			return !stopped
		})
		if stopped {
			return
		}
	}
}

func (m *CollectionMgr) MissingIncludes() []db.MissingInclude {
	var out []db.MissingInclude
	for _, idx := range m.Indices() {
		out = append(out, idx.MissingIncludes()...)
	}
	return out
}

// Files returns the files of every index, sorted and without duplicates.
func (m *CollectionMgr) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, idx := range m.Indices() {
		for _, f := range idx.Files() {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

// WatchDirs returns the union of the indices' watch directories.
func (m *CollectionMgr) WatchDirs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, idx := range m.Indices() {
		for _, d := range idx.WatchDirs() {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Strings(out)
	return out
}

// SetOverride hands the edit to the index that holds path, or to the first
// index when none does. Any other override in the collection is cleared.
func (m *CollectionMgr) SetOverride(ctx context.Context, path, text string) ([]db.Marker, error) {
	indices := m.Indices()
	if len(indices) == 0 {
		return nil, errors.New("no index in collection")
	}
	path = m.opts.FS.ResolvePath(path, "")
	target := indices[0]
	for _, idx := range indices {
		if containsFile(idx.Files(), path) {
			target = idx
			break
		}
	}
	for _, idx := range indices {
		if idx != target {
			idx.ClearOverride()
		}
	}
	return target.SetOverride(ctx, path, text)
}

func (m *CollectionMgr) ClearOverride() {
	for _, idx := range m.Indices() {
		idx.ClearOverride()
	}
}

func containsFile(sorted []string, path string) bool {
	i := sort.SearchStrings(sorted, path)
	return i < len(sorted) && sorted[i] == path
}

// Close closes every index and stops the shared job pool.
func (m *CollectionMgr) Close() error {
	m.mu.Lock()
	indices := m.indices
	m.indices = nil
	m.mu.Unlock()

	var errs []error
	for _, idx := range indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", idx.BaseLocation(), err))
		}
	}
	m.pool.Close()
	return errors.Join(errs...)
}
