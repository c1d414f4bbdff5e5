package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"
	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/jobs"
	"github.com/mvp-joe/svdb/internal/preproc"
	"github.com/mvp-joe/svdb/internal/storage"
)

// DefaultFileCacheSize is the number of parsed files kept resident for GetDeclFile.
const DefaultFileCacheSize = 512

// Options configures a BaseIndex.
type Options struct {
	FS fs.Provider

	// Store persists the cache between runs. The index owns it and closes
	// it on Close. Nil keeps the cache in memory only.
	Store *storage.Store

	// Defines are project-wide global defines. Defines from the base
	// location (an argument file) are layered on top.
	Defines      map[string]string
	IncludePaths []string

	// Super resolves includes that none of the local include directories can.
	Super preproc.IncludeResolver

	Markers db.MarkerSink

	// Pool runs root indexing jobs. A private pool is created when nil.
	Pool *jobs.Pool

	MaxExpansionDepth int
	FileCacheSize     int
	Progress          ProgressReporter
	Logger            logrus.FieldLogger
}

var _ Index = (*BaseIndex)(nil)

// BaseIndex is the declaration cache of one base location.
type BaseIndex struct {
	src     SourceSet
	opts    Options
	log     logrus.FieldLogger
	ownPool bool

	// rebuildMu serializes rebuilds; mu guards the published state.
	rebuildMu sync.Mutex
	mu        sync.RWMutex
	snap      *snapshot
	override  *override
	loaded    bool

	files otter.Cache[string, *db.File]

	// trees holds the file tree of each root's last run, for macro
	// resolution at a position.
	trees otter.Cache[string, *preproc.FileTree]
}

type snapshot struct {
	data      *db.BaseIndexCacheData
	globals   *preproc.MacroTable
	includes  *IncludeSearch
	mfcu      bool
	graph     *depGraph
	watchDirs []string

	// fileRoot maps each indexed file to the first root that pulled it in.
	fileRoot map[string]string
}

func newSnapshot(data *db.BaseIndexCacheData, includes *IncludeSearch, mfcu bool, watchDirs []string) *snapshot {
	s := &snapshot{
		data:      data,
		globals:   preproc.NewMacroTableFromDefines(data.GlobalDefines),
		includes:  includes,
		mfcu:      mfcu,
		graph:     newDepGraph(data),
		watchDirs: watchDirs,
		fileRoot:  make(map[string]string),
	}
	for _, root := range data.RootOrder {
		r := data.Roots[root]
		if r == nil || r.IncludedBy != "" {
			continue
		}
		if _, ok := s.fileRoot[root]; !ok {
			s.fileRoot[root] = root
		}
		for f := range r.Files {
			if _, ok := s.fileRoot[f]; !ok {
				s.fileRoot[f] = root
			}
		}
	}
	return s
}

// contextFor returns the macros visible when root starts: the globals, plus
// in a multi-file compilation unit whatever the roots before it left defined.
func (s *snapshot) contextFor(root string) *preproc.MacroTable {
	tbl := s.globals.Clone()
	if !s.mfcu {
		return tbl
	}
	for _, p := range s.data.RootOrder {
		if p == root {
			break
		}
		if r := s.data.Roots[p]; r != nil {
			tbl.Apply(r.Defines, s.globals)
		}
	}
	return tbl
}

// NewBaseIndex creates an index over src. Nothing is read until the first
// Rebuild.
func NewBaseIndex(src SourceSet, opts Options) (*BaseIndex, error) {
	if opts.FS == nil {
		opts.FS = fs.NewOS()
	}
	if opts.Markers == nil {
		opts.Markers = db.NopMarkerSink{}
	}
	if opts.Progress == nil {
		opts.Progress = NoOpProgressReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.FileCacheSize <= 0 {
		opts.FileCacheSize = DefaultFileCacheSize
	}

	files, err := otter.MustBuilder[string, *db.File](opts.FileCacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}
	trees, err := otter.MustBuilder[string, *preproc.FileTree](opts.FileCacheSize).Build()
	if err != nil {
		files.Close()
		return nil, fmt.Errorf("failed to create file tree cache: %w", err)
	}

	b := &BaseIndex{
		src:   src,
		opts:  opts,
		log:   opts.Logger.WithFields(logrus.Fields{"index": src.Location(), "kind": src.Kind()}),
		files: files,
		trees: trees,
	}
	if opts.Pool == nil {
		b.opts.Pool = jobs.NewPool(jobs.DefaultMaxWorkers, jobs.DefaultIdleTimeout, opts.Logger)
		b.ownPool = true
	}

	data := db.NewBaseIndexCacheData(src.Location())
	b.snap = newSnapshot(data, NewIncludeSearch(opts.FS, nil, opts.Super), false, nil)
	return b, nil
}

func (b *BaseIndex) Kind() string         { return b.src.Kind() }
func (b *BaseIndex) BaseLocation() string { return b.src.Location() }

func (b *BaseIndex) current() (*snapshot, *override) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap, b.override
}

// Generation returns the tag of the published snapshot.
func (b *BaseIndex) Generation() string {
	s, _ := b.current()
	return s.data.Generation
}

func (b *BaseIndex) Rebuild(ctx context.Context) (*Stats, error) {
	return b.rebuild(ctx, nil)
}

func (b *BaseIndex) Refresh(ctx context.Context, changed []string) (*Stats, error) {
	s, _ := b.current()
	force := make(map[string]bool)
	for _, r := range s.graph.DependentRoots(changed) {
		force[r] = true
	}
	return b.rebuild(ctx, force)
}

// previous returns the data the rebuild can reuse: the published snapshot,
// or on the first rebuild whatever the store holds.
func (b *BaseIndex) previous() *db.BaseIndexCacheData {
	s, _ := b.current()
	if b.loaded || b.opts.Store == nil {
		b.loaded = true
		if len(s.data.Roots) == 0 {
			return nil
		}
		return s.data
	}
	b.loaded = true

	data, err := b.opts.Store.Load()
	switch {
	case err == nil:
		b.log.WithField("generation", data.Generation).Debug("loaded cached index")
		return data
	case errors.Is(err, storage.ErrNoCache):
		return nil
	case errors.Is(err, storage.ErrCacheVersionMismatch):
		b.log.Infof("Cache format changed, rebuilding: %v", err)
		return nil
	default:
		b.log.Warnf("Warning: failed to load cache, rebuilding: %v", err)
		return nil
	}
}

type rootResult struct {
	record    *db.RootRecord
	files     map[string]*db.File
	tree      *preproc.FileTree
	markers   []db.Marker
	reindexed bool
}

func (b *BaseIndex) rebuild(ctx context.Context, force map[string]bool) (*Stats, error) {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	start := time.Now()
	loc := b.src.Location()
	prev := b.previous()

	b.opts.Progress.OnDiscoveryStart(loc)
	srcs, err := b.src.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", loc, err)
	}
	b.opts.Progress.OnDiscoveryComplete(len(srcs.Roots))

	defines := make(map[string]string, len(b.opts.Defines)+len(srcs.Defines))
	for k, v := range b.opts.Defines {
		defines[k] = v
	}
	for k, v := range srcs.Defines {
		defines[k] = v
	}
	var includeDirs []string
	for _, d := range append(append([]string(nil), srcs.IncludeDirs...), b.opts.IncludePaths...) {
		includeDirs = append(includeDirs, b.opts.FS.ResolvePath(d, ""))
	}

	data := db.NewBaseIndexCacheData(loc)
	data.IncludePaths = includeDirs
	data.GlobalDefines = defines
	data.RootOrder = b.rootOrder(srcs.Roots)

	if prev != nil && !equalStrings(prev.IncludePaths, includeDirs) {
		b.log.Debug("include paths changed, reindexing every root")
		prev = nil
	}

	globals := preproc.NewMacroTableFromDefines(defines)
	includes := NewIncludeSearch(b.opts.FS, includeDirs, b.opts.Super)

	results := make([]*rootResult, len(data.RootOrder))
	if srcs.MFCU {
		err = b.indexSequential(ctx, data.RootOrder, prev, force, globals, includes, results)
	} else {
		err = b.indexParallel(ctx, data.RootOrder, prev, force, globals, includes, results)
	}
	if err != nil {
		return nil, err
	}

	stats := &Stats{Location: loc, Roots: len(data.RootOrder)}
	for i, root := range data.RootOrder {
		data.Roots[root] = results[i].record
		if results[i].reindexed {
			stats.Reindexed++
		} else {
			stats.Reused++
		}
	}
	if !srcs.MFCU {
		stats.Pruned = pruneIncludedRoots(data)
	}

	changed := prev == nil || stats.Reindexed > 0 ||
		!equalStrings(prev.RootOrder, data.RootOrder) || !equalDefines(prev.GlobalDefines, defines)
	if !changed {
		for _, root := range data.RootOrder {
			if p := prev.Roots[root]; p == nil || p.IncludedBy != data.Roots[root].IncludedBy {
				changed = true
				break
			}
		}
	}
	if changed {
		data.Generation = uuid.New().String()
	} else {
		data.Generation = prev.Generation
	}

	b.publishMarkers(prev, data, results)

	snap := newSnapshot(data, includes, srcs.MFCU, srcs.WatchDirs)
	nfiles, nedges := snap.graph.Size()
	b.log.WithFields(logrus.Fields{"files": nfiles, "includes": nedges}).Debug("include graph built")
	b.mu.Lock()
	b.snap = snap
	b.mu.Unlock()

	for _, r := range results {
		b.keep(r)
	}

	if changed && b.opts.Store != nil {
		if err := b.opts.Store.Save(data); err != nil {
			b.log.Warnf("Warning: failed to save cache: %v", err)
		}
	}

	for _, root := range data.RootOrder {
		if r := data.Roots[root]; r.IncludedBy == "" {
			stats.Decls += len(r.Decls)
			stats.Missing += len(r.Missing)
		}
	}
	stats.Files = len(snap.fileRoot)
	stats.Generation = data.Generation
	stats.Duration = time.Since(start)

	b.log.WithFields(logrus.Fields{
		"roots":     stats.Roots,
		"reindexed": stats.Reindexed,
		"decls":     stats.Decls,
		"duration":  stats.Duration,
	}).Info("index rebuilt")
	b.opts.Progress.OnComplete(stats)
	return stats, nil
}

// keep makes the symbol files and file tree of a run resident. A root
// that failed to open has no tree; a stale one is dropped.
func (b *BaseIndex) keep(r *rootResult) {
	for path, f := range r.files {
		b.files.Set(path, f)
	}
	switch {
	case r.tree != nil:
		b.trees.Set(r.record.Path, r.tree)
	case r.reindexed:
		b.trees.Delete(r.record.Path)
	}
}

func (b *BaseIndex) rootOrder(roots []string) []string {
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		p := b.opts.FS.ResolvePath(r, "")
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// indexSequential processes the roots of a multi-file compilation unit in
// order. Each root sees the macros left by the roots before it.
func (b *BaseIndex) indexSequential(ctx context.Context, roots []string, prev *db.BaseIndexCacheData,
	force map[string]bool, globals *preproc.MacroTable, includes *IncludeSearch, results []*rootResult) error {
	ctxTable := globals.Clone()
	for i, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := b.processRoot(ctx, root, prev, force, globals, ctxTable.Clone(), includes)
		if err != nil {
			return err
		}
		results[i] = r
		ctxTable.Apply(r.record.Defines, globals)
	}
	return nil
}

// indexParallel processes independent roots on the job pool.
func (b *BaseIndex) indexParallel(ctx context.Context, roots []string, prev *db.BaseIndexCacheData,
	force map[string]bool, globals *preproc.MacroTable, includes *IncludeSearch, results []*rootResult) error {
	var wg sync.WaitGroup
	errs := make([]error, len(roots))

	for i, root := range roots {
		wg.Add(1)
		err := b.opts.Pool.Submit(ctx, func() {
			defer wg.Done()
			results[i], errs[i] = b.processRoot(ctx, root, prev, force, globals, globals, includes)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// processRoot reuses the cached record of root when it is current, and
// reindexes it otherwise.
func (b *BaseIndex) processRoot(ctx context.Context, root string, prev *db.BaseIndexCacheData,
	force map[string]bool, globals *preproc.MacroTable, macros preproc.MacroProvider, includes *IncludeSearch) (*rootResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached *db.RootRecord
	if prev != nil {
		cached = prev.Roots[root]
	}
	if cached != nil && !force[root] && !b.stale(cached, globals, macros, includes) {
		b.opts.Progress.OnRootProcessed(root, false)
		return &rootResult{record: cached.Clone()}, nil
	}

	r, err := b.indexRoot(ctx, root, globals, macros, includes, b.opts.FS)
	if err != nil {
		return nil, err
	}
	b.opts.Progress.OnRootProcessed(root, true)
	return r, nil
}

// stale reports whether a cached root must be reindexed: a file of its
// tree changed or vanished, a macro it took from outside now resolves
// differently, or an include that was missing can now be found.
func (b *BaseIndex) stale(r *db.RootRecord, globals *preproc.MacroTable, macros preproc.MacroProvider, includes *IncludeSearch) bool {
	for path, mtime := range r.Files {
		t, err := b.opts.FS.LastModified(path)
		if err != nil || t.UnixNano() != mtime {
			b.log.WithField("file", path).Debug("file changed")
			return true
		}
	}
	if name, ok := changedRef(r.RefMacros, macros); ok {
		b.log.WithFields(logrus.Fields{"root": r.Path, "macro": name}).Debug("referenced macro changed")
		return true
	}
	if name, ok := changedRef(r.GlobalRefs, globals); ok {
		b.log.WithFields(logrus.Fields{"root": r.Path, "macro": name}).Debug("referenced global define changed")
		return true
	}
	for _, m := range r.Missing {
		if _, ok := includes.ResolveInclude(m.File, m.Include); ok {
			return true
		}
	}
	return false
}

// changedRef returns the first recorded reference that macros no longer
// resolves to the same text.
func changedRef(refs map[string]*string, macros preproc.MacroProvider) (string, bool) {
	for name, text := range refs {
		m := macros.FindMacro(name, 0)
		switch {
		case m == nil && text == nil:
		case m != nil && text != nil && m.Text() == *text:
		default:
			return name, true
		}
	}
	return "", false
}

// indexRoot preprocesses and parses one root. Failing to open the root is
// reported as a marker; the record keeps the root with a zero timestamp so
// the next rebuild retries it.
func (b *BaseIndex) indexRoot(ctx context.Context, root string, globals *preproc.MacroTable,
	macros preproc.MacroProvider, includes *IncludeSearch, opener preproc.FileOpener) (*rootResult, error) {
	pp := preproc.New(preproc.Config{
		Includes:          includes,
		Opener:            opener,
		Globals:           globals,
		Context:           macros,
		MaxExpansionDepth: b.opts.MaxExpansionDepth,
		Logger:            b.log,
	})

	res, err := pp.PreprocessFile(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		b.log.WithField("root", root).Warnf("Warning: %v", err)
		return &rootResult{
			record: &db.RootRecord{
				Path:      root,
				Files:     map[string]int64{root: 0},
				RefMacros: map[string]*string{},
			},
			markers:   []db.Marker{{Path: root, Severity: db.SeverityError, Line: 1, Message: err.Error()}},
			reindexed: true,
		}, nil
	}

	paths := res.Files()
	mtimes := make(map[string]int64, len(paths))
	for _, p := range paths {
		if t, err := b.opts.FS.LastModified(p); err == nil {
			mtimes[p] = t.UnixNano()
		} else {
			mtimes[p] = 0
		}
	}

	files := symbolFiles(res)
	return &rootResult{
		record: &db.RootRecord{
			Path:       root,
			Files:      mtimes,
			Tree:       res.Tree.Edges(),
			Defines:    res.Defines,
			RefMacros:  res.ExternalRefs,
			GlobalRefs: res.GlobalRefs,
			Decls:      collectDecls(paths, files),
			Missing:    res.Missing,
		},
		files:     files,
		tree:      res.Tree,
		markers:   res.Markers,
		reindexed: true,
	}, nil
}

// publishMarkers replaces the markers of every file of every reindexed
// root and drops those of roots that are gone.
func (b *BaseIndex) publishMarkers(prev, data *db.BaseIndexCacheData, results []*rootResult) {
	if prev != nil {
		for path, r := range prev.Roots {
			if _, ok := data.Roots[path]; ok {
				continue
			}
			for f := range r.Files {
				b.opts.Markers.ClearMarkers(f)
			}
		}
	}
	for _, r := range results {
		if !r.reindexed {
			continue
		}
		for path := range r.record.Files {
			b.opts.Markers.ClearMarkers(path)
		}
	}
	for _, r := range results {
		if r.record.IncludedBy != "" {
			continue
		}
		for _, m := range r.markers {
			b.opts.Markers.AddMarker(m.Path, m.Severity, m.Line, m.Message)
		}
	}
}

// pruneIncludedRoots marks roots that another unmarked root includes;
// their declarations already come in through the includer. Marked roots
// stay cached so they are not reindexed on every rebuild. It returns the
// number of roots marked.
func pruneIncludedRoots(data *db.BaseIndexCacheData) int {
	g := newDepGraph(data)
	n := 0
	for _, root := range data.RootOrder {
		r := data.Roots[root]
		r.IncludedBy = ""
		for _, includer := range g.DependentRoots([]string{root}) {
			if includer != root && data.Roots[includer].IncludedBy == "" {
				r.IncludedBy = includer
				n++
				break
			}
		}
	}
	return n
}

// Close stops the private job pool and releases the resident caches and
// the store.
func (b *BaseIndex) Close() error {
	if b.ownPool {
		b.opts.Pool.Close()
	}
	b.files.Close()
	b.trees.Close()
	if b.opts.Store != nil {
		return b.opts.Store.Close()
	}
	return nil
}

// WatchDirs returns the directories whose changes can affect the index.
func (b *BaseIndex) WatchDirs() []string {
	s, _ := b.current()
	return append([]string(nil), s.watchDirs...)
}

func (b *BaseIndex) ResolveLocal(fromPath, name string) (string, bool) {
	s, _ := b.current()
	return s.includes.ResolveLocal(fromPath, name)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalDefines(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
