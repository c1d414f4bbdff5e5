package index

import (
	"context"
	"io"
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/preproc"
)

// override is the in-memory result of reindexing with an unsaved edit
// substituted for the file on disk.
type override struct {
	path   string
	record *db.RootRecord
	files  map[string]*db.File

	// tree is the file tree of the overridden run and base the macros
	// visible where it starts.
	tree *preproc.FileTree
	base *preproc.MacroTable
}

// overlayOpener serves text for path and the file system for everything else.
type overlayOpener struct {
	fs   fs.Provider
	path string
	text string
}

func (o overlayOpener) Open(path string) (io.ReadCloser, error) {
	if path == o.path {
		return io.NopCloser(strings.NewReader(o.text)), nil
	}
	return o.fs.Open(path)
}

// SetOverride substitutes text for the file at path in every lookup until
// ClearOverride, replacing any earlier override. The cache and the store
// are left untouched. A path the index does not know is treated as a root
// of its own. The returned markers are those of the overridden run.
//
// A root is reindexed in memory. A header is preprocessed again on its
// own, in the macro context of the point where its root includes it, and
// its declarations replace the header's in the root's record.
func (b *BaseIndex) SetOverride(ctx context.Context, path, text string) ([]db.Marker, error) {
	path = b.opts.FS.ResolvePath(path, "")
	s, _ := b.current()

	root, ok := s.fileRoot[path]
	if !ok {
		root = path
	}

	var ov *override
	var markers []db.Marker
	var err error
	if root != path {
		ov, markers, err = b.overrideHeader(ctx, s, root, path, text)
	}
	if ov == nil && err == nil {
		ov, markers, err = b.overrideRoot(ctx, s, root, path, text)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.override = ov
	b.mu.Unlock()
	return markers, nil
}

func (b *BaseIndex) overrideRoot(ctx context.Context, s *snapshot, root, path, text string) (*override, []db.Marker, error) {
	macros := s.contextFor(root)
	r, err := b.indexRoot(ctx, root, s.globals, macros, s.includes, overlayOpener{fs: b.opts.FS, path: path, text: text})
	if err != nil {
		return nil, nil, err
	}
	return &override{path: path, record: r.record, files: r.files, tree: r.tree, base: macros}, r.markers, nil
}

// overrideHeader returns nil without an error when the header's place in
// root's file tree is unknown; the caller then reindexes the whole root.
func (b *BaseIndex) overrideHeader(ctx context.Context, s *snapshot, root, path, text string) (*override, []db.Marker, error) {
	cached := s.data.Roots[root]
	if cached == nil {
		return nil, nil, nil
	}
	tree, err := b.rootTree(ctx, s, root)
	if err != nil || tree == nil {
		return nil, nil, err
	}
	node := tree.FindPath(path)
	if node == preproc.NoNode {
		return nil, nil, nil
	}

	// The published tree is shared with readers; duplicate into a copy.
	work := tree.Clone()
	at := work.Duplicate(node)
	ancestors := preproc.NewFileTreeMacroProvider(work, at, s.globals).WithBase(s.contextFor(root)).AncestorsOnly()

	pp := preproc.New(preproc.Config{
		Includes:          s.includes,
		Opener:            b.opts.FS,
		Globals:           s.globals,
		Context:           ancestors,
		MaxExpansionDepth: b.opts.MaxExpansionDepth,
		Logger:            b.log,
	})
	res, err := pp.Preprocess(ctx, path, strings.NewReader(text))
	if err != nil {
		return nil, nil, err
	}

	files := symbolFiles(res)
	paths := res.Files()
	replaced := make(map[string]bool, len(paths))
	for _, p := range paths {
		replaced[p] = true
	}

	record := cached.Clone()
	record.Decls = spliceDecls(record.Decls, collectDecls(paths, files), replaced)

	var missing []db.MissingInclude
	for _, m := range record.Missing {
		if !replaced[m.File] {
			missing = append(missing, m)
		}
	}
	for _, m := range res.Missing {
		m.Root = root
		missing = append(missing, m)
	}
	record.Missing = missing

	for _, p := range paths {
		if _, ok := record.Files[p]; !ok {
			record.Files[p] = 0
		}
	}

	return &override{
		path:   path,
		record: record,
		files:  files,
		tree:   res.Tree,
		base:   ancestors.Context(),
	}, res.Markers, nil
}

// spliceDecls replaces the declarations of the replaced files with fresh,
// at the position the first of them held.
func spliceDecls(old, fresh []db.DeclCacheItem, replaced map[string]bool) []db.DeclCacheItem {
	out := make([]db.DeclCacheItem, 0, len(old)+len(fresh))
	inserted := false
	for _, d := range old {
		if !replaced[d.File] {
			out = append(out, d)
			continue
		}
		if !inserted {
			out = append(out, fresh...)
			inserted = true
		}
	}
	if !inserted {
		out = append(out, fresh...)
	}
	return out
}

// ClearOverride drops the override, restoring the on-disk view.
func (b *BaseIndex) ClearOverride() {
	b.mu.Lock()
	b.override = nil
	b.mu.Unlock()
}

// eachRoot visits the live root records in order, with the override's
// record standing in for the root it replaces. fn returns false to stop.
func eachRoot(s *snapshot, ov *override, fn func(*db.RootRecord) bool) {
	replaced := false
	for _, path := range s.data.RootOrder {
		r := s.data.Roots[path]
		if r == nil || r.IncludedBy != "" {
			continue
		}
		if ov != nil && ov.record.Path == path {
			r = ov.record
			replaced = true
		}
		if !fn(r) {
			return
		}
	}
	if ov != nil && !replaced {
		fn(ov.record)
	}
}
