package index

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/preproc"
)

// FindGlobalScopeDecl returns the global-scope declarations whose name
// satisfies m, and the enumerators of global enum typedefs that do. A
// cancelled ctx ends the search with the matches found so far.
func (b *BaseIndex) FindGlobalScopeDecl(ctx context.Context, name string, m Matcher) []db.DeclCacheItem {
	if m == nil {
		m = ExactMatcher
	}
	return b.collect(ctx, func(d db.DeclCacheItem, scope string) bool {
		return scope == "" && m.Match(d.Name, name)
	})
}

// FindPackageDecl returns the declarations made inside package pkg,
// including the enumerators of its enum typedefs.
func (b *BaseIndex) FindPackageDecl(ctx context.Context, pkg db.DeclCacheItem) []db.DeclCacheItem {
	if pkg.Kind != db.KindPackage {
		return nil
	}
	return b.collect(ctx, func(_ db.DeclCacheItem, scope string) bool {
		return scope == pkg.Name
	})
}

// collect returns copies of the declarations keep accepts. Enumerators are
// offered right after their typedef; scope is the package a declaration
// lives in, "" for global scope.
func (b *BaseIndex) collect(ctx context.Context, keep func(d db.DeclCacheItem, scope string) bool) []db.DeclCacheItem {
	s, ov := b.current()
	loc := b.BaseLocation()
	var out []db.DeclCacheItem

	eachRoot(s, ov, func(r *db.RootRecord) bool {
		if ctx.Err() != nil {
			return false
		}
		for _, d := range r.Decls {
			if keep(d, d.Container) {
				c := d.Clone()
				c.Index = loc
				out = append(out, c)
			}
			for _, e := range enumeratorItems(d) {
				if keep(e, d.Container) {
					e.Index = loc
					out = append(out, e)
				}
			}
		}
		return true
	})
	return out
}

// FindSuperClass returns the declaration of the class cls extends, or nil.
// A qualified base (pkg::name) is looked up in that package; otherwise the
// class's own package is preferred, then global scope, then any package.
func (b *BaseIndex) FindSuperClass(ctx context.Context, cls db.DeclCacheItem) *db.DeclCacheItem {
	if cls.Super == "" {
		return nil
	}
	pkg, name := "", cls.Super
	if i := strings.LastIndex(cls.Super, "::"); i >= 0 {
		pkg, name = cls.Super[:i], cls.Super[i+2:]
	}

	candidates := b.collect(ctx, func(d db.DeclCacheItem, _ string) bool {
		return d.Kind == db.KindClass && d.Name == name
	})
	rank := func(d db.DeclCacheItem) int {
		switch {
		case pkg != "" && d.Container == pkg:
			return 0
		case pkg != "":
			return -1
		case d.Container == cls.Container:
			return 0
		case d.Container == "":
			return 1
		default:
			return 2
		}
	}

	var best *db.DeclCacheItem
	bestRank := 3
	for i := range candidates {
		if r := rank(candidates[i]); r >= 0 && r < bestRank {
			best, bestRank = &candidates[i], r
		}
	}
	return best
}

// GetDeclFile returns the symbol file that declares item. Files not
// resident are reloaded by reindexing their root in memory. It returns
// nil when the index does not know the file.
func (b *BaseIndex) GetDeclFile(ctx context.Context, item db.DeclCacheItem) (*db.File, error) {
	s, ov := b.current()
	if ov != nil {
		if f, ok := ov.files[item.File]; ok {
			return f.Clone(), nil
		}
	}
	if f, ok := b.files.Get(item.File); ok {
		return f.Clone(), nil
	}

	root, ok := s.fileRoot[item.File]
	if !ok {
		return nil, nil
	}
	r, err := b.indexRoot(ctx, root, s.globals, s.contextFor(root), s.includes, b.opts.FS)
	if err != nil {
		return nil, err
	}
	b.keep(r)
	return r.files[item.File].Clone(), nil
}

// FindIncludedFile returns the indexed files whose leaf name satisfies m.
func (b *BaseIndex) FindIncludedFile(name string, m Matcher) []string {
	if m == nil {
		m = ExactMatcher
	}
	var out []string
	for _, f := range b.Files() {
		if m.Match(filepath.Base(f), name) {
			out = append(out, f)
		}
	}
	return out
}

// FindMacro returns the last definition of name made by any root, falling
// back to the global defines. It returns nil when name is never defined.
func (b *BaseIndex) FindMacro(name string) *db.MacroDef {
	s, ov := b.current()
	var found *db.MacroDef
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		for i := range r.Defines {
			if d := &r.Defines[i]; d.Name == name && !d.Undef {
				found = d
			}
		}
		return true
	})
	if found != nil {
		return found.Clone()
	}
	if m := s.globals.Get(name); m != nil {
		return m.Clone()
	}
	return nil
}

// FindMacroAt returns the definition of name visible at line of path:
// whatever the include chain defined before path was included, then the
// definitions earlier in path itself. A line <= 0 considers the whole file.
// It returns nil when the macro is undefined there or path is not indexed.
func (b *BaseIndex) FindMacroAt(ctx context.Context, name, path string, line int) (*db.MacroDef, error) {
	path = b.opts.FS.ResolvePath(path, "")
	s, ov := b.current()

	if ov != nil && ov.tree != nil {
		if node := ov.tree.FindPath(path); node != preproc.NoNode {
			return macroAt(ov.tree, node, s.globals, ov.base, name, line), nil
		}
	}

	root, ok := s.fileRoot[path]
	if !ok {
		return nil, nil
	}
	tree, err := b.rootTree(ctx, s, root)
	if err != nil || tree == nil {
		return nil, err
	}
	node := tree.FindPath(path)
	if node == preproc.NoNode {
		return nil, nil
	}
	return macroAt(tree, node, s.globals, s.contextFor(root), name, line), nil
}

func macroAt(tree *preproc.FileTree, node preproc.NodeID, globals, base *preproc.MacroTable, name string, line int) *db.MacroDef {
	m := preproc.NewFileTreeMacroProvider(tree, node, globals).WithBase(base).FindMacro(name, line)
	if m == nil {
		return nil
	}
	return m.Clone()
}

// rootTree returns the file tree of root's last run. A tree that is no
// longer resident is rebuilt by preprocessing root again.
func (b *BaseIndex) rootTree(ctx context.Context, s *snapshot, root string) (*preproc.FileTree, error) {
	if t, ok := b.trees.Get(root); ok {
		return t, nil
	}
	r, err := b.indexRoot(ctx, root, s.globals, s.contextFor(root), s.includes, b.opts.FS)
	if err != nil {
		return nil, err
	}
	b.keep(r)
	return r.tree, nil
}

// MacroNames returns the sorted names of all macros defined by the index
// or globally that satisfy m against query.
func (b *BaseIndex) MacroNames(query string, m Matcher) []string {
	if m == nil {
		m = PrefixMatcher
	}
	s, ov := b.current()
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && m.Match(name, query) {
			seen[name] = true
		}
	}
	for _, name := range s.globals.Names() {
		add(name)
	}
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		for _, d := range r.Defines {
			if !d.Undef {
				add(d.Name)
			}
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ForEachDecl calls fn for every declaration until fn returns false.
func (b *BaseIndex) ForEachDecl(fn func(db.DeclCacheItem) bool) {
	s, ov := b.current()
	loc := b.BaseLocation()
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		for _, d := range r.Decls {
			c := d.Clone()
			c.Index = loc
			if !fn(c) {
				return false
			}
		}
		return true
	})
}

// MissingIncludes returns every unresolved include of the live roots.
func (b *BaseIndex) MissingIncludes() []db.MissingInclude {
	s, ov := b.current()
	var out []db.MissingInclude
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		out = append(out, r.Missing...)
		return true
	})
	return out
}

// Files returns the sorted paths of every file of the live roots.
func (b *BaseIndex) Files() []string {
	s, ov := b.current()
	seen := make(map[string]bool)
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		seen[r.Path] = true
		for f := range r.Files {
			seen[f] = true
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Roots returns the live roots in processing order.
func (b *BaseIndex) Roots() []string {
	s, ov := b.current()
	var out []string
	eachRoot(s, ov, func(r *db.RootRecord) bool {
		out = append(out, r.Path)
		return true
	})
	return out
}
