// Package index keeps the declaration cache of one base location up to date
// and answers name lookups against it.
//
// A rebuild expands the base location into root files, preprocesses and
// parses the roots whose inputs changed, and swaps in a completed snapshot.
// Readers always see either the previous snapshot or the new one.
package index

import (
	"context"
	"time"

	"github.com/mvp-joe/svdb/internal/db"
)

// Index is the query and maintenance contract shared by every index type.
// Lookups never fail for "not found": they return nil or an empty list.
type Index interface {
	Kind() string
	BaseLocation() string

	// Generation identifies the published snapshot. It changes whenever a
	// rebuild changes the cache.
	Generation() string

	// Rebuild brings the cache up to date, reindexing only stale roots.
	Rebuild(ctx context.Context) (*Stats, error)

	// Refresh is Rebuild with a hint: the roots depending on changed are
	// reindexed even if their timestamps look current.
	Refresh(ctx context.Context, changed []string) (*Stats, error)

	FindGlobalScopeDecl(ctx context.Context, name string, m Matcher) []db.DeclCacheItem
	FindPackageDecl(ctx context.Context, pkg db.DeclCacheItem) []db.DeclCacheItem
	FindSuperClass(ctx context.Context, cls db.DeclCacheItem) *db.DeclCacheItem
	GetDeclFile(ctx context.Context, item db.DeclCacheItem) (*db.File, error)
	FindIncludedFile(name string, m Matcher) []string
	FindMacro(name string) *db.MacroDef

	// FindMacroAt resolves name as seen at line of path, following the
	// include chain that led to path.
	FindMacroAt(ctx context.Context, name, path string, line int) (*db.MacroDef, error)
	MacroNames(query string, m Matcher) []string
	ForEachDecl(fn func(db.DeclCacheItem) bool)
	MissingIncludes() []db.MissingInclude

	// Files returns every file indexed under the base location.
	Files() []string
	WatchDirs() []string

	// ResolveLocal resolves an include against this index's include
	// directories only.
	ResolveLocal(fromPath, name string) (string, bool)

	SetOverride(ctx context.Context, path, text string) ([]db.Marker, error)
	ClearOverride()

	Close() error
}

// Stats describes one rebuild.
type Stats struct {
	Location   string
	Generation string
	Roots      int
	Reindexed  int
	Reused     int

	// Pruned counts roots dropped because another root includes them.
	Pruned   int
	Files    int
	Decls    int
	Missing  int
	Duration time.Duration
}
