package db

// CacheVersion tags the persisted cache format. A stored cache with any
// other tag is discarded and rebuilt.
const CacheVersion = "svdb-cache-4"

// DeclCacheItem is the lightweight record of one declaration kept in a
// base index's cache. It locates the declaration without the full symbol
// tree being resident.
type DeclCacheItem struct {
	Name string
	Kind ItemKind
	File string
	Line int
	Pos  int

	// Container is the enclosing package, or the enum typedef for enumerators.
	// Empty for global-scope declarations.
	Container string

	// Super is the base class of a class declaration.
	Super string

	// Enumerators lists the literal names of an enum typedef.
	Enumerators []string

	// Index is the base location of the index that owns this item. It is
	// only filled in on copies handed out by aggregate queries.
	Index string
}

// Clone returns a copy that shares nothing with the receiver.
func (d DeclCacheItem) Clone() DeclCacheItem {
	out := d
	if d.Enumerators != nil {
		out.Enumerators = append([]string(nil), d.Enumerators...)
	}
	return out
}

// IncludeEdge records that Parent includes Child at Line.
type IncludeEdge struct {
	Parent string
	Child  string
	Line   int
}

// MissingInclude records an `include that could not be resolved.
type MissingInclude struct {
	Root    string
	File    string
	Include string
	Line    int
}

// RootRecord is the cached state of one indexed root file and everything
// its file tree pulled in.
type RootRecord struct {
	Path string

	// IncludedBy is set when another root of the same index includes this
	// one. Such a root stays cached but its declarations are not served.
	IncludedBy string

	// Files maps every file of the root's file tree to the modification
	// time (unix nanoseconds) observed when it was indexed.
	Files map[string]int64

	Tree []IncludeEdge

	// Defines is the ordered snapshot of `define/`undef events of the tree.
	Defines []MacroDef

	// RefMacros maps every macro the tree resolved from outside itself
	// (global defines, or earlier roots of a compilation unit) to its
	// definition text at reference time. A nil value means the macro was
	// looked up and found undefined. The root is stale once any of these
	// resolves differently.
	RefMacros map[string]*string

	// GlobalRefs holds the references made after an `undefineall, which
	// resolve against the global defines alone.
	GlobalRefs map[string]*string

	Decls   []DeclCacheItem
	Missing []MissingInclude
}

// Clone returns a deep copy of the record.
func (r *RootRecord) Clone() *RootRecord {
	if r == nil {
		return nil
	}
	out := &RootRecord{
		Path:       r.Path,
		IncludedBy: r.IncludedBy,
		Files:      make(map[string]int64, len(r.Files)),
		Tree:       append([]IncludeEdge(nil), r.Tree...),
		RefMacros:  cloneRefs(r.RefMacros),
		Missing:    append([]MissingInclude(nil), r.Missing...),
	}
	if r.GlobalRefs != nil {
		out.GlobalRefs = cloneRefs(r.GlobalRefs)
	}
	for k, v := range r.Files {
		out.Files[k] = v
	}
	out.Defines = make([]MacroDef, len(r.Defines))
	for i := range r.Defines {
		out.Defines[i] = *r.Defines[i].Clone()
	}
	out.Decls = make([]DeclCacheItem, len(r.Decls))
	for i, d := range r.Decls {
		out.Decls[i] = d.Clone()
	}
	return out
}

func cloneRefs(refs map[string]*string) map[string]*string {
	out := make(map[string]*string, len(refs))
	for k, v := range refs {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

// BaseIndexCacheData is the persistent state of one base location.
type BaseIndexCacheData struct {
	Version      string
	BaseLocation string

	// Generation changes on every saved rebuild.
	Generation string

	IncludePaths  []string
	GlobalDefines map[string]string

	// RootOrder is the order in which roots were processed. It matters when
	// macros carry over between roots of one compilation unit.
	RootOrder []string
	Roots     map[string]*RootRecord
}

// NewBaseIndexCacheData returns empty cache data for a base location.
func NewBaseIndexCacheData(baseLocation string) *BaseIndexCacheData {
	return &BaseIndexCacheData{
		Version:       CacheVersion,
		BaseLocation:  baseLocation,
		GlobalDefines: map[string]string{},
		Roots:         map[string]*RootRecord{},
	}
}

// MissingIncludes flattens the missing-include lists of all roots.
func (c *BaseIndexCacheData) MissingIncludes() []MissingInclude {
	var out []MissingInclude
	for _, p := range c.RootOrder {
		if r := c.Roots[p]; r != nil && r.IncludedBy == "" {
			out = append(out, r.Missing...)
		}
	}
	return out
}
