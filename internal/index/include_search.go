package index

import (
	"path/filepath"

	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/preproc"
)

// IncludeSearch resolves `include names. It tries the directory of the
// including file, then each include directory in order, then the super
// resolver when one is set.
type IncludeSearch struct {
	fs    fs.Provider
	dirs  []string
	super preproc.IncludeResolver
}

// NewIncludeSearch creates a search over dirs. super may be nil.
func NewIncludeSearch(provider fs.Provider, dirs []string, super preproc.IncludeResolver) *IncludeSearch {
	return &IncludeSearch{fs: provider, dirs: dirs, super: super}
}

// ResolveInclude implements preproc.IncludeResolver.
func (s *IncludeSearch) ResolveInclude(fromPath, name string) (string, bool) {
	if path, ok := s.ResolveLocal(fromPath, name); ok {
		return path, true
	}
	if s.super != nil {
		return s.super.ResolveInclude(fromPath, name)
	}
	return "", false
}

// ResolveLocal resolves name without escalating to the super resolver.
func (s *IncludeSearch) ResolveLocal(fromPath, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		path := s.fs.ResolvePath(name, "")
		return path, s.fs.Exists(path)
	}
	if fromPath != "" {
		if path := s.fs.ResolvePath(name, filepath.Dir(fromPath)); s.fs.Exists(path) {
			return path, true
		}
	}
	for _, dir := range s.dirs {
		if path := s.fs.ResolvePath(name, dir); s.fs.Exists(path) {
			return path, true
		}
	}
	return "", false
}

// Dirs returns the include directories in search order.
func (s *IncludeSearch) Dirs() []string {
	return append([]string(nil), s.dirs...)
}
