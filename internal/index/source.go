package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/fs"
)

// Sources is what a base location expands to at the start of a rebuild.
type Sources struct {
	// Roots are preprocessed and parsed in this order.
	Roots       []string
	IncludeDirs []string
	Defines     map[string]string
	MFCU        bool

	// WatchDirs are the directories whose changes can affect the index.
	WatchDirs []string
}

// SourceSet enumerates the root files of one base location.
type SourceSet interface {
	// Kind names the index type, as registered with the index registry.
	Kind() string

	// Location is the base location: a root file, an argument file or a
	// directory.
	Location() string

	Resolve(ctx context.Context) (*Sources, error)
}

// LibSource is a single root file, typically a library package file that
// includes the rest of the library.
type LibSource struct {
	Path string
	FS   fs.Provider
}

func (s *LibSource) Kind() string     { return "lib" }
func (s *LibSource) Location() string { return s.Path }

func (s *LibSource) Resolve(ctx context.Context) (*Sources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.FS.ResolvePath(s.Path, "")
	dir := filepath.Dir(path)
	return &Sources{
		Roots:       []string{path},
		IncludeDirs: []string{dir},
		Defines:     map[string]string{},
		WatchDirs:   []string{dir},
	}, nil
}

// ArgFileSource is the set of files named by a compiler argument file.
type ArgFileSource struct {
	Path    string
	FS      fs.Provider
	Markers db.MarkerSink
}

func (s *ArgFileSource) Kind() string     { return "argfile" }
func (s *ArgFileSource) Location() string { return s.Path }

func (s *ArgFileSource) Resolve(ctx context.Context) (*Sources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Markers != nil {
		s.Markers.ClearMarkers(s.FS.ResolvePath(s.Path, ""))
	}
	af, err := ParseArgFile(s.FS, s.Path, s.Markers)
	if err != nil {
		return nil, err
	}
	return &Sources{
		Roots:       af.Sources,
		IncludeDirs: af.IncludeDirs,
		Defines:     af.Defines,
		MFCU:        af.MFCU,
		WatchDirs:   mergeDirs(uniqueDirs(append([]string{af.Path}, af.Sources...)), af.IncludeDirs),
	}, nil
}

// CollectionSource is every source file under a directory. Directories
// holding headers are searched for includes.
type CollectionSource struct {
	Dir            string
	FS             fs.Provider
	SourcePatterns []string
	HeaderPatterns []string
	IgnorePatterns []string
}

func (s *CollectionSource) Kind() string     { return "source_collection" }
func (s *CollectionSource) Location() string { return s.Dir }

func (s *CollectionSource) Resolve(ctx context.Context) (*Sources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.FS.ResolvePath(s.Dir, "")
	fd, err := NewFileDiscovery(dir, s.SourcePatterns, s.HeaderPatterns, s.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery pattern: %w", err)
	}
	sources, headers, err := fd.Discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover files in %s: %w", dir, err)
	}
	return &Sources{
		Roots:       sources,
		IncludeDirs: uniqueDirs(headers),
		Defines:     map[string]string{},
		WatchDirs:   []string{dir},
	}, nil
}

func uniqueDirs(files []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func mergeDirs(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range append(append([]string(nil), a...), b...) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
