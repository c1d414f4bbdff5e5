package index

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultSourcePatterns select the root files of a source collection.
var DefaultSourcePatterns = []string{"**/*.sv", "**/*.v"}

// DefaultHeaderPatterns select files that are only ever included. Their
// directories become include directories of the collection.
var DefaultHeaderPatterns = []string{"**/*.svh", "**/*.vh"}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// FileDiscovery finds source and header files under a directory using glob
// patterns, ignore patterns and the directory's .gitignore.
type FileDiscovery struct {
	rootDir        string
	sourcePatterns []compiledPattern
	headerPatterns []compiledPattern
	ignorePatterns []compiledPattern
	gitignore      *ignore.GitIgnore
}

// NewFileDiscovery compiles the patterns. Empty source or header lists take
// the defaults.
func NewFileDiscovery(rootDir string, sourcePatterns, headerPatterns, ignorePatterns []string) (*FileDiscovery, error) {
	if len(sourcePatterns) == 0 {
		sourcePatterns = DefaultSourcePatterns
	}
	if len(headerPatterns) == 0 {
		headerPatterns = DefaultHeaderPatterns
	}

	fd := &FileDiscovery{rootDir: rootDir}
	var err error
	if fd.sourcePatterns, err = compilePatterns(sourcePatterns); err != nil {
		return nil, err
	}
	if fd.headerPatterns, err = compilePatterns(headerPatterns); err != nil {
		return nil, err
	}
	if fd.ignorePatterns, err = compilePatterns(ignorePatterns); err != nil {
		return nil, err
	}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(rootDir, ".gitignore")); err == nil {
		fd.gitignore = gi
	}
	return fd, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{pattern: p, glob: g})
	}
	return out, nil
}

// Discover walks the directory and returns source files and header files,
// both as sorted absolute paths.
func (fd *FileDiscovery) Discover() (sources, headers []string, err error) {
	err = filepath.WalkDir(fd.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(fd.rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == fd.rootDir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || fd.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if fd.shouldIgnore(relPath) {
			return nil
		}

		switch {
		case matchesAnyPattern(relPath, fd.sourcePatterns):
			sources = append(sources, path)
		case matchesAnyPattern(relPath, fd.headerPatterns):
			headers = append(headers, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(sources)
	sort.Strings(headers)
	return sources, headers, nil
}

func (fd *FileDiscovery) shouldIgnore(relPath string) bool {
	if relPath == ".svdb" || strings.HasPrefix(relPath, ".svdb/") {
		return true
	}
	if fd.gitignore != nil && fd.gitignore.MatchesPath(relPath) {
		return true
	}
	if matchesAnyPattern(relPath, fd.ignorePatterns) {
		return true
	}
	// "build" should match "build/**".
	return matchesAnyPattern(relPath+"/**", fd.ignorePatterns)
}

func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// "**/*.sv" should also match "top.sv" in the root.
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if !strings.HasPrefix(cp.pattern, "**/") {
				continue
			}
			if g, err := glob.Compile(strings.TrimPrefix(cp.pattern, "**/"), '/'); err == nil && g.Match(path) {
				return true
			}
		}
	}
	return false
}
