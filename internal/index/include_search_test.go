package index

// Test Plan for IncludeSearch and matchers:
// - the including file's directory wins over include directories
// - include directories are searched in order
// - absolute names are checked as given
// - unresolved names escalate to the super resolver, ResolveLocal never does
// - exact and case-insensitive prefix matching

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvp-joe/svdb/internal/fs"
)

type stubResolver map[string]string

func (s stubResolver) ResolveInclude(_, name string) (string, bool) {
	p, ok := s[name]
	return p, ok
}

func TestIncludeSearch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	local := writeFile(t, dir, "rtl/defs.svh", "")
	writeFile(t, dir, "inc1/defs.svh", "")
	first := writeFile(t, dir, "inc1/only.svh", "")
	writeFile(t, dir, "inc2/only.svh", "")
	second := writeFile(t, dir, "inc2/two.svh", "")
	from := filepath.Join(dir, "rtl/top.sv")

	s := NewIncludeSearch(fs.NewOS(), []string{filepath.Join(dir, "inc1"), filepath.Join(dir, "inc2")},
		stubResolver{"ext.svh": "/lib/ext.svh"})

	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"defs.svh", local, true},
		{"only.svh", first, true},
		{"two.svh", second, true},
		{local, local, true},
		{"ext.svh", "/lib/ext.svh", true},
		{"none.svh", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := s.ResolveInclude(from, tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	_, ok := s.ResolveLocal(from, "ext.svh")
	assert.False(t, ok)
	assert.Equal(t, []string{filepath.Join(dir, "inc1"), filepath.Join(dir, "inc2")}, s.Dirs())
}

func TestMatchers(t *testing.T) {
	t.Parallel()

	assert.True(t, ExactMatcher.Match("top", "top"))
	assert.False(t, ExactMatcher.Match("top", "To"))

	assert.True(t, PrefixMatcher.Match("TopLevel", "top"))
	assert.True(t, PrefixMatcher.Match("top", ""))
	assert.False(t, PrefixMatcher.Match("to", "top"))
	assert.False(t, PrefixMatcher.Match("stop", "top"))

	suffix := MatcherFunc(func(name, query string) bool { return len(name) > 0 && name[len(name)-1:] == query })
	assert.True(t, suffix.Match("state_t", "t"))
}
