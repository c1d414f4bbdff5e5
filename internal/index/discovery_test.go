package index

// Test Plan for FileDiscovery:
// - default patterns split sources from headers, including files at the root
// - hidden directories and the .svdb cache directory are skipped
// - ignore patterns match files and whole directories
// - .gitignore entries are honoured
// - CollectionSource turns header directories into include directories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/svdb/internal/fs"
)

func TestFileDiscovery_Discover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"top.sv",
		"legacy.v",
		"rtl/core.sv",
		"rtl/defs.svh",
		"inc/macros.vh",
		"build/gen.sv",
		"vendor/ip.sv",
		".git/hooks.sv",
		".svdb/cached.sv",
		"README.md",
	} {
		writeFile(t, dir, name, "")
	}
	writeFile(t, dir, ".gitignore", "vendor/\n")

	fd, err := NewFileDiscovery(dir, nil, nil, []string{"build"})
	require.NoError(t, err)

	sources, headers, err := fd.Discover()
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "legacy.v"),
		filepath.Join(dir, "rtl/core.sv"),
		filepath.Join(dir, "top.sv"),
	}, sources)
	assert.Equal(t, []string{
		filepath.Join(dir, "inc/macros.vh"),
		filepath.Join(dir, "rtl/defs.svh"),
	}, headers)
}

func TestFileDiscovery_CustomPatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a/tb_top.sv", "")
	writeFile(t, dir, "a/dut.sv", "")
	writeFile(t, dir, "a/dut_tb.sv", "")

	fd, err := NewFileDiscovery(dir, []string{"**/*.sv"}, nil, []string{"**/*_tb.sv"})
	require.NoError(t, err)
	sources, _, err := fd.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a/dut.sv"), filepath.Join(dir, "a/tb_top.sv")}, sources)
}

func TestCollectionSource_Resolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "rtl/top.sv", "")
	writeFile(t, dir, "rtl/include/a.svh", "")
	writeFile(t, dir, "rtl/include/b.svh", "")
	writeFile(t, dir, "common/c.vh", "")

	src := &CollectionSource{Dir: dir, FS: fs.NewOS()}
	assert.Equal(t, "source_collection", src.Kind())
	assert.Equal(t, dir, src.Location())

	got, err := src.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "rtl/top.sv")}, got.Roots)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "common"),
		filepath.Join(dir, "rtl/include"),
	}, got.IncludeDirs)
	assert.False(t, got.MFCU)
}
