package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeProject lays out files under a fresh project directory whose
// config keeps the persisted caches in a temp dir. It returns the project
// root and the cache root.
func writeProject(t *testing.T, files map[string]string) (root, cacheRoot string) {
	t.Helper()
	root = t.TempDir()
	cacheRoot = t.TempDir()

	cfg := fmt.Sprintf("storage:\n  cache_location: %s\n", cacheRoot)
	files[".svdb/config.yml"] = cfg + files[".svdb/config.yml"]

	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root, cacheRoot
}
