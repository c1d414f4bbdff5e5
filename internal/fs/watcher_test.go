package fs

// Test Plan for Watcher directory tracking:
// - files in directories created after Start are seen
// - files with other extensions in them are not

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string) <-chan []string {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	w, err := NewWatcher([]string{dir}, []string{".sv", ".svh"}, log)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	t.Cleanup(func() { w.Stop() })

	batches := make(chan []string, 16)
	require.NoError(t, w.Start(context.Background(), func(files []string) {
		batches <- files
	}))
	return batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case files := <-batches:
		return files
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return nil
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	batches := startWatcher(t, dir)

	sub := filepath.Join(dir, "rtl")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "README"), []byte("x"), 0644))
	f := filepath.Join(sub, "core.sv")
	require.NoError(t, os.WriteFile(f, []byte("module core;\n"), 0644))
	assert.Equal(t, []string{f}, waitBatch(t, batches))
}

