package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS_Basics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.sv")
	require.NoError(t, os.WriteFile(path, []byte("module a; endmodule\n"), 0o644))

	p := NewOS()
	assert.True(t, p.Exists(path))
	assert.False(t, p.Exists(dir), "directories are not files")
	assert.False(t, p.Exists(filepath.Join(dir, "missing.sv")))

	rc, err := p.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "module a; endmodule\n", string(data))

	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, when, when))
	mod, err := p.LastModified(path)
	require.NoError(t, err)
	assert.True(t, mod.Equal(when))

	_, err = p.LastModified(filepath.Join(dir, "missing.sv"))
	assert.Error(t, err)
}

func TestOS_ResolvePath(t *testing.T) {
	t.Parallel()

	p := NewOS()
	base := t.TempDir()

	assert.Equal(t, filepath.Join(base, "inc", "a.svh"), p.ResolvePath("inc/../inc/a.svh", base))
	assert.Equal(t, filepath.Join(base, "x.sv"), p.ResolvePath(filepath.Join(base, "x.sv"), "/elsewhere"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "lib"), ExpandHome("~/lib"))
}

func TestWatcher_DeliversChangedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, []string{".sv", ".svh"}, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	defer w.Stop()

	got := make(chan []string, 4)
	require.NoError(t, w.Start(context.Background(), func(files []string) {
		got <- files
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sv"), []byte("x"), 0o644))

	select {
	case files := <-got:
		assert.Equal(t, []string{filepath.Join(dir, "a.sv")}, files)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestWatcher_PauseAccumulates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, []string{".sv"}, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	defer w.Stop()

	got := make(chan []string, 4)
	require.NoError(t, w.Start(context.Background(), func(files []string) {
		got <- files
	}))

	w.Pause()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sv"), []byte("x"), 0o644))

	select {
	case <-got:
		t.Fatal("delivered while paused")
	case <-time.After(300 * time.Millisecond):
	}

	w.Resume()
	select {
	case files := <-got:
		assert.Contains(t, files, filepath.Join(dir, "a.sv"))
	case <-time.After(5 * time.Second):
		t.Fatal("nothing delivered after resume")
	}
}

func TestWatcher_InvalidDirectory(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "missing")}, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher([]string{t.TempDir()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
