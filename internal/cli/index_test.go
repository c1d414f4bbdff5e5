package cli

// Test Plan for Index Command:
// - runIndex prints a per-index summary and the diagnostics
// - a second run reuses the persisted cache
// - --quiet drops the summary but keeps diagnostics
// - a broken configuration fails before anything is indexed
// - the progress reporter tolerates concurrent callbacks
// - formatNumber groups thousands

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/svdb/internal/index"
)

func TestRunIndex_PrintsSummaryAndMarkers(t *testing.T) {
	t.Parallel()

	root, _ := writeProject(t, map[string]string{
		"top.sv": "`include \"gone.svh\"\nmodule top;\nendmodule\n",
	})
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runIndex(ctx, &out, root, false, false))
	assert.Contains(t, out.String(), "✓ "+root)
	assert.Contains(t, out.String(), "(1 reindexed, 0 reused)")
	assert.Contains(t, out.String(), "1 missing includes")
	assert.Contains(t, out.String(), filepath.Join(root, "top.sv")+":1: error:")
	assert.Contains(t, out.String(), `"gone.svh" not found`)

	out.Reset()
	require.NoError(t, runIndex(ctx, &out, root, false, false))
	assert.Contains(t, out.String(), "(0 reindexed, 1 reused)")
}

func TestRunIndex_Quiet(t *testing.T) {
	t.Parallel()

	root, _ := writeProject(t, map[string]string{
		"top.sv": "module top;\n`UNKNOWN\nendmodule\n",
	})

	var out bytes.Buffer
	require.NoError(t, runIndex(context.Background(), &out, root, true, false))
	assert.NotContains(t, out.String(), "✓")
	assert.NotContains(t, out.String(), "Discovering")
	assert.Contains(t, out.String(), ":2: error:")
	assert.Contains(t, out.String(), "`UNKNOWN is undefined")
}

func TestRunIndex_InvalidConfig(t *testing.T) {
	t.Parallel()

	root, _ := writeProject(t, map[string]string{
		".svdb/config.yml": "index:\n  workers: 0\n",
		"top.sv":           "module top;\nendmodule\n",
	})

	var out bytes.Buffer
	err := runIndex(context.Background(), &out, root, true, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.Empty(t, out.String())
}

func TestCLIProgressReporter_ConcurrentCallbacks(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewCLIProgressReporter(&out, false)
	p.OnDiscoveryStart("/a")
	p.OnDiscoveryStart("/b")
	p.OnDiscoveryComplete(50)
	p.OnDiscoveryComplete(50)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.OnRootProcessed("f.sv", i%2 == 0)
		}(i)
	}
	wg.Wait()
	p.OnComplete(&index.Stats{Location: "/a"})
	p.OnComplete(&index.Stats{Location: "/b"})

	assert.Equal(t, 50, p.Reindexed())
	assert.Contains(t, out.String(), "Discovering roots in /a")

	p.Reset()
	assert.Zero(t, p.Reindexed())
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7", formatNumber(7))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
