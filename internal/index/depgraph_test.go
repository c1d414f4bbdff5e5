package index

// Test Plan for depGraph:
// - a changed header reaches every root that includes it, transitively
// - a changed root reaches itself
// - unknown files reach nothing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvp-joe/svdb/internal/db"
)

func TestDepGraph_DependentRoots(t *testing.T) {
	t.Parallel()

	data := db.NewBaseIndexCacheData("/p")
	data.RootOrder = []string{"/p/a.sv", "/p/b.sv", "/p/c.sv"}
	data.Roots["/p/a.sv"] = &db.RootRecord{
		Path:  "/p/a.sv",
		Files: map[string]int64{"/p/a.sv": 1, "/p/pkg.svh": 1, "/p/defs.svh": 1},
		Tree: []db.IncludeEdge{
			{Parent: "/p/a.sv", Child: "/p/pkg.svh", Line: 1},
			{Parent: "/p/pkg.svh", Child: "/p/defs.svh", Line: 3},
		},
	}
	data.Roots["/p/b.sv"] = &db.RootRecord{
		Path:  "/p/b.sv",
		Files: map[string]int64{"/p/b.sv": 1, "/p/defs.svh": 1},
		Tree: []db.IncludeEdge{
			{Parent: "/p/b.sv", Child: "/p/defs.svh", Line: 1},
			{Parent: "/p/b.sv", Child: "/p/defs.svh", Line: 9},
		},
	}
	data.Roots["/p/c.sv"] = &db.RootRecord{Path: "/p/c.sv", Files: map[string]int64{"/p/c.sv": 1}}

	g := newDepGraph(data)

	assert.Equal(t, []string{"/p/a.sv", "/p/b.sv"}, g.DependentRoots([]string{"/p/defs.svh"}))
	assert.Equal(t, []string{"/p/a.sv"}, g.DependentRoots([]string{"/p/pkg.svh"}))
	assert.Equal(t, []string{"/p/c.sv"}, g.DependentRoots([]string{"/p/c.sv"}))
	assert.Empty(t, g.DependentRoots([]string{"/elsewhere.svh"}))

	files, edges := g.Size()
	assert.Equal(t, 5, files)
	assert.Equal(t, 3, edges)
}
