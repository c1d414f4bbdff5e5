package index

import (
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/svdb/internal/db"
)

// depGraph links every indexed file to the files that include it. Walking
// it from a changed file reaches every root whose output can depend on the
// change.
type depGraph struct {
	g     graph.Graph[string, string]
	roots map[string]bool
}

func newDepGraph(data *db.BaseIndexCacheData) *depGraph {
	d := &depGraph{
		g:     graph.New(graph.StringHash, graph.Directed()),
		roots: make(map[string]bool),
	}
	for _, path := range data.RootOrder {
		r := data.Roots[path]
		if r == nil {
			continue
		}
		d.roots[path] = true
		d.addVertex(path)
		for f := range r.Files {
			d.addVertex(f)
		}
		for _, e := range r.Tree {
			d.addVertex(e.Parent)
			d.addVertex(e.Child)
			// Included → includer. A header included twice yields
			// ErrEdgeAlreadyExists.
			_ = d.g.AddEdge(e.Child, e.Parent)
		}
	}
	return d
}

func (d *depGraph) addVertex(path string) {
	_ = d.g.AddVertex(path)
}

// DependentRoots returns the roots that include any of files, directly or
// through other headers, including files that are roots themselves.
func (d *depGraph) DependentRoots(files []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		if _, err := d.g.Vertex(f); err != nil {
			continue
		}
		_ = graph.BFS(d.g, f, func(v string) bool {
			if d.roots[v] {
				seen[v] = true
			}
			return false
		})
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of files and include edges in the graph.
func (d *depGraph) Size() (files, edges int) {
	files, _ = d.g.Order()
	edges, _ = d.g.Size()
	return files, edges
}
