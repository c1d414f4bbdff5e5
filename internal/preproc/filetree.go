package preproc

import (
	"github.com/mvp-joe/svdb/internal/db"
)

// NodeID addresses a node in a FileTree arena.
type NodeID int

// NoNode is the id used where no node applies.
const NoNode NodeID = -1

// FileTreeNode is one inclusion instance of a file. A header included
// twice produces two nodes that share a path but nothing else.
type FileTreeNode struct {
	ID        NodeID
	Path      string
	Processed bool

	// File is the pre-processed skeleton built while this node was scanned.
	File *db.PreProcFile

	// Children are the include nodes in textual include order.
	Children []NodeID

	// IncludedBy lists the parent nodes. The first entry is the parent the
	// node was created under.
	IncludedBy []NodeID

	// RefMacros maps each macro referenced while processing this file to its
	// definition text at that point; nil records "looked up, undefined".
	RefMacros map[string]*string
}

// FileTree is an arena of include nodes. Nodes refer to each other by id so
// the tree holds no pointer cycles.
type FileTree struct {
	nodes []*FileTreeNode
}

// NewFileTree creates an empty tree.
func NewFileTree() *FileTree {
	return &FileTree{}
}

// NewNode allocates a node for path.
func (t *FileTree) NewNode(path string) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &FileTreeNode{
		ID:        id,
		Path:      path,
		File:      &db.PreProcFile{Path: path},
		RefMacros: make(map[string]*string),
	})
	return id
}

// Node returns the node for id, or nil if id is out of range.
func (t *FileTree) Node(id NodeID) *FileTreeNode {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes.
func (t *FileTree) Len() int {
	return len(t.nodes)
}

// Clone returns a tree that shares t's nodes. Nodes added to the clone,
// such as duplicates, are not seen by t, so a published tree can serve as
// a resolution context without being mutated.
func (t *FileTree) Clone() *FileTree {
	return &FileTree{nodes: append([]*FileTreeNode(nil), t.nodes...)}
}

// Link records that parent includes child.
func (t *FileTree) Link(parent, child NodeID) {
	p, c := t.Node(parent), t.Node(child)
	if p == nil || c == nil {
		return
	}
	p.Children = append(p.Children, child)
	c.IncludedBy = append(c.IncludedBy, parent)
}

// Duplicate makes a shallow copy of a node: the copy gets a fresh id but its
// child and parent lists, skeleton and reference map are shared with the
// original. Used to reuse a node as a macro-resolution context without
// running the preprocessor again.
func (t *FileTree) Duplicate(id NodeID) NodeID {
	src := t.Node(id)
	if src == nil {
		return NoNode
	}
	cp := *src
	cp.ID = NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &cp)
	return cp.ID
}

// Same reports whether a and b are the same inclusion instance, either the
// same node or duplicates of one.
func (t *FileTree) Same(a, b NodeID) bool {
	na, nb := t.Node(a), t.Node(b)
	return na != nil && nb != nil && na.File == nb.File
}

// Chain returns the node ids from the root down to id, following the first
// included-by parent at each level. A parent loop ends the walk instead of
// running forever.
func (t *FileTree) Chain(id NodeID) []NodeID {
	var rev []NodeID
	seen := make(map[NodeID]bool)
	for cur := id; cur != NoNode; {
		n := t.Node(cur)
		if n == nil || seen[cur] {
			break
		}
		seen[cur] = true
		rev = append(rev, cur)
		if len(n.IncludedBy) == 0 {
			break
		}
		cur = n.IncludedBy[0]
	}
	out := make([]NodeID, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

// FindPath returns the first node for path.
func (t *FileTree) FindPath(path string) NodeID {
	for _, n := range t.nodes {
		if n.Path == path {
			return n.ID
		}
	}
	return NoNode
}

// Paths returns the distinct file paths in node order.
func (t *FileTree) Paths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range t.nodes {
		if !seen[n.Path] {
			seen[n.Path] = true
			out = append(out, n.Path)
		}
	}
	return out
}

// Edges returns one include edge per parent/child link, in node order.
func (t *FileTree) Edges() []db.IncludeEdge {
	var out []db.IncludeEdge
	for _, n := range t.nodes {
		for _, it := range n.File.Items {
			if it.Kind != db.KindInclude || it.Child < 0 {
				continue
			}
			if c := t.Node(NodeID(it.Child)); c != nil {
				out = append(out, db.IncludeEdge{Parent: n.Path, Child: c.Path, Line: it.Line})
			}
		}
	}
	return out
}

// RefMacros merges the reference maps of every node. When two nodes saw
// different values for a name, the first seen wins.
func (t *FileTree) RefMacros() map[string]*string {
	out := make(map[string]*string)
	for _, n := range t.nodes {
		for k, v := range n.RefMacros {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}
