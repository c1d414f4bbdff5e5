package preproc

import (
	"sort"

	"github.com/mvp-joe/svdb/internal/db"
)

// MacroProvider resolves a macro name to the definition visible at a line
// of the file being processed. It returns nil when the macro is undefined.
type MacroProvider interface {
	FindMacro(name string, line int) *db.MacroDef
}

// MacroTable is a plain name → definition map.
type MacroTable struct {
	macros map[string]*db.MacroDef
}

// NewMacroTable creates an empty table.
func NewMacroTable() *MacroTable {
	return &MacroTable{macros: make(map[string]*db.MacroDef)}
}

// NewMacroTableFromDefines builds a table of object-like macros, as given
// on a command line or in project settings.
func NewMacroTableFromDefines(defines map[string]string) *MacroTable {
	t := NewMacroTable()
	for name, value := range defines {
		t.Add(&db.MacroDef{Name: name, Body: value})
	}
	return t
}

// Add defines or redefines a macro.
func (t *MacroTable) Add(m *db.MacroDef) {
	if m == nil {
		return
	}
	t.macros[m.Name] = m
}

// Remove undefines a macro.
func (t *MacroTable) Remove(name string) {
	delete(t.macros, name)
}

// Clear removes every macro.
func (t *MacroTable) Clear() {
	t.macros = make(map[string]*db.MacroDef)
}

// Get returns the definition of name or nil.
func (t *MacroTable) Get(name string) *db.MacroDef {
	if t == nil {
		return nil
	}
	return t.macros[name]
}

// FindMacro implements MacroProvider; a table has no notion of lines.
func (t *MacroTable) FindMacro(name string, _ int) *db.MacroDef {
	return t.Get(name)
}

// Apply replays an ordered define/undef snapshot onto the table. An undef
// event with an empty name is an `undefineall, which resets the table to
// globals.
func (t *MacroTable) Apply(events []db.MacroDef, globals *MacroTable) {
	for i := range events {
		if events[i].Undef {
			if events[i].Name == "" {
				t.macros = globals.Clone().macros
				continue
			}
			t.Remove(events[i].Name)
			continue
		}
		t.Add(events[i].Clone())
	}
}

// Clone returns a copy of the table. Definitions are shared; they are
// never mutated once created.
func (t *MacroTable) Clone() *MacroTable {
	out := NewMacroTable()
	if t == nil {
		return out
	}
	for k, v := range t.macros {
		out.macros[k] = v
	}
	return out
}

// Len returns the number of macros.
func (t *MacroTable) Len() int {
	return len(t.macros)
}

// Names returns the macro names in sorted order.
func (t *MacroTable) Names() []string {
	out := make([]string, 0, len(t.macros))
	for k := range t.macros {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FileTreeMacroProvider answers macro lookups for one node of a file tree
// without re-running the preprocessor. The visible set at a line is built
// in two phases: first the state of all macros at the point where the node
// was included (walking from the root down the include chain), then the
// definitions earlier in the node's own file.
type FileTreeMacroProvider struct {
	tree        *FileTree
	node        NodeID
	globals     *MacroTable
	base        *MacroTable
	localPrefix bool

	context *MacroTable
}

// NewFileTreeMacroProvider creates a provider for node. globals may be nil.
func NewFileTreeMacroProvider(tree *FileTree, node NodeID, globals *MacroTable) *FileTreeMacroProvider {
	return &FileTreeMacroProvider{
		tree:        tree,
		node:        node,
		globals:     globals,
		localPrefix: true,
	}
}

// WithBase returns a provider whose walk starts from base instead of the
// globals, e.g. the macros earlier roots of a compilation unit left
// defined. An `undefineall still resets to the globals.
func (p *FileTreeMacroProvider) WithBase(base *MacroTable) *FileTreeMacroProvider {
	return &FileTreeMacroProvider{
		tree:        p.tree,
		node:        p.node,
		globals:     p.globals,
		base:        base,
		localPrefix: p.localPrefix,
	}
}

// AncestorsOnly returns a provider that ignores the node's own skeleton.
// It is the base context when the node's text is being preprocessed again,
// e.g. from an unsaved editor buffer.
func (p *FileTreeMacroProvider) AncestorsOnly() *FileTreeMacroProvider {
	return &FileTreeMacroProvider{
		tree:    p.tree,
		node:    p.node,
		globals: p.globals,
		base:    p.base,
		context: p.context,
	}
}

// FindMacro implements MacroProvider.
func (p *FileTreeMacroProvider) FindMacro(name string, line int) *db.MacroDef {
	m := p.Context().Get(name)
	if !p.localPrefix {
		return m
	}
	n := p.tree.Node(p.node)
	if n == nil {
		return m
	}
	return p.lookupIn(n.ID, name, m, line, map[NodeID]bool{})
}

// Context returns the macros visible at the include point of the node.
// It is computed once and memoized.
func (p *FileTreeMacroProvider) Context() *MacroTable {
	if p.context != nil {
		return p.context
	}
	start := p.base
	if start == nil {
		start = p.globals
	}
	tbl := start.Clone()
	chain := p.tree.Chain(p.node)
	for i := 0; i < len(chain)-1; i++ {
		p.applyFile(tbl, chain[i], chain[i+1], map[NodeID]bool{})
	}
	p.context = tbl
	return tbl
}

// applyFile replays the skeleton of node onto tbl. Includes are followed
// except for the inclusion instance stopAt, which ends the walk. It
// reports whether stopAt was reached.
func (p *FileTreeMacroProvider) applyFile(tbl *MacroTable, node, stopAt NodeID, visiting map[NodeID]bool) bool {
	n := p.tree.Node(node)
	if n == nil || visiting[node] {
		return false
	}
	visiting[node] = true
	defer delete(visiting, node)

	for _, it := range n.File.Items {
		switch it.Kind {
		case db.KindMacroDef:
			tbl.Add(it.Macro)
		case db.KindMacroUndef:
			if it.Name == "" {
				tbl.macros = p.globals.Clone().macros
				continue
			}
			tbl.Remove(it.Name)
		case db.KindInclude:
			if it.Child < 0 {
				continue
			}
			child := NodeID(it.Child)
			if p.tree.Same(child, stopAt) {
				return true
			}
			p.applyFile(tbl, child, NoNode, visiting)
		}
	}
	return false
}

// lookupIn resolves a single name through the skeleton of node, starting
// from the value cur. It avoids cloning the whole table for local lookups.
func (p *FileTreeMacroProvider) lookupIn(node NodeID, name string, cur *db.MacroDef, maxLine int, visiting map[NodeID]bool) *db.MacroDef {
	n := p.tree.Node(node)
	if n == nil || visiting[node] {
		return cur
	}
	visiting[node] = true
	defer delete(visiting, node)

	for _, it := range n.File.Items {
		if maxLine > 0 && it.Line >= maxLine {
			break
		}
		switch it.Kind {
		case db.KindMacroDef:
			if it.Name == name {
				cur = it.Macro
			}
		case db.KindMacroUndef:
			if it.Name == name {
				cur = nil
			} else if it.Name == "" {
				cur = p.globals.Get(name)
			}
		case db.KindInclude:
			if it.Child >= 0 {
				cur = p.lookupIn(NodeID(it.Child), name, cur, 0, visiting)
			}
		}
	}
	return cur
}
