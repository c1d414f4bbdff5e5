package preproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/svdb/internal/db"
)

func TestMacroTable_Apply(t *testing.T) {
	t.Parallel()

	globals := NewMacroTableFromDefines(map[string]string{"G": "1"})
	tbl := globals.Clone()
	tbl.Apply([]db.MacroDef{
		{Name: "A", Body: "a"},
		{Name: "B", Body: "b"},
		{Name: "A", Undef: true},
	}, globals)

	assert.Equal(t, []string{"B", "G"}, tbl.Names())

	tbl.Apply([]db.MacroDef{{Undef: true}}, globals)
	assert.Equal(t, []string{"G"}, tbl.Names())
	assert.Equal(t, 1, globals.Len())
}

func TestFileTreeMacroProvider(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`define X 1\n`include \"c.svh\"\n`include \"b.svh\"\n`define AFTER 1\n",
		"c.svh": "`define FROM_C 1\n",
		"b.svh": "\n\n`define Y 2\n\n",
	}
	res := run(t, files, "a.sv", Config{})

	b := res.Tree.FindPath("b.svh")
	require.NotEqual(t, NoNode, b)

	p := NewFileTreeMacroProvider(res.Tree, b, nil)

	assert.NotNil(t, p.FindMacro("X", 1))
	assert.NotNil(t, p.FindMacro("FROM_C", 1), "non-chain includes are followed fully")
	assert.Nil(t, p.FindMacro("AFTER", 5), "defines after the include point are not visible")
	assert.Nil(t, p.FindMacro("Y", 2))
	assert.NotNil(t, p.FindMacro("Y", 4))

	anc := p.AncestorsOnly()
	assert.Nil(t, anc.FindMacro("Y", 4))
	assert.NotNil(t, anc.FindMacro("X", 4))
}

func TestFileTreeMacroProvider_ReprocessWithContext(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`define WIDTH 8\n`include \"b.svh\"\n",
		"b.svh": "logic [`WIDTH-1:0] d;\n`define WIDTH 4\n",
	}
	res := run(t, files, "a.sv", Config{})

	node := res.Tree.Duplicate(res.Tree.FindPath("b.svh"))
	ctx := NewFileTreeMacroProvider(res.Tree, node, nil).AncestorsOnly()

	// The duplicate stands in for the original include point, so b.svh's
	// own redefinition stays out of the context.
	assert.Equal(t, "8", ctx.FindMacro("WIDTH", 0).Body)

	again := run(t, files, "b.svh", Config{Context: ctx})
	assert.Contains(t, again.Output.Text(), "logic [8-1:0] d;")
	assert.Empty(t, again.Markers)
}

func TestFileTreeMacroProvider_RepeatedInclude(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`include \"b.svh\"\n`define MID 1\n`include \"b.svh\"\n",
		"b.svh": "`define SEEN 1\n",
	}
	res := run(t, files, "a.sv", Config{})
	require.Equal(t, 3, res.Tree.Len())

	first, second := NodeID(1), NodeID(2)
	assert.False(t, res.Tree.Same(first, second), "each inclusion is its own instance")

	assert.Nil(t, NewFileTreeMacroProvider(res.Tree, first, nil).AncestorsOnly().FindMacro("MID", 0))
	later := NewFileTreeMacroProvider(res.Tree, second, nil).AncestorsOnly()
	assert.NotNil(t, later.FindMacro("MID", 0))
	assert.NotNil(t, later.FindMacro("SEEN", 0), "the first inclusion precedes the second")
}

func TestFileTreeMacroProvider_WithBase(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv": "`undefineall\n`define LOCAL 1\n",
	}
	res := run(t, files, "a.sv", Config{})

	globals := NewMacroTableFromDefines(map[string]string{"G": "1"})
	base := globals.Clone()
	base.Add(&db.MacroDef{Name: "EARLIER", Body: "1"})

	p := NewFileTreeMacroProvider(res.Tree, res.Root, globals).WithBase(base)
	assert.NotNil(t, p.FindMacro("EARLIER", 1), "base is visible before the reset")
	assert.Nil(t, p.FindMacro("EARLIER", 2))
	assert.NotNil(t, p.FindMacro("G", 2))
	assert.NotNil(t, p.FindMacro("LOCAL", 3))
	assert.Equal(t, 1, base.Len()-globals.Len(), "the base table is not modified")
}

func TestFileTree_Chain(t *testing.T) {
	t.Parallel()

	tree := NewFileTree()
	a := tree.NewNode("a")
	b := tree.NewNode("b")
	c := tree.NewNode("c")
	tree.Link(a, b)
	tree.Link(b, c)

	assert.Equal(t, []NodeID{a, b, c}, tree.Chain(c))

	// A parent loop must not hang.
	tree.Node(a).IncludedBy = []NodeID{c}
	assert.Len(t, tree.Chain(c), 3)
}

func TestFileTree_DuplicateSharesContent(t *testing.T) {
	t.Parallel()

	tree := NewFileTree()
	a := tree.NewNode("a")
	b := tree.NewNode("b")
	tree.Link(a, b)

	d := tree.Duplicate(b)
	require.NotEqual(t, b, d)
	assert.Same(t, tree.Node(b).File, tree.Node(d).File)
	assert.True(t, tree.Same(b, d))
	assert.Equal(t, []NodeID{a, d}, tree.Chain(d))

	// Duplicating into a clone leaves the original tree alone.
	c := tree.Clone()
	e := c.Duplicate(b)
	assert.True(t, c.Same(b, e))
	assert.Equal(t, 3, tree.Len())
	assert.Nil(t, tree.Node(e))
}
