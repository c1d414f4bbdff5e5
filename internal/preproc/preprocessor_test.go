package preproc

// Test Plan for Preprocessor:
// - a define before an include is visible inside the included file, after it is not
// - token paste builds an identifier that is expanded again when it names a macro
// - self-referential macros stop at the depth limit with a single marker
// - a mutual include cycle produces a marker instead of recursing
// - disabled conditional branches become unprocessed regions with exact line bounds
// - output keeps the source line structure and maps lines back to their files
// - default arguments, stringification and __LINE__ expand as written
// - undefined macros and missing includes are reported, never fatal
// - a malformed directive produces one marker and scanning resumes on the next line
// - a function-like macro's argument list may start on the next line
// - macros referenced from outside the run are recorded as external refs
// - running twice over the same input yields identical results
// - a cancelled context aborts the run

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/svdb/internal/db"
)

// memFS serves files from a map and resolves includes by exact name.
type memFS map[string]string

func (m memFS) ResolveInclude(_, name string) (string, bool) {
	_, ok := m[name]
	return name, ok
}

func (m memFS) Open(path string) (io.ReadCloser, error) {
	text, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

func run(t *testing.T, files memFS, root string, cfg Config) *Result {
	t.Helper()
	cfg.Includes = files
	cfg.Opener = files
	res, err := New(cfg).PreprocessFile(context.Background(), root)
	require.NoError(t, err)
	return res
}

func messages(res *Result) []string {
	var out []string
	for _, m := range res.Markers {
		out = append(out, m.Message)
	}
	return out
}

func TestPreprocess_DefineVisibleInLaterInclude(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`define X 1\n`include \"b.svh\"\n",
		"b.svh": "`ifdef X\nclass ok;\n`else\nclass bad;\n`endif\n",
	}
	res := run(t, files, "a.sv", Config{})

	assert.Contains(t, res.Output.Text(), "class ok;")
	assert.NotContains(t, res.Output.Text(), "class bad;")
	assert.Empty(t, res.Markers)
}

func TestPreprocess_DefineAfterIncludeNotVisible(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`include \"b.svh\"\n`define X 1\n",
		"b.svh": "`ifdef X\nclass ok;\n`else\nclass bad;\n`endif\n",
	}
	res := run(t, files, "a.sv", Config{})

	assert.Contains(t, res.Output.Text(), "class bad;")
	assert.NotContains(t, res.Output.Text(), "class ok;")
}

func TestPreprocess_TokenPasteRescansMacro(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv": "`define m(a,b) a``b\n`define foobar 42\nx = `m(foo,bar);\n",
	}
	res := run(t, files, "a.sv", Config{})

	assert.Contains(t, res.Output.Text(), "x = 42;")
	assert.Empty(t, res.Markers)
}

func TestPreprocess_RecursiveMacroHitsDepthLimit(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv": "`define LOOP `LOOP\nx `LOOP y\n",
	}
	res := run(t, files, "a.sv", Config{MaxExpansionDepth: 16})

	require.Len(t, res.Markers, 1)
	assert.Contains(t, res.Markers[0].Message, ErrExpansionDepth.Error())
	assert.Equal(t, 2, res.Markers[0].Line)
	assert.Contains(t, res.Output.Text(), "x  y")
}

func TestPreprocess_DefaultDepthLimit(t *testing.T) {
	t.Parallel()

	files := memFS{"a.sv": "`define A `B\n`define B `A\n`A\n"}
	res := run(t, files, "a.sv", Config{})

	require.Len(t, res.Markers, 1)
	assert.Contains(t, res.Markers[0].Message, fmt.Sprintf("limit %d", DefaultMaxExpansionDepth))
}

func TestPreprocess_NestedMacrosInArguments(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv": "`define ADD(a,b) (a+b)\n`define ONE 1\nx = `ADD(`ONE, `ADD(2, 3));\n",
	}
	res := run(t, files, "a.sv", Config{})

	assert.Contains(t, res.Output.Text(), "x = (1+(2+3));")
	assert.Empty(t, res.Markers)
}

func TestPreprocess_MutualIncludeCycle(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`include \"b.svh\"\nmodule a; endmodule\n",
		"b.svh": "`include \"a.sv\"\nint b;\n",
	}
	res := run(t, files, "a.sv", Config{})

	require.Len(t, res.Markers, 1)
	assert.Equal(t, "b.svh", res.Markers[0].Path)
	assert.Contains(t, res.Markers[0].Message, ErrIncludeCycle.Error())
	assert.Contains(t, res.Output.Text(), "int b;")
	assert.Contains(t, res.Output.Text(), "module a; endmodule")
	assert.Equal(t, []string{"a.sv", "b.svh"}, res.Files())
}

func TestPreprocess_UnprocessedRegions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		regions [][2]int
	}{
		{
			name:    "ifdef undefined",
			src:     "a\n`ifdef UNDEF\nb\n`endif\nc\n",
			regions: [][2]int{{2, 4}},
		},
		{
			name:    "else of taken ifdef",
			src:     "`define A\n`ifdef A\nx\n`else\ny\n`endif\n",
			regions: [][2]int{{4, 6}},
		},
		{
			name:    "ifndef defined",
			src:     "`define A\n`ifndef A\nx\n`endif\n",
			regions: [][2]int{{2, 4}},
		},
		{
			name:    "elsif chain",
			src:     "`define B\n`ifdef A\na\n`elsif B\nb\n`else\nc\n`endif\n",
			regions: [][2]int{{2, 4}, {6, 8}},
		},
		{
			name:    "nested inside disabled branch",
			src:     "`ifdef A\n`ifdef B\nb\n`endif\n`endif\n",
			regions: [][2]int{{1, 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, memFS{"a.sv": tt.src}, "a.sv", Config{})

			var got [][2]int
			for _, r := range res.Tree.Node(res.Root).File.Regions() {
				got = append(got, [2]int{r.Line, r.EndLine})
			}
			assert.Equal(t, tt.regions, got)
			assert.Empty(t, res.Markers)
		})
	}
}

func TestPreprocess_KeepsLineStructure(t *testing.T) {
	t.Parallel()

	res := run(t, memFS{"a.sv": "a\n`ifdef UNDEF\nb\n`endif\nc\n"}, "a.sv", Config{})

	assert.Equal(t, "a\n\n\n\nc\n", res.Output.Text())
	assert.Equal(t, 5, res.Output.LineCount())
	loc, ok := res.Output.Location(5)
	require.True(t, ok)
	assert.Equal(t, SourceLine{Path: "a.sv", Line: 5}, loc)
}

func TestPreprocess_LocationsFollowIncludes(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "module a;\n`include \"b.svh\"\nendmodule\n",
		"b.svh": "int x;\nint y;\n",
	}
	res := run(t, files, "a.sv", Config{})

	want := []SourceLine{
		{Path: "a.sv", Line: 1},
		{Path: "b.svh", Line: 1},
		{Path: "b.svh", Line: 2},
		{Path: "a.sv", Line: 2},
		{Path: "a.sv", Line: 3},
	}
	var got []SourceLine
	for i := 1; i <= res.Output.LineCount(); i++ {
		loc, _ := res.Output.Location(i)
		got = append(got, loc)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "module a;\nint x;\nint y;\n\nendmodule\n", res.Output.Text())
}

func TestPreprocess_MultiLineDefineKeepsLines(t *testing.T) {
	t.Parallel()

	res := run(t, memFS{"a.sv": "`define M(x) \\\n  x + \\\n  1\ny = `M(2);\n"}, "a.sv", Config{})

	lines := strings.Split(res.Output.Text(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[3], "y = 2")
	require.Len(t, res.Defines, 1)
	assert.Equal(t, "x + \n  1", res.Defines[0].Body)
}

func TestPreprocess_Expansions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "object-like", src: "`define W 8\nlogic [`W-1:0] d;\n", want: "logic [8-1:0] d;"},
		{name: "default argument", src: "`define M(a, b=2) a+b\nx = `M(1);\n", want: "x = 1+2;"},
		{name: "empty argument takes default", src: "`define M(a, b=2) a+b\nx = `M(1,);\n", want: "x = 1+2;"},
		{name: "stringify", src: "`define S(x) `\"x`\"\ns = `S(hello);\n", want: `s = "hello";`},
		{name: "line", src: "\n\nl = `__LINE__;\n", want: "l = 3;"},
		{name: "file", src: "f = `__FILE__;\n", want: `f = "a.sv";`},
		{name: "pass-through directive", src: "`timescale 1ns/1ps\n", want: "`timescale 1ns/1ps"},
		{name: "string not expanded", src: "`define W 8\ns = \"`W\";\n", want: "s = \"`W\";"},
		{name: "comment copied", src: "a // `W\n", want: "a // `W"},
		{name: "undef", src: "`define W 8\n`undef W\n`ifdef W\nyes\n`else\nno\n`endif\n", want: "no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, memFS{"a.sv": tt.src}, "a.sv", Config{})
			assert.Contains(t, res.Output.Text(), tt.want)
			assert.Empty(t, messages(res))
		})
	}
}

func TestPreprocess_UndefinedMacro(t *testing.T) {
	t.Parallel()

	res := run(t, memFS{"a.sv": "x = `NOPE;\n"}, "a.sv", Config{})

	require.Len(t, res.Markers, 1)
	assert.Equal(t, db.SeverityError, res.Markers[0].Severity)
	assert.Contains(t, res.Markers[0].Message, "`NOPE is undefined")
	assert.Equal(t, "x = ;\n", res.Output.Text())
}

func TestPreprocess_MalformedDirectives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		directive string
		message   string
	}{
		{"define without name", "`define", "malformed `define: missing macro name"},
		{"define with empty parameter", "`define M(a,,b) x", "malformed `define M: bad parameter list"},
		{"define with unclosed parameters", "`define M(a x", "malformed `define M: bad parameter list"},
		{"undef without name", "`undef", "malformed `undef: missing macro name"},
		{"bare include", "`include", "malformed `include: expected a file name"},
		{"unterminated include name", "`include \"defs.svh", "malformed `include: expected a file name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := run(t, memFS{"a.sv": tt.directive + "\nclass b; endclass\n"}, "a.sv", Config{})

			assert.Equal(t, "\nclass b; endclass\n", res.Output.Text())
			require.Len(t, res.Markers, 1)
			assert.Equal(t, tt.message, res.Markers[0].Message)
			assert.Equal(t, 1, res.Markers[0].Line)
			assert.Empty(t, res.Defines)
		})
	}
}

func TestPreprocess_ArgumentListOnNextLine(t *testing.T) {
	t.Parallel()

	res := run(t, memFS{"a.sv": "`define F(x) x\nz = `F\n  (q);\n"}, "a.sv", Config{})
	assert.Empty(t, res.Markers)
	assert.Equal(t, "\nz = \nq;\n", res.Output.Text())
	assert.Equal(t, 3, res.Output.LineCount())

	res = run(t, memFS{"a.sv": "`define F(x) x\nz = `F\n;\n"}, "a.sv", Config{})
	assert.Equal(t, []string{"macro `F requires an argument list"}, messages(res))
	assert.Equal(t, "\nz = \n;\n", res.Output.Text())
}

func TestPreprocess_MissingInclude(t *testing.T) {
	t.Parallel()

	sink := db.NewMarkerCollector()
	res := run(t, memFS{"a.sv": "\n`include \"gone.svh\"\n"}, "a.sv", Config{Markers: sink})

	require.Len(t, res.Missing, 1)
	assert.Equal(t, db.MissingInclude{Root: "a.sv", File: "a.sv", Include: "gone.svh", Line: 2}, res.Missing[0])
	require.Len(t, sink.Markers("a.sv"), 1)

	items := res.Tree.Node(res.Root).File.Items
	require.Len(t, items, 1)
	assert.Equal(t, db.KindInclude, items[0].Kind)
	assert.Equal(t, -1, items[0].Child)
}

func TestPreprocess_IncludeThroughMacro(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`define HDR \"b.svh\"\n`include `HDR\n",
		"b.svh": "int b;\n",
	}
	res := run(t, files, "a.sv", Config{})

	assert.Contains(t, res.Output.Text(), "int b;")
	assert.Empty(t, res.Markers)
}

func TestPreprocess_UndefineAllKeepsGlobals(t *testing.T) {
	t.Parallel()

	globals := NewMacroTableFromDefines(map[string]string{"G": "1"})
	src := "`define L 2\n`undefineall\n`ifdef G\ng\n`endif\n`ifdef L\nl\n`endif\n"
	res := run(t, memFS{"a.sv": src}, "a.sv", Config{Globals: globals})

	assert.Contains(t, res.Output.Text(), "g")
	assert.NotContains(t, res.Output.Text(), "l\n")
}

func TestPreprocess_ExternalRefs(t *testing.T) {
	t.Parallel()

	globals := NewMacroTableFromDefines(map[string]string{"G": "1"})
	src := "`define L 2\nx = `G + `L;\n`ifdef MISSING\n`endif\n"
	res := run(t, memFS{"a.sv": src}, "a.sv", Config{Globals: globals})

	require.Contains(t, res.ExternalRefs, "G")
	require.NotNil(t, res.ExternalRefs["G"])
	assert.Equal(t, "G 1", *res.ExternalRefs["G"])
	require.Contains(t, res.ExternalRefs, "MISSING")
	assert.Nil(t, res.ExternalRefs["MISSING"])
	assert.NotContains(t, res.ExternalRefs, "L")

	refs := res.Tree.Node(res.Root).RefMacros
	assert.Contains(t, refs, "L")
	assert.Contains(t, refs, "G")
}

func TestPreprocess_UnterminatedConditional(t *testing.T) {
	t.Parallel()

	res := run(t, memFS{"a.sv": "`ifdef A\nx\n"}, "a.sv", Config{})

	require.Len(t, res.Markers, 1)
	assert.Contains(t, res.Markers[0].Message, "missing `endif")
	regions := res.Tree.Node(res.Root).File.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, 1, regions[0].Line)
}

func TestPreprocess_Idempotent(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`define X 1\n`include \"b.svh\"\n`ifdef Y\ny\n`endif\n",
		"b.svh": "`define Z(a) a``_z\nint `Z(q);\n",
	}
	first := run(t, files, "a.sv", Config{})
	second := run(t, files, "a.sv", Config{})

	assert.Equal(t, first.Output.Text(), second.Output.Text())
	if diff := cmp.Diff(first.Defines, second.Defines); diff != "" {
		t.Errorf("defines differ (-first +second):\n%s", diff)
	}
	for i := 0; i < first.Tree.Len(); i++ {
		a, b := first.Tree.Node(NodeID(i)), second.Tree.Node(NodeID(i))
		if diff := cmp.Diff(a.File, b.File); diff != "" {
			t.Errorf("skeleton of %s differs (-first +second):\n%s", a.Path, diff)
		}
	}
}

func TestPreprocess_ContextCancelled(t *testing.T) {
	t.Parallel()

	files := memFS{
		"a.sv":  "`include \"b.svh\"\n",
		"b.svh": "int b;\n",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{Includes: files, Opener: files})
	_, err := p.PreprocessFile(ctx, "a.sv")
	assert.ErrorIs(t, err, context.Canceled)
}
