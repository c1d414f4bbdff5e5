package preproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/svdb/internal/db"
)

func fn(name, body string, params ...db.MacroParam) *db.MacroDef {
	if params == nil {
		params = []db.MacroParam{}
	}
	return &db.MacroDef{Name: name, Params: params, Body: body}
}

func TestExpandDefinition(t *testing.T) {
	t.Parallel()

	defined := map[string]bool{"foobar": true}
	isMacro := func(s string) bool { return defined[s] }

	tests := []struct {
		name string
		m    *db.MacroDef
		args []string
		want string
	}{
		{
			name: "object-like",
			m:    &db.MacroDef{Name: "W", Body: "8"},
			want: "8",
		},
		{
			name: "lexical substitution",
			m:    fn("M", "a + b", db.MacroParam{Name: "a"}, db.MacroParam{Name: "b"}),
			args: []string{" `X ", "y"},
			want: "`X + y",
		},
		{
			name: "paste names a macro",
			m:    fn("m", "a``b", db.MacroParam{Name: "a"}, db.MacroParam{Name: "b"}),
			args: []string{"foo", "bar"},
			want: "`foobar",
		},
		{
			name: "paste names no macro",
			m:    fn("m", "a `` _suffix", db.MacroParam{Name: "a"}),
			args: []string{"sig"},
			want: "sig_suffix",
		},
		{
			name: "paste after backtick stays as is",
			m:    fn("m", "`a``b", db.MacroParam{Name: "a"}, db.MacroParam{Name: "b"}),
			args: []string{"foo", "bar"},
			want: "`foobar",
		},
		{
			name: "stringify",
			m:    fn("S", "`\"a`\"", db.MacroParam{Name: "a"}),
			args: []string{"hi"},
			want: `"hi"`,
		},
		{
			name: "escaped quote",
			m:    fn("S", "`\\`\"a`\\`\"", db.MacroParam{Name: "a"}),
			args: []string{"hi"},
			want: `\"hi\"`,
		},
		{
			name: "plain string untouched",
			m:    fn("S", `"a" a`, db.MacroParam{Name: "a"}),
			args: []string{"hi"},
			want: `"a" hi`,
		},
		{
			name: "default used",
			m:    fn("D", "a-b", db.MacroParam{Name: "a"}, db.MacroParam{Name: "b", Default: "0", HasDefault: true}),
			args: []string{"1"},
			want: "1-0",
		},
		{
			name: "empty parens on zero-param macro",
			m:    fn("Z", "z"),
			args: []string{""},
			want: "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExpandDefinition(tt.m, tt.args, isMacro)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandDefinition_ArgumentErrors(t *testing.T) {
	t.Parallel()

	m := fn("M", "a", db.MacroParam{Name: "a"})

	_, err := ExpandDefinition(m, []string{"1", "2"}, nil)
	assert.ErrorIs(t, err, ErrMacroArgs)

	_, err = ExpandDefinition(fn("N", "a b", db.MacroParam{Name: "a"}, db.MacroParam{Name: "b"}), []string{"1"}, nil)
	assert.ErrorIs(t, err, ErrMacroArgs)
}
