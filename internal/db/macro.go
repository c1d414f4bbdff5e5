package db

import "strings"

// MacroParam is one formal parameter of a function-like macro.
type MacroParam struct {
	Name       string
	Default    string
	HasDefault bool
}

// MacroDef is a `define. A macro with a nil Params slice is object-like;
// a non-nil (possibly empty) Params slice marks a function-like macro.
type MacroDef struct {
	Name   string
	Params []MacroParam
	Body   string
	Path   string
	Line   int

	// Undef marks an `undef event in an ordered define snapshot.
	Undef bool
}

// IsFunctionLike reports whether the macro requires a parenthesized argument list.
func (m *MacroDef) IsFunctionLike() bool {
	return m != nil && m.Params != nil
}

// Text renders the definition as it would appear after the `define keyword.
// It is the value recorded in reference maps, so any change to parameters or
// body changes the text.
func (m *MacroDef) Text() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.Name)
	if m.Params != nil {
		sb.WriteByte('(')
		for i, p := range m.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			if p.HasDefault {
				sb.WriteByte('=')
				sb.WriteString(p.Default)
			}
		}
		sb.WriteByte(')')
	}
	if m.Body != "" {
		sb.WriteByte(' ')
		sb.WriteString(m.Body)
	}
	return sb.String()
}

// Clone returns a deep copy of the definition.
func (m *MacroDef) Clone() *MacroDef {
	if m == nil {
		return nil
	}
	out := *m
	if m.Params != nil {
		out.Params = append([]MacroParam{}, m.Params...)
	}
	return &out
}

// PreProcItem is one entry of the pre-processed file skeleton: the
// directives and regions seen while preprocessing a single file, in
// textual order.
type PreProcItem struct {
	Kind    ItemKind
	Name    string
	Line    int
	EndLine int

	// Macro is set for KindMacroDef items.
	Macro *MacroDef

	// Child is the file-tree node id of a resolved include, -1 otherwise.
	Child int
}

// PreProcFile is the skeleton of a file as seen by the preprocessor.
type PreProcFile struct {
	Path  string
	Items []PreProcItem
}

// Regions returns the unprocessed regions recorded in the skeleton.
func (f *PreProcFile) Regions() []PreProcItem {
	if f == nil {
		return nil
	}
	var out []PreProcItem
	for _, it := range f.Items {
		if it.Kind == KindUnprocessedRegion {
			out = append(out, it)
		}
	}
	return out
}
