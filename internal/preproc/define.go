package preproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/scanner"
)

var (
	// ErrMacroArgs indicates an invocation whose arguments do not fit the parameter list.
	ErrMacroArgs = errors.New("macro argument mismatch")

	// ErrExpansionDepth indicates runaway (usually self-referential) macro expansion.
	ErrExpansionDepth = errors.New("macro expansion depth exceeded")

	// ErrIncludeCycle indicates a file that includes itself through its ancestors.
	ErrIncludeCycle = errors.New("include cycle")
)

// pasteMark stands in for a `` token-paste operator until the pieces
// around it are joined.
const pasteMark = '\x00'

// ExpandDefinition substitutes raw argument text into the body of m.
//
// Arguments are substituted lexically, without being expanded first; the
// caller rescans the result, which is where nested invocations expand.
// `` joins the text on either side. An identifier produced by a join that
// names a macro (per isMacro) is prefixed with a backtick so the rescan
// expands it too. `" and `\`" produce quote characters that still allow
// parameter substitution between them.
func ExpandDefinition(m *db.MacroDef, args []string, isMacro func(string) bool) (string, error) {
	bound, err := bindArgs(m, args)
	if err != nil {
		return "", err
	}
	body := substitute(m.Body, bound)
	return resolvePastes(body, isMacro), nil
}

func bindArgs(m *db.MacroDef, args []string) (map[string]string, error) {
	if !m.IsFunctionLike() {
		return nil, nil
	}
	// `m() on a macro with no parameters collects one empty argument.
	if len(m.Params) == 0 && len(args) == 1 && strings.TrimSpace(args[0]) == "" {
		args = nil
	}
	if len(args) > len(m.Params) {
		return nil, fmt.Errorf("%w: `%s takes %d argument(s), got %d", ErrMacroArgs, m.Name, len(m.Params), len(args))
	}
	bound := make(map[string]string, len(m.Params))
	for i, p := range m.Params {
		var val string
		have := i < len(args)
		if have {
			val = strings.TrimSpace(args[i])
		}
		if !have || val == "" {
			switch {
			case p.HasDefault:
				val = p.Default
			case !have:
				return nil, fmt.Errorf("%w: `%s missing argument for %q", ErrMacroArgs, m.Name, p.Name)
			}
		}
		bound[p.Name] = val
	}
	return bound, nil
}

// substitute replaces parameter references in body. Plain string literals
// are copied untouched.
func substitute(body string, bound map[string]string) string {
	var sb strings.Builder
	n := len(body)
	for i := 0; i < n; {
		c := body[i]
		switch {
		case c == '`' && i+1 < n && body[i+1] == '`':
			sb.WriteByte(pasteMark)
			i += 2
		case c == '`' && i+1 < n && body[i+1] == '"':
			sb.WriteByte('"')
			i += 2
		case c == '`' && strings.HasPrefix(body[i:], "`\\`\""):
			sb.WriteString(`\"`)
			i += 4
		case c == '"':
			j := skipString(body, i)
			sb.WriteString(body[i:j])
			i = j
		case scanner.IsIdentStart(int(c)):
			j := i + 1
			for j < n && scanner.IsIdentPart(int(body[j])) {
				j++
			}
			id := body[i:j]
			if v, ok := bound[id]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(id)
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// skipString returns the index just past the string literal starting at i.
func skipString(s string, i int) int {
	j := i + 1
	for j < len(s) {
		switch s[j] {
		case '\\':
			j += 2
			continue
		case '"':
			return j + 1
		}
		j++
	}
	return len(s)
}

// resolvePastes removes paste marks, joining the text around them.
func resolvePastes(s string, isMacro func(string) bool) string {
	if strings.IndexByte(s, pasteMark) < 0 {
		return s
	}
	var sb strings.Builder
	var joins []int
	for i := 0; i < len(s); i++ {
		if s[i] != pasteMark {
			sb.WriteByte(s[i])
			continue
		}
		trimmed := strings.TrimRight(sb.String(), " \t")
		sb.Reset()
		sb.WriteString(trimmed)
		for i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '\t') {
			i++
		}
		joins = append(joins, sb.Len())
	}
	out := sb.String()
	if isMacro == nil {
		return out
	}
	// Walk joins from the end so earlier offsets stay valid.
	for k := len(joins) - 1; k >= 0; k-- {
		at := joins[k]
		start, end := at, at
		for start > 0 && scanner.IsIdentPart(int(out[start-1])) {
			start--
		}
		for end < len(out) && scanner.IsIdentPart(int(out[end])) {
			end++
		}
		if start == end || !scanner.IsIdentStart(int(out[start])) {
			continue
		}
		if start > 0 && out[start-1] == '`' {
			continue
		}
		if k > 0 && joins[k-1] >= start {
			// Part of a longer chain of joins; the earliest join decides.
			continue
		}
		if isMacro(out[start:end]) {
			out = out[:start] + "`" + out[start:]
		}
	}
	return out
}
