package preproc

import "strings"

// SourceLine is the origin of one output line.
type SourceLine struct {
	Path string
	Line int
}

// Output is the processed text of a root file together with a map from
// each output line back to the file and line it came from. Text produced
// by a macro expansion maps to the line of the invocation.
type Output struct {
	sb          strings.Builder
	lines       []SourceLine
	lineStarted bool
}

func (o *Output) emit(ch byte, loc SourceLine) {
	if !o.lineStarted {
		o.lines = append(o.lines, loc)
		o.lineStarted = true
	}
	o.sb.WriteByte(ch)
	if ch == '\n' {
		o.lineStarted = false
	}
}

func (o *Output) emitString(s string, loc SourceLine) {
	for i := 0; i < len(s); i++ {
		o.emit(s[i], loc)
	}
}

// atLineStart reports whether the next character begins a new output line.
func (o *Output) atLineStart() bool {
	return !o.lineStarted
}

// Text returns the processed text.
func (o *Output) Text() string {
	return o.sb.String()
}

// LineCount returns the number of output lines.
func (o *Output) LineCount() int {
	return len(o.lines)
}

// Location maps a 1-based output line to its source line.
func (o *Output) Location(outLine int) (SourceLine, bool) {
	if outLine < 1 || outLine > len(o.lines) {
		return SourceLine{}, false
	}
	return o.lines[outLine-1], true
}
