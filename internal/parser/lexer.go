package parser

import (
	"github.com/mvp-joe/svdb/internal/scanner"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// lex splits preprocessed text into the tokens the declaration parser
// cares about. Comments, strings and compiler directives left in the text
// are dropped.
func lex(src string) []token {
	var toks []token
	line, lineStart := 1, 0
	n := len(src)

	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
			lineStart = i
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			i++
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			i += 2
			for i < n && !(src[i] == '*' && i+1 < n && src[i+1] == '/') {
				if src[i] == '\n' {
					line++
					lineStart = i + 1
				}
				i++
			}
			i += 2
		case c == '"':
			i++
			for i < n && src[i] != '"' && src[i] != '\n' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i++
		case c == '`':
			i++
			for i < n && scanner.IsIdentPart(int(src[i])) {
				i++
			}
		case c == '\\':
			// Escaped identifier, terminated by white space.
			start := i
			for i < n && src[i] != ' ' && src[i] != '\t' && src[i] != '\n' && src[i] != '\r' {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start+1 : i], line: line, col: start - lineStart})
		case scanner.IsIdentStart(int(c)) || c == '$':
			start := i
			for i < n && scanner.IsIdentPart(int(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], line: line, col: start - lineStart})
		case c >= '0' && c <= '9':
			start := i
			for i < n && (scanner.IsIdentPart(int(src[i])) || src[i] == '\'' || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], line: line, col: start - lineStart})
		case c == ':' && i+1 < n && src[i+1] == ':':
			toks = append(toks, token{kind: tokPunct, text: "::", line: line, col: i - lineStart})
			i += 2
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c), line: line, col: i - lineStart})
			i++
		}
	}
	return append(toks, token{kind: tokEOF, line: line})
}
