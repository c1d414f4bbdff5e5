// Package scanner adapts a byte stream into a character source with
// unlimited pushback and line tracking.
package scanner

import (
	"errors"
	"io"
	"strings"
)

// EOF is returned by GetCh once the stream is exhausted or has failed.
const EOF = -1

// chunkSize bounds the size of each read from the underlying stream.
const chunkSize = 4096

// Reader buffers an io.Reader in fixed-size chunks and hands out one
// character at a time. Any number of characters may be pushed back.
//
// Read failures end the stream like a clean EOF does; Err reports the
// failure so callers that care can tell the two apart.
type Reader struct {
	src    io.Reader
	buf    []byte
	pos    int
	n      int
	unget  []int
	line   int
	err    error
	closed bool
}

// New creates a Reader over r. Line numbering starts at 1.
func New(r io.Reader) *Reader {
	return &Reader{
		src:  r,
		buf:  make([]byte, chunkSize),
		line: 1,
	}
}

// NewString creates a Reader over an in-memory string.
func NewString(s string) *Reader {
	return New(strings.NewReader(s))
}

// GetCh returns the next character or EOF.
func (r *Reader) GetCh() int {
	var ch int
	if n := len(r.unget); n > 0 {
		ch = r.unget[n-1]
		r.unget = r.unget[:n-1]
	} else {
		if r.pos >= r.n && !r.fill() {
			return EOF
		}
		ch = int(r.buf[r.pos])
		r.pos++
	}
	if ch == '\n' {
		r.line++
	}
	return ch
}

// UngetCh pushes ch back so the next GetCh returns it. Pushing back EOF is a no-op.
func (r *Reader) UngetCh(ch int) {
	if ch == EOF {
		return
	}
	if ch == '\n' {
		r.line--
	}
	r.unget = append(r.unget, ch)
}

// Peek returns the next character without consuming it.
func (r *Reader) Peek() int {
	ch := r.GetCh()
	r.UngetCh(ch)
	return ch
}

// Line returns the line number of the next character to be read.
func (r *Reader) Line() int {
	return r.line
}

// Err returns the read error that ended the stream, or nil on a clean EOF.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fill() bool {
	if r.closed {
		return false
	}
	for {
		n, err := r.src.Read(r.buf)
		r.pos, r.n = 0, n
		if err != nil {
			r.closed = true
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			return n > 0
		}
		if n > 0 {
			return true
		}
	}
}

// IsIdentStart reports whether ch can start a SystemVerilog identifier.
func IsIdentStart(ch int) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// IsIdentPart reports whether ch can continue a SystemVerilog identifier.
func IsIdentPart(ch int) bool {
	return IsIdentStart(ch) || (ch >= '0' && ch <= '9') || ch == '$'
}

// IsSpace reports whether ch is horizontal or vertical whitespace.
func IsSpace(ch int) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

// ReadIdent reads an identifier starting with the next character. It
// returns "" and consumes nothing when the next character cannot start one.
func (r *Reader) ReadIdent() string {
	ch := r.GetCh()
	if !IsIdentStart(ch) {
		r.UngetCh(ch)
		return ""
	}
	var sb strings.Builder
	for IsIdentPart(ch) {
		sb.WriteByte(byte(ch))
		ch = r.GetCh()
	}
	r.UngetCh(ch)
	return sb.String()
}

// SkipHorizontalSpace consumes spaces and tabs, leaving the next other character unread.
func (r *Reader) SkipHorizontalSpace() {
	ch := r.GetCh()
	for ch == ' ' || ch == '\t' || ch == '\r' {
		ch = r.GetCh()
	}
	r.UngetCh(ch)
}
