package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/scanner"
)

// ArgFile is the content of a compiler argument file (.f) and the files it
// pulls in through -f.
type ArgFile struct {
	Path        string
	Sources     []string
	IncludeDirs []string
	Defines     map[string]string

	// MFCU is set by -mfcu: all sources form one compilation unit, so macros
	// defined by one source stay visible in the sources after it.
	MFCU bool
}

// options that consume the following argument and are otherwise ignored.
var argFileSkipWithValue = map[string]bool{
	"-y":         true,
	"-v":         true,
	"-l":         true,
	"-top":       true,
	"-timescale": true,
}

type argToken struct {
	text string
	line int
}

// ParseArgFile reads the argument file at path. Problems inside the file
// (a missing nested file, a recursive -f) become markers on the file that
// contains them; only failing to open path itself is an error.
func ParseArgFile(provider fs.Provider, path string, markers db.MarkerSink) (*ArgFile, error) {
	if markers == nil {
		markers = db.NopMarkerSink{}
	}
	path = provider.ResolvePath(path, "")
	af := &ArgFile{Path: path, Defines: map[string]string{}}
	p := &argFileParser{fs: provider, markers: markers, out: af, active: map[string]bool{}}
	if err := p.parse(path); err != nil {
		return nil, err
	}
	return af, nil
}

type argFileParser struct {
	fs      fs.Provider
	markers db.MarkerSink
	out     *ArgFile
	active  map[string]bool
}

func (p *argFileParser) parse(path string) error {
	rc, err := p.fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open argument file %s: %w", path, err)
	}
	toks := tokenizeArgFile(scanner.New(rc))
	rc.Close()

	p.active[path] = true
	defer delete(p.active, path)

	dir := filepath.Dir(path)
	next := func(i int) (argToken, bool) {
		if i+1 < len(toks) {
			return toks[i+1], true
		}
		p.markers.AddMarker(path, db.SeverityError, toks[i].line, fmt.Sprintf("option %s expects an argument", toks[i].text))
		return argToken{}, false
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		arg := os.ExpandEnv(t.text)
		switch {
		case strings.HasPrefix(arg, "+incdir+"):
			for _, d := range splitPlus(arg[len("+incdir+"):]) {
				p.out.IncludeDirs = append(p.out.IncludeDirs, p.fs.ResolvePath(d, dir))
			}

		case strings.HasPrefix(arg, "+define+"):
			for _, d := range splitPlus(arg[len("+define+"):]) {
				p.define(d)
			}

		case arg == "-incdir" || arg == "+incdir":
			if v, ok := next(i); ok {
				p.out.IncludeDirs = append(p.out.IncludeDirs, p.fs.ResolvePath(os.ExpandEnv(v.text), dir))
				i++
			}

		case arg == "-D" || arg == "-define":
			if v, ok := next(i); ok {
				p.define(os.ExpandEnv(v.text))
				i++
			}

		case strings.HasPrefix(arg, "-D"):
			p.define(arg[2:])

		case arg == "-f" || arg == "-F":
			v, ok := next(i)
			if !ok {
				continue
			}
			i++
			nested := p.fs.ResolvePath(os.ExpandEnv(v.text), dir)
			if p.active[nested] {
				p.markers.AddMarker(path, db.SeverityError, v.line, fmt.Sprintf("argument file %s includes itself", nested))
				continue
			}
			if err := p.parse(nested); err != nil {
				p.markers.AddMarker(path, db.SeverityError, v.line, err.Error())
			}

		case arg == "-mfcu":
			p.out.MFCU = true

		case arg == "-sfcu":
			p.out.MFCU = false

		case argFileSkipWithValue[arg]:
			if _, ok := next(i); ok {
				i++
			}

		case strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "+"):
			// Tool options that do not affect indexing.

		default:
			src := p.fs.ResolvePath(arg, dir)
			if !p.fs.Exists(src) {
				p.markers.AddMarker(path, db.SeverityWarning, t.line, fmt.Sprintf("source file %s not found", src))
			}
			p.out.Sources = append(p.out.Sources, src)
		}
	}
	return nil
}

func (p *argFileParser) define(d string) {
	if d == "" {
		return
	}
	name, value, _ := strings.Cut(d, "=")
	p.out.Defines[name] = value
}

func splitPlus(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "+") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// tokenizeArgFile splits an argument file into whitespace separated tokens.
// Double quotes group, and //, # and /* */ comments are dropped.
func tokenizeArgFile(rd *scanner.Reader) []argToken {
	var toks []argToken
	var sb strings.Builder
	start := 0

	flush := func() {
		if sb.Len() > 0 {
			toks = append(toks, argToken{text: sb.String(), line: start})
			sb.Reset()
		}
	}
	skipLine := func() {
		for ch := rd.GetCh(); ch != scanner.EOF && ch != '\n'; ch = rd.GetCh() {
		}
	}

	for {
		line := rd.Line()
		ch := rd.GetCh()
		switch {
		case ch == scanner.EOF:
			flush()
			return toks

		case scanner.IsSpace(ch):
			flush()

		case ch == '#' && sb.Len() == 0:
			skipLine()

		case ch == '/' && sb.Len() == 0 && rd.Peek() == '/':
			skipLine()

		case ch == '/' && sb.Len() == 0 && rd.Peek() == '*':
			rd.GetCh()
			prev := 0
			for c := rd.GetCh(); c != scanner.EOF; c = rd.GetCh() {
				if prev == '*' && c == '/' {
					break
				}
				prev = c
			}

		case ch == '"':
			if sb.Len() == 0 {
				start = line
			}
			for c := rd.GetCh(); c != scanner.EOF && c != '"' && c != '\n'; c = rd.GetCh() {
				sb.WriteByte(byte(c))
			}

		default:
			if sb.Len() == 0 {
				start = line
			}
			sb.WriteByte(byte(ch))
		}
	}
}
