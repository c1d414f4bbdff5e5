package preproc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/scanner"
)

// DefaultMaxExpansionDepth bounds the number of nested macro expansions.
const DefaultMaxExpansionDepth = 256

// IncludeResolver maps an `include name, as written in fromPath, to a file path.
type IncludeResolver interface {
	ResolveInclude(fromPath, name string) (string, bool)
}

// FileOpener opens source files.
type FileOpener interface {
	Open(path string) (io.ReadCloser, error)
}

// Config wires a Preprocessor to its collaborators.
type Config struct {
	Includes IncludeResolver
	Opener   FileOpener

	// Globals are the project-wide defines. They stay visible after `undefineall.
	Globals *MacroTable

	// Context resolves macros not defined by the run itself. Defaults to Globals.
	Context MacroProvider

	Markers           db.MarkerSink
	MaxExpansionDepth int
	Logger            logrus.FieldLogger
}

// Preprocessor expands macros, follows includes and evaluates conditional
// compilation for one root file at a time. It holds no per-run state and
// may be shared between goroutines.
type Preprocessor struct {
	cfg Config
}

// New creates a Preprocessor.
func New(cfg Config) *Preprocessor {
	if cfg.Globals == nil {
		cfg.Globals = NewMacroTable()
	}
	if cfg.Context == nil {
		cfg.Context = cfg.Globals
	}
	if cfg.Markers == nil {
		cfg.Markers = db.NopMarkerSink{}
	}
	if cfg.MaxExpansionDepth <= 0 {
		cfg.MaxExpansionDepth = DefaultMaxExpansionDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Preprocessor{cfg: cfg}
}

// Result is everything one preprocessing run produced.
type Result struct {
	Path   string
	Output *Output
	Tree   *FileTree
	Root   NodeID

	// Defines is the ordered `define/`undef snapshot of the whole run.
	Defines []db.MacroDef

	// ExternalRefs maps each macro whose lookup fell through to the context
	// (it was not defined by the run itself) to the context's definition
	// text, nil when undefined there. It is what the run depends on from
	// outside its own file tree.
	ExternalRefs map[string]*string

	// GlobalRefs is ExternalRefs for lookups made after an `undefineall,
	// which see only Globals.
	GlobalRefs map[string]*string

	Missing []db.MissingInclude
	Markers []db.Marker
}

// Files returns every file path that took part in the run.
func (r *Result) Files() []string {
	return r.Tree.Paths()
}

// PreprocessFile opens path and preprocesses it.
func (p *Preprocessor) PreprocessFile(ctx context.Context, path string) (*Result, error) {
	if p.cfg.Opener == nil {
		return nil, fmt.Errorf("no file opener configured")
	}
	rc, err := p.cfg.Opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()
	return p.Preprocess(ctx, path, rc)
}

// Preprocess runs the preprocessor over r, which holds the text of path.
// Malformed input never fails the run; it produces markers. The only
// errors returned come from ctx.
func (p *Preprocessor) Preprocess(ctx context.Context, path string, r io.Reader) (*Result, error) {
	s := &state{
		p:       p,
		ctx:     ctx,
		tree:    NewFileTree(),
		out:     &Output{},
		overlay: make(map[string]*db.MacroDef),
		log:     p.cfg.Logger.WithField("root", path),
	}
	s.res = &Result{
		Path:         path,
		Output:       s.out,
		Tree:         s.tree,
		ExternalRefs: make(map[string]*string),
		GlobalRefs:   make(map[string]*string),
	}
	root := s.tree.NewNode(path)
	s.res.Root = root
	s.inputs = []*input{{rd: scanner.New(r), path: path, node: root}}

	s.run()

	if s.err != nil {
		for _, in := range s.inputs {
			if in.closer != nil {
				in.closer.Close()
			}
		}
		return nil, s.err
	}
	return s.res, nil
}

type condFrame struct {
	active       bool
	taken        bool
	seenElse     bool
	parentActive bool
	line         int

	// regionStart is the line where the current disabled stretch began, 0 if none.
	regionStart int
}

// input is one entry of the input-source stack: a file, or the text of a
// macro expansion being rescanned on top of whatever invoked it.
type input struct {
	rd     *scanner.Reader
	path   string
	node   NodeID
	macro  string
	closer io.Closer
	conds  []condFrame
}

type state struct {
	p    *Preprocessor
	ctx  context.Context
	res  *Result
	tree *FileTree
	out  *Output
	log  logrus.FieldLogger

	inputs []*input

	// overlay holds the run's own defines; a nil value is an `undef.
	overlay        map[string]*db.MacroDef
	resetToGlobals bool

	err error
}

var passThroughDirectives = map[string]bool{
	"timescale":               true,
	"resetall":                true,
	"celldefine":              true,
	"endcelldefine":           true,
	"default_nettype":         true,
	"unconnected_drive":       true,
	"nounconnected_drive":     true,
	"pragma":                  true,
	"begin_keywords":          true,
	"end_keywords":            true,
	"line":                    true,
	"protect":                 true,
	"endprotect":              true,
	"protected":               true,
	"endprotected":            true,
	"default_decay_time":      true,
	"default_trireg_strength": true,
	"delay_mode_distributed":  true,
	"delay_mode_path":         true,
	"delay_mode_unit":         true,
	"delay_mode_zero":         true,
}

func (s *state) run() {
	for s.err == nil {
		ch := s.getCh()
		if ch == scanner.EOF {
			return
		}
		if !s.active() {
			s.skipInactive(ch)
			continue
		}
		switch ch {
		case '/':
			s.comment(true)
		case '"':
			s.stringLiteral(true)
		case '`':
			s.directive()
		default:
			s.emit(ch)
		}
	}
}

// getCh reads from the top of the input stack, popping exhausted inputs.
func (s *state) getCh() int {
	for len(s.inputs) > 0 {
		in := s.inputs[len(s.inputs)-1]
		if ch := in.rd.GetCh(); ch != scanner.EOF {
			return ch
		}
		s.inputs = s.inputs[:len(s.inputs)-1]
		if in.macro == "" {
			s.finishFile(in)
		}
	}
	return scanner.EOF
}

func (s *state) ungetCh(ch int) {
	if len(s.inputs) > 0 {
		s.inputs[len(s.inputs)-1].rd.UngetCh(ch)
	}
}

func (s *state) top() *input {
	return s.inputs[len(s.inputs)-1]
}

// fileInput returns the innermost file on the stack.
func (s *state) fileInput() *input {
	for i := len(s.inputs) - 1; i >= 0; i-- {
		if s.inputs[i].macro == "" {
			return s.inputs[i]
		}
	}
	return nil
}

func (s *state) macroDepth() int {
	n := 0
	for _, in := range s.inputs {
		if in.macro != "" {
			n++
		}
	}
	return n
}

func (s *state) curLine() int {
	if in := s.fileInput(); in != nil {
		return in.rd.Line()
	}
	return 0
}

func (s *state) emit(ch int) {
	in := s.fileInput()
	loc := SourceLine{}
	if in != nil {
		loc = SourceLine{Path: in.path, Line: in.rd.Line()}
		// The newline just read already advanced the reader's line.
		if ch == '\n' && s.top() == in {
			loc.Line--
		}
	}
	s.out.emit(byte(ch), loc)
}

func (s *state) emitString(str string) {
	for i := 0; i < len(str); i++ {
		s.emit(int(str[i]))
	}
}

func (s *state) marker(sev db.Severity, line int, msg string) {
	path := ""
	if in := s.fileInput(); in != nil {
		path = in.path
	}
	s.markerAt(path, sev, line, msg)
}

func (s *state) markerAt(path string, sev db.Severity, line int, msg string) {
	s.p.cfg.Markers.AddMarker(path, sev, line, msg)
	s.res.Markers = append(s.res.Markers, db.Marker{Path: path, Severity: sev, Line: line, Message: msg})
}

func (s *state) addItem(node NodeID, it db.PreProcItem) {
	if n := s.tree.Node(node); n != nil {
		n.File.Items = append(n.File.Items, it)
	}
}

func (s *state) active() bool {
	in := s.fileInput()
	if in == nil || len(in.conds) == 0 {
		return true
	}
	f := in.conds[len(in.conds)-1]
	return f.parentActive && f.active
}

// lookup resolves name as visible at line: the run's own defines first,
// then the context.
func (s *state) lookup(name string, line int) *db.MacroDef {
	m, _ := s.resolve(name, line)
	return m
}

func (s *state) resolve(name string, line int) (m *db.MacroDef, external bool) {
	if m, ok := s.overlay[name]; ok {
		return m, false
	}
	if s.resetToGlobals {
		return s.p.cfg.Globals.Get(name), true
	}
	return s.p.cfg.Context.FindMacro(name, line), true
}

// reference resolves name and records the reference on the current node.
func (s *state) reference(name string, line int) *db.MacroDef {
	m, external := s.resolve(name, line)
	var text *string
	if m != nil {
		t := m.Text()
		text = &t
	}
	if in := s.fileInput(); in != nil {
		if n := s.tree.Node(in.node); n != nil {
			if _, seen := n.RefMacros[name]; !seen {
				n.RefMacros[name] = text
			}
		}
	}
	if external {
		refs := s.res.ExternalRefs
		if s.resetToGlobals {
			refs = s.res.GlobalRefs
		}
		if _, seen := refs[name]; !seen {
			refs[name] = text
		}
	}
	return m
}

// skipLine discards the rest of the current line, leaving the newline.
func (s *state) skipLine() {
	rd := s.top().rd
	for {
		ch := rd.GetCh()
		if ch == scanner.EOF {
			return
		}
		if ch == '\n' {
			rd.UngetCh(ch)
			return
		}
	}
}

// comment handles a '/' just read: a line or block comment is copied (or
// skipped when !copy), anything else is a plain slash.
func (s *state) comment(copy bool) {
	rd := s.top().rd
	next := rd.GetCh()
	switch next {
	case '/':
		if copy {
			s.emitString("//")
		}
		for {
			ch := rd.GetCh()
			if ch == scanner.EOF {
				return
			}
			if ch == '\n' {
				rd.UngetCh(ch)
				return
			}
			if copy {
				s.emit(ch)
			}
		}
	case '*':
		if copy {
			s.emitString("/*")
		}
		prev := 0
		for {
			ch := rd.GetCh()
			if ch == scanner.EOF {
				return
			}
			if copy || ch == '\n' {
				s.emit(ch)
			}
			if prev == '*' && ch == '/' {
				return
			}
			prev = ch
		}
	default:
		rd.UngetCh(next)
		if copy {
			s.emit('/')
		}
	}
}

// stringLiteral handles a '"' just read. Strings are never macro-expanded.
func (s *state) stringLiteral(copy bool) {
	rd := s.top().rd
	if copy {
		s.emit('"')
	}
	for {
		ch := rd.GetCh()
		switch ch {
		case scanner.EOF:
			return
		case '\n':
			// Unterminated; let the main loop see the newline.
			rd.UngetCh(ch)
			return
		case '\\':
			if copy {
				s.emit(ch)
			}
			if next := rd.GetCh(); next != scanner.EOF {
				if copy || next == '\n' {
					s.emit(next)
				}
			}
			continue
		}
		if copy {
			s.emit(ch)
		}
		if ch == '"' {
			return
		}
	}
}

// skipInactive consumes text inside a disabled conditional branch. Only
// conditional directives are recognized; newlines are kept so the output
// keeps the shape of the source.
func (s *state) skipInactive(ch int) {
	switch ch {
	case '\n':
		s.emit(ch)
	case '/':
		s.comment(false)
	case '"':
		s.stringLiteral(false)
	case '`':
		switch name := s.top().rd.ReadIdent(); name {
		case "ifdef", "ifndef", "elsif", "else", "endif":
			s.conditional(name)
		}
	}
}

func (s *state) directive() {
	rd := s.top().rd
	name := rd.ReadIdent()
	if name == "" {
		// A stray `` or `" outside a macro body is kept as written.
		s.emit('`')
		next := rd.GetCh()
		if next == '`' || next == '"' {
			s.emit(next)
		} else {
			rd.UngetCh(next)
		}
		return
	}

	switch name {
	case "define":
		s.define()
	case "undef":
		s.undef()
	case "undefineall":
		s.undefineAll()
	case "include":
		s.include()
	case "ifdef", "ifndef", "elsif", "else", "endif":
		s.conditional(name)
	case "__FILE__":
		if in := s.fileInput(); in != nil {
			s.emitString(`"` + in.path + `"`)
		}
	case "__LINE__":
		s.emitString(strconv.Itoa(s.curLine()))
	default:
		if passThroughDirectives[name] {
			s.emitString("`" + name)
			return
		}
		s.expand(name)
	}
}

func (s *state) define() {
	rd := s.top().rd
	in := s.fileInput()
	line := s.curLine()

	rd.SkipHorizontalSpace()
	name := rd.ReadIdent()
	if name == "" {
		s.marker(db.SeverityError, line, "malformed `define: missing macro name")
		s.skipLine()
		return
	}

	var params []db.MacroParam
	if rd.Peek() == '(' {
		rd.GetCh()
		var ok bool
		params, ok = readParams(rd)
		if !ok {
			s.marker(db.SeverityError, line, fmt.Sprintf("malformed `define %s: bad parameter list", name))
			s.skipLine()
			return
		}
	}

	body, newlines := readDefineBody(rd)
	m := &db.MacroDef{Name: name, Params: params, Body: body, Path: in.path, Line: line}
	s.overlay[name] = m
	s.addItem(in.node, db.PreProcItem{Kind: db.KindMacroDef, Name: name, Line: line, Macro: m, Child: -1})
	s.res.Defines = append(s.res.Defines, *m)

	// Keep continuation lines in the output so line structure survives.
	for i := 0; i < newlines; i++ {
		s.out.emit('\n', SourceLine{Path: in.path, Line: line + i})
	}
}

func (s *state) undef() {
	rd := s.top().rd
	in := s.fileInput()
	line := s.curLine()

	rd.SkipHorizontalSpace()
	name := rd.ReadIdent()
	if name == "" {
		s.marker(db.SeverityError, line, "malformed `undef: missing macro name")
		s.skipLine()
		return
	}
	s.overlay[name] = nil
	s.addItem(in.node, db.PreProcItem{Kind: db.KindMacroUndef, Name: name, Line: line, Child: -1})
	s.res.Defines = append(s.res.Defines, db.MacroDef{Name: name, Path: in.path, Line: line, Undef: true})
}

func (s *state) undefineAll() {
	in := s.fileInput()
	line := s.curLine()
	s.overlay = make(map[string]*db.MacroDef)
	s.resetToGlobals = true
	s.addItem(in.node, db.PreProcItem{Kind: db.KindMacroUndef, Line: line, Child: -1})
	s.res.Defines = append(s.res.Defines, db.MacroDef{Path: in.path, Line: line, Undef: true})
}

// readParams parses a `define parameter list after the opening parenthesis.
func readParams(rd *scanner.Reader) ([]db.MacroParam, bool) {
	var raw strings.Builder
	depth := 0
	for {
		ch := rd.GetCh()
		switch ch {
		case scanner.EOF, '\n':
			rd.UngetCh(ch)
			return nil, false
		case '\\':
			if next := rd.GetCh(); next != '\n' {
				rd.UngetCh(next)
				raw.WriteByte('\\')
			}
			continue
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return splitParams(raw.String())
			}
			depth--
		}
		raw.WriteByte(byte(ch))
	}
}

func splitParams(raw string) ([]db.MacroParam, bool) {
	params := []db.MacroParam{}
	if strings.TrimSpace(raw) == "" {
		return params, true
	}
	for _, part := range splitTopLevel(raw) {
		p := db.MacroParam{}
		name := part
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			name = part[:eq]
			p.Default = strings.TrimSpace(part[eq+1:])
			p.HasDefault = true
		}
		p.Name = strings.TrimSpace(name)
		if !isIdent(p.Name) {
			return nil, false
		}
		params = append(params, p)
	}
	return params, true
}

// splitTopLevel splits on commas outside of nested brackets.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func isIdent(s string) bool {
	if s == "" || !scanner.IsIdentStart(int(s[0])) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !scanner.IsIdentPart(int(s[i])) {
			return false
		}
	}
	return true
}

// readDefineBody reads a macro body up to the end of the line, following
// backslash-newline continuations. Comments are dropped. It returns the
// body and the number of continuation lines consumed.
func readDefineBody(rd *scanner.Reader) (string, int) {
	var sb strings.Builder
	newlines := 0
	for {
		ch := rd.GetCh()
		switch ch {
		case scanner.EOF:
			return strings.TrimSpace(sb.String()), newlines
		case '\n':
			rd.UngetCh(ch)
			return strings.TrimSpace(sb.String()), newlines
		case '\\':
			next := rd.GetCh()
			if next == '\r' {
				if n2 := rd.GetCh(); n2 == '\n' {
					next = n2
				} else {
					rd.UngetCh(n2)
				}
			}
			if next == '\n' {
				sb.WriteByte('\n')
				newlines++
				continue
			}
			rd.UngetCh(next)
			sb.WriteByte('\\')
		case '/':
			next := rd.GetCh()
			switch next {
			case '/':
				for c := rd.GetCh(); c != scanner.EOF; c = rd.GetCh() {
					if c == '\n' {
						rd.UngetCh(c)
						break
					}
				}
				return strings.TrimSpace(sb.String()), newlines
			case '*':
				prev := 0
				for c := rd.GetCh(); c != scanner.EOF; c = rd.GetCh() {
					if c == '\n' {
						newlines++
					}
					if prev == '*' && c == '/' {
						break
					}
					prev = c
				}
				sb.WriteByte(' ')
			default:
				rd.UngetCh(next)
				sb.WriteByte('/')
			}
		case '"':
			sb.WriteByte('"')
			for c := rd.GetCh(); c != scanner.EOF; c = rd.GetCh() {
				if c == '\n' {
					rd.UngetCh(c)
					break
				}
				sb.WriteByte(byte(c))
				if c == '\\' {
					if n := rd.GetCh(); n != scanner.EOF {
						sb.WriteByte(byte(n))
					}
					continue
				}
				if c == '"' {
					break
				}
			}
		default:
			sb.WriteByte(byte(ch))
		}
	}
}

func (s *state) expand(name string) {
	line := s.curLine()
	m := s.reference(name, line)
	if m == nil {
		s.marker(db.SeverityError, line, fmt.Sprintf("macro `%s is undefined", name))
		return
	}

	var args []string
	if m.IsFunctionLike() {
		var ok bool
		if args, ok = s.collectArgs(name, line); !ok {
			return
		}
	}

	if limit := s.p.cfg.MaxExpansionDepth; s.macroDepth() >= limit {
		s.marker(db.SeverityError, line, fmt.Sprintf("%v expanding `%s (limit %d)", ErrExpansionDepth, name, limit))
		return
	}

	text, err := ExpandDefinition(m, args, func(id string) bool {
		return s.lookup(id, line) != nil
	})
	if err != nil {
		s.marker(db.SeverityError, line, err.Error())
		return
	}
	in := s.fileInput()
	s.inputs = append(s.inputs, &input{
		rd:    scanner.NewString(text),
		path:  in.path,
		node:  in.node,
		macro: name,
	})
}

// collectArgs reads the raw, unexpanded argument list of a function-like
// macro invocation. The list may start on a later line, and arguments may
// span input sources.
func (s *state) collectArgs(name string, line int) ([]string, bool) {
	var skipped []int
	ch := s.getCh()
	for ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
		skipped = append(skipped, ch)
		ch = s.getCh()
	}
	if ch != '(' {
		s.ungetCh(ch)
		for i := len(skipped) - 1; i >= 0; i-- {
			s.ungetCh(skipped[i])
		}
		s.marker(db.SeverityError, line, fmt.Sprintf("macro `%s requires an argument list", name))
		return nil, false
	}
	// Line breaks before the list stay in the output.
	if in := s.fileInput(); in != nil {
		n := 0
		for _, c := range skipped {
			if c == '\n' {
				s.out.emit('\n', SourceLine{Path: in.path, Line: line + n})
				n++
			}
		}
	}

	var args []string
	var cur strings.Builder
	depth := 0
	for {
		ch := s.getCh()
		switch ch {
		case scanner.EOF:
			s.marker(db.SeverityError, line, fmt.Sprintf("unterminated argument list for `%s", name))
			return nil, false
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 && ch == ')' {
				return append(args, cur.String()), true
			}
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				args = append(args, cur.String())
				cur.Reset()
				continue
			}
		case '"':
			cur.WriteByte('"')
			for c := s.getCh(); c != scanner.EOF; c = s.getCh() {
				cur.WriteByte(byte(c))
				if c == '\\' {
					if n := s.getCh(); n != scanner.EOF {
						cur.WriteByte(byte(n))
					}
					continue
				}
				if c == '"' || c == '\n' {
					break
				}
			}
			continue
		}
		cur.WriteByte(byte(ch))
	}
}

func (s *state) include() {
	rd := s.top().rd
	line := s.curLine()

	rd.SkipHorizontalSpace()
	var name string
	switch ch := rd.GetCh(); ch {
	case '"':
		name = readUntil(rd, '"')
	case '<':
		name = readUntil(rd, '>')
	case '`':
		id := rd.ReadIdent()
		m := s.reference(id, line)
		if m == nil || m.IsFunctionLike() {
			s.marker(db.SeverityError, line, fmt.Sprintf("`include: macro `%s does not name a file", id))
			return
		}
		name = strings.Trim(strings.TrimSpace(m.Body), `"<>`)
	default:
		rd.UngetCh(ch)
	}
	if name == "" {
		s.marker(db.SeverityError, line, "malformed `include: expected a file name")
		s.skipLine()
		return
	}
	s.includeFile(name, line)
}

// readUntil reads up to term, stopping early at end of line.
func readUntil(rd *scanner.Reader, term int) string {
	var sb strings.Builder
	for {
		ch := rd.GetCh()
		if ch == term {
			return sb.String()
		}
		if ch == '\n' || ch == scanner.EOF {
			rd.UngetCh(ch)
			return ""
		}
		sb.WriteByte(byte(ch))
	}
}

func (s *state) includeFile(name string, line int) {
	from := s.fileInput()
	unresolved := db.PreProcItem{Kind: db.KindInclude, Name: name, Line: line, Child: -1}

	resolved, ok := "", false
	if s.p.cfg.Includes != nil {
		resolved, ok = s.p.cfg.Includes.ResolveInclude(from.path, name)
	}
	if !ok {
		s.marker(db.SeverityError, line, fmt.Sprintf("include file %q not found", name))
		s.res.Missing = append(s.res.Missing, db.MissingInclude{Root: s.res.Path, File: from.path, Include: name, Line: line})
		s.addItem(from.node, unresolved)
		return
	}

	for _, in := range s.inputs {
		if in.macro == "" && in.path == resolved {
			s.marker(db.SeverityError, line, fmt.Sprintf("%v: %s is already being processed", ErrIncludeCycle, resolved))
			s.addItem(from.node, unresolved)
			return
		}
	}

	if err := s.ctx.Err(); err != nil {
		s.err = err
		return
	}

	if s.p.cfg.Opener == nil {
		s.addItem(from.node, unresolved)
		return
	}
	rc, err := s.p.cfg.Opener.Open(resolved)
	if err != nil {
		s.marker(db.SeverityError, line, fmt.Sprintf("failed to open include file %s: %v", resolved, err))
		s.res.Missing = append(s.res.Missing, db.MissingInclude{Root: s.res.Path, File: from.path, Include: name, Line: line})
		s.addItem(from.node, unresolved)
		return
	}

	child := s.tree.NewNode(resolved)
	s.tree.Link(from.node, child)
	s.addItem(from.node, db.PreProcItem{Kind: db.KindInclude, Name: resolved, Line: line, Child: int(child)})
	s.log.WithFields(logrus.Fields{"file": from.path, "include": resolved}).Debug("entering include")

	if !s.out.atLineStart() {
		s.emit('\n')
	}
	s.inputs = append(s.inputs, &input{rd: scanner.New(rc), path: resolved, node: child, closer: rc})
}

// finishFile runs when a file input is exhausted and popped.
func (s *state) finishFile(in *input) {
	end := in.rd.Line()
	for i := len(in.conds) - 1; i >= 0; i-- {
		f := in.conds[i]
		s.markerAt(in.path, db.SeverityError, f.line, "unterminated conditional: missing `endif")
		if f.parentActive && f.regionStart > 0 {
			s.addItem(in.node, db.PreProcItem{Kind: db.KindUnprocessedRegion, Line: f.regionStart, EndLine: end, Child: -1})
		}
	}
	in.conds = nil

	if err := in.rd.Err(); err != nil {
		s.markerAt(in.path, db.SeverityError, end, fmt.Sprintf("read error: %v", err))
	}
	if in.closer != nil {
		in.closer.Close()
	}
	if n := s.tree.Node(in.node); n != nil {
		n.Processed = true
	}
	if len(s.inputs) > 0 {
		if !s.out.atLineStart() {
			s.out.emit('\n', SourceLine{Path: in.path, Line: end})
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
		}
	}
}

func (s *state) conditional(name string) {
	rd := s.top().rd
	in := s.fileInput()
	line := s.curLine()

	readName := func() string {
		rd.SkipHorizontalSpace()
		id := rd.ReadIdent()
		if id == "" && s.active() {
			s.marker(db.SeverityError, line, fmt.Sprintf("malformed `%s: expected a macro name", name))
		}
		return id
	}
	isDefined := func(id string) bool {
		return id != "" && s.reference(id, line) != nil
	}

	switch name {
	case "ifdef", "ifndef":
		f := condFrame{parentActive: s.active(), line: line}
		id := readName()
		if f.parentActive {
			cond := isDefined(id)
			if name == "ifndef" {
				cond = !cond
			}
			f.active, f.taken = cond, cond
			if !cond {
				f.regionStart = line
			}
		}
		in.conds = append(in.conds, f)

	case "elsif":
		id := readName()
		if len(in.conds) == 0 {
			s.marker(db.SeverityError, line, "`elsif without matching `ifdef")
			return
		}
		f := &in.conds[len(in.conds)-1]
		if f.seenElse {
			s.marker(db.SeverityError, line, "`elsif after `else")
		}
		if !f.parentActive {
			return
		}
		if f.taken {
			if f.active {
				f.active = false
				f.regionStart = line
			}
			return
		}
		if isDefined(id) {
			s.closeRegion(in, f, line)
			f.active, f.taken = true, true
		}

	case "else":
		if len(in.conds) == 0 {
			s.marker(db.SeverityError, line, "`else without matching `ifdef")
			return
		}
		f := &in.conds[len(in.conds)-1]
		if f.seenElse {
			s.marker(db.SeverityError, line, "duplicate `else")
		}
		f.seenElse = true
		if !f.parentActive {
			return
		}
		if f.taken {
			if f.active {
				f.active = false
				f.regionStart = line
			}
			return
		}
		s.closeRegion(in, f, line)
		f.active, f.taken = true, true

	case "endif":
		if len(in.conds) == 0 {
			s.marker(db.SeverityError, line, "`endif without matching `ifdef")
			return
		}
		f := in.conds[len(in.conds)-1]
		in.conds = in.conds[:len(in.conds)-1]
		if f.parentActive {
			s.closeRegion(in, &f, line)
		}
	}
}

// closeRegion records the disabled stretch that ends at line, if any.
func (s *state) closeRegion(in *input, f *condFrame, line int) {
	if f.regionStart == 0 {
		return
	}
	s.addItem(in.node, db.PreProcItem{
		Kind:    db.KindUnprocessedRegion,
		Line:    f.regionStart,
		EndLine: line,
		Child:   -1,
	})
	f.regionStart = 0
}
