// Package parser extracts declarations from preprocessed SystemVerilog.
//
// It is not a full SystemVerilog parser. It recognizes the design units,
// classes, subroutines, typedefs and covergroups that the declaration cache
// indexes, and skips everything else token by token.
package parser

import (
	"strings"

	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/preproc"
)

// Locator maps a line of the parsed text to the file and line it came from.
type Locator func(line int) (path string, srcLine int, ok bool)

var endKeywords = map[string]bool{
	"endmodule":    true,
	"endinterface": true,
	"endprogram":   true,
	"endpackage":   true,
	"endclass":     true,
	"endfunction":  true,
	"endtask":      true,
	"endgroup":     true,
}

// ParseText parses the text of a single file.
func ParseText(path, text string) *db.File {
	items := Parse(text, func(line int) (string, int, bool) {
		return path, line, true
	})
	return &db.File{Path: path, Items: items}
}

// ParseOutput parses preprocessed output and groups the top-level items by
// the file they were written in. Files that contributed no declarations
// have no entry.
func ParseOutput(out *preproc.Output) map[string]*db.File {
	items := Parse(out.Text(), func(line int) (string, int, bool) {
		loc, ok := out.Location(line)
		return loc.Path, loc.Line, ok
	})
	files := make(map[string]*db.File)
	for _, it := range items {
		f, ok := files[it.Path]
		if !ok {
			f = &db.File{Path: it.Path}
			files[it.Path] = f
		}
		f.Items = append(f.Items, it)
	}
	return files
}

// Parse extracts the declarations in text. Item locations go through loc.
func Parse(text string, loc Locator) []db.Item {
	p := &parser{toks: lex(text), loc: loc}
	return p.body("")
}

type parser struct {
	toks []token
	i    int
	loc  Locator

	// lastEnd is the end keyword that closed the most recent body.
	lastEnd token
}

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(k int) token {
	if p.i+k >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+k]
}

func (p *parser) next() token {
	t := p.peek()
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// body parses items until the end keyword end. An unrelated end keyword is
// left for an enclosing body, which recovers from a missing end.
func (p *parser) body(end string) []db.Item {
	var items []db.Item
	for {
		t := p.next()
		if t.kind == tokEOF {
			p.lastEnd = token{}
			return items
		}
		if t.kind != tokIdent {
			continue
		}

		var it *db.Item
		switch t.text {
		case "module", "macromodule":
			it = p.container(t, db.KindModule, "endmodule")
		case "program":
			it = p.container(t, db.KindProgram, "endprogram")
		case "package":
			it = p.container(t, db.KindPackage, "endpackage")
		case "interface":
			if p.peek().text == "class" {
				p.next()
				it = p.class(t)
			} else {
				it = p.container(t, db.KindInterface, "endinterface")
			}
		case "virtual":
			switch p.peek().text {
			case "class":
				p.next()
				it = p.class(t)
			case "interface":
				// Virtual interface handle, not a declaration.
				p.next()
			}
		case "class":
			it = p.class(t)
		case "function":
			it = p.subroutine(t, db.KindFunction, "endfunction")
		case "task":
			it = p.subroutine(t, db.KindTask, "endtask")
		case "typedef":
			it = p.typedef(t)
		case "covergroup":
			it = p.container(t, db.KindCovergroup, "endgroup")
		case "extern", "pure", "import", "export":
			p.skipStatement()
		default:
			if endKeywords[t.text] {
				if t.text == end {
					p.lastEnd = t
					return items
				}
				if end != "" {
					p.i--
					p.lastEnd = token{}
					return items
				}
			}
		}
		if it != nil {
			items = append(items, *it)
		}
	}
}

func (p *parser) newItem(t token, kind db.ItemKind) *db.Item {
	it := &db.Item{Kind: kind, Pos: t.col}
	if path, line, ok := p.loc(t.line); ok {
		it.Path, it.Line = path, line
	}
	return it
}

// finish records where the body closed by p.lastEnd ended.
func (p *parser) finish(it *db.Item) {
	if p.lastEnd.kind == tokEOF {
		return
	}
	if path, line, ok := p.loc(p.lastEnd.line); ok && path == it.Path {
		it.EndLine = line
	}
}

func (p *parser) skipLifetime() {
	if t := p.peek(); t.text == "static" || t.text == "automatic" {
		p.next()
	}
}

func (p *parser) container(t token, kind db.ItemKind, end string) *db.Item {
	it := p.newItem(t, kind)
	p.skipLifetime()
	name := p.next()
	if name.kind != tokIdent {
		return nil
	}
	it.Name = name.text
	p.skipStatement()
	it.Children = p.body(end)
	p.finish(it)
	return it
}

func (p *parser) class(t token) *db.Item {
	it := p.newItem(t, db.KindClass)
	p.skipLifetime()
	name := p.next()
	if name.kind != tokIdent {
		return nil
	}
	it.Name = name.text
	if p.peek().text == "#" {
		p.next()
		if p.peek().text == "(" {
			p.next()
			p.skipGroup("(", ")")
		}
	}
	if p.peek().text == "extends" {
		p.next()
		it.Super = p.qualifiedName()
	}
	p.skipStatement()
	it.Children = p.body("endclass")
	p.finish(it)
	return it
}

func (p *parser) subroutine(t token, kind db.ItemKind, end string) *db.Item {
	it := p.newItem(t, kind)
	scoped := false
	for {
		x := p.next()
		if x.kind == tokEOF {
			return nil
		}
		switch {
		case x.text == "(":
			p.skipGroup("(", ")")
			p.skipStatement()
		case x.text == ";":
		case x.text == "[":
			p.skipGroup("[", "]")
			continue
		case x.text == "::":
			scoped = true
			continue
		case x.kind == tokIdent:
			if scoped {
				it.Name += "::" + x.text
			} else {
				it.Name = x.text
			}
			scoped = false
			continue
		default:
			continue
		}
		break
	}
	if it.Name == "" {
		return nil
	}
	it.Children = p.body(end)
	p.finish(it)
	return it
}

func (p *parser) typedef(t token) *db.Item {
	switch p.peek().text {
	case "class":
		// Forward declaration.
		p.skipStatement()
		return nil
	case "interface":
		if p.peekAt(1).text == "class" {
			p.skipStatement()
			return nil
		}
	}

	it := p.newItem(t, db.KindTypedef)
	isEnum := false
	for {
		x := p.next()
		switch {
		case x.kind == tokEOF, x.text == ";":
			if it.Name == "" {
				return nil
			}
			it.EndLine = it.Line
			return it
		case x.text == "enum":
			isEnum = true
		case x.text == "{":
			if isEnum {
				it.Enumerators = p.enumerators()
			} else {
				p.skipGroup("{", "}")
			}
		case x.text == "[":
			p.skipGroup("[", "]")
		case x.text == "(":
			p.skipGroup("(", ")")
		case x.kind == tokIdent:
			it.Name = x.text
		}
	}
}

// enumerators parses an enum body after its opening brace.
func (p *parser) enumerators() []db.Enumerator {
	var out []db.Enumerator
	for {
		x := p.next()
		switch {
		case x.kind == tokEOF, x.text == "}":
			return out
		case x.kind == tokIdent:
			e := db.Enumerator{Name: x.text}
			if p.peek().text == "[" {
				p.next()
				p.skipGroup("[", "]")
			}
			if p.peek().text == "=" {
				p.next()
				e.Value = p.enumValue()
			}
			out = append(out, e)
		}
	}
}

// enumValue collects the text of an enumerator value. A closing '}' is
// left unread.
func (p *parser) enumValue() string {
	var sb strings.Builder
	depth := 0
	for {
		x := p.peek()
		if x.kind == tokEOF {
			return sb.String()
		}
		switch x.text {
		case "(", "[", "{":
			depth++
		case ")", "]":
			depth--
		case "}":
			if depth == 0 {
				return sb.String()
			}
			depth--
		case ",":
			if depth == 0 {
				p.next()
				return sb.String()
			}
		}
		sb.WriteString(x.text)
		p.next()
	}
}

func (p *parser) qualifiedName() string {
	var sb strings.Builder
	for {
		x := p.peek()
		if x.kind != tokIdent {
			break
		}
		p.next()
		sb.WriteString(x.text)
		if p.peek().text != "::" {
			break
		}
		p.next()
		sb.WriteString("::")
	}
	return sb.String()
}

// skipGroup skips to the close matching an already consumed open.
func (p *parser) skipGroup(open, close string) {
	depth := 1
	for depth > 0 {
		x := p.next()
		switch x.text {
		case open:
			depth++
		case close:
			depth--
		}
		if x.kind == tokEOF {
			return
		}
	}
}

// skipStatement skips past the next ';' outside of brackets.
func (p *parser) skipStatement() {
	for {
		x := p.next()
		switch x.text {
		case ";":
			return
		case "(":
			p.skipGroup("(", ")")
		case "[":
			p.skipGroup("[", "]")
		case "{":
			p.skipGroup("{", "}")
		}
		if x.kind == tokEOF {
			return
		}
	}
}
