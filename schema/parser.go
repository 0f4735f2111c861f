package schema

import (
	"strconv"
)

// Parse lexes and parses .blink source text into an untyped [AST]. Parse
// errors wrap [blinkerr.ErrParse] and carry a line/column locator.
func Parse(src string) (*AST, error) {
	lx := newLexer(src)

	var toks []token

	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}

		toks = append(toks, t)

		if t.kind == tokEOF {
			break
		}
	}

	p := &parser{toks: toks}

	return p.parseAST()
}

type parser struct {
	toks []token
	pos  int
	ns   string // current default namespace, set by `namespace` directives
}

func (p *parser) peek() token      { return p.toks[p.pos] }
func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}

	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}

	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != k {
		return token{}, parseErrf(t.line, t.col, "expected %s, got %q", what, t.text)
	}

	return p.advance(), nil
}

func (p *parser) expectIdent(text string) (token, error) {
	t := p.peek()
	if t.kind != tokIdent || t.text != text {
		return token{}, parseErrf(t.line, t.col, "expected %q, got %q", text, t.text)
	}

	return p.advance(), nil
}

func (p *parser) atIdent(text string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == text
}

// tightQName parses `name` or, when a colon immediately follows the first
// identifier with no surrounding whitespace, `ns:name`.
func (p *parser) tightQName() (astQName, error) {
	first, err := p.expect(tokIdent, "identifier")
	if err != nil {
		return astQName{}, err
	}

	if p.peek().kind == tokColon &&
		p.peek().line == first.line && p.peek().col == first.col+len(first.text) &&
		p.peekAt(1).kind == tokIdent &&
		p.peekAt(1).line == p.peek().line && p.peekAt(1).col == p.peek().col+1 {
		p.advance() // colon

		second := p.advance()

		return astQName{Namespace: first.text, Name: second.text}, nil
	}

	return astQName{Name: first.text}, nil
}

func (p *parser) parseAST() (*AST, error) {
	ast := &AST{}

	for p.peek().kind != tokEOF {
		switch {
		case p.atIdent("namespace"):
			if err := p.parseNamespace(); err != nil {
				return nil, err
			}
		case p.atIdent("enum"):
			e, err := p.parseEnum()
			if err != nil {
				return nil, err
			}

			ast.Enums = append(ast.Enums, e)
		case p.atIdent("type"):
			td, err := p.parseTypeDef()
			if err != nil {
				return nil, err
			}

			ast.TypeDefs = append(ast.TypeDefs, td)
		case p.atIdent("annotate"):
			inc, err := p.parseIncremental()
			if err != nil {
				return nil, err
			}

			ast.Incremental = append(ast.Incremental, inc)
		default:
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}

			ast.Groups = append(ast.Groups, g)
		}
	}

	return ast, nil
}

func (p *parser) parseNamespace() error {
	if _, err := p.expectIdent("namespace"); err != nil {
		return err
	}

	name, err := p.expect(tokIdent, "namespace name")
	if err != nil {
		return err
	}

	p.ns = name.text

	return nil
}

// arrow consumes the two-token "->" sequence (tokMinus, tokRAngle).
func (p *parser) arrow() error {
	m := p.peek()
	if m.kind != tokMinus {
		return parseErrf(m.line, m.col, "expected '->', got %q", m.text)
	}

	p.advance()

	r := p.peek()
	if r.kind != tokRAngle {
		return parseErrf(r.line, r.col, "expected '->', got '-%s'", r.text)
	}

	p.advance()

	return nil
}

func (p *parser) parseGroup() (astGroup, error) {
	pos := astPos{p.peek().line, p.peek().col}

	name, err := p.expect(tokIdent, "group name")
	if err != nil {
		return astGroup{}, err
	}

	g := astGroup{Namespace: p.ns, Name: name.text, Pos: pos}

	if p.peek().kind == tokSlash {
		p.advance()

		n, err := p.expect(tokNumber, "type id")
		if err != nil {
			return astGroup{}, err
		}

		v, err := strconv.ParseUint(n.text, 10, 64)
		if err != nil {
			return astGroup{}, parseErrf(n.line, n.col, "invalid type id %q", n.text)
		}

		g.TypeID = &v
	}

	if p.peek().kind == tokColon {
		p.advance()

		super, err := p.tightQName()
		if err != nil {
			return astGroup{}, err
		}

		g.Super = &super
	}

	if err := p.arrow(); err != nil {
		return astGroup{}, err
	}

	for {
		f, err := p.parseField()
		if err != nil {
			return astGroup{}, err
		}

		g.Fields = append(g.Fields, f)

		if p.peek().kind == tokComma {
			p.advance()

			continue
		}

		break
	}

	anns, err := p.parseTrailingAnnotations()
	if err != nil {
		return astGroup{}, err
	}

	g.Annotations = anns

	return g, nil
}

func (p *parser) parseField() (astField, error) {
	pos := astPos{p.peek().line, p.peek().col}

	typ, err := p.parseType()
	if err != nil {
		return astField{}, err
	}

	if p.peek().kind == tokStar {
		p.advance()

		typ.Dynamic = true
	}

	name, err := p.expect(tokIdent, "field name")
	if err != nil {
		return astField{}, err
	}

	f := astField{Type: typ, Name: name.text, Pos: pos}

	if p.peek().kind == tokQuestion {
		p.advance()

		f.Optional = true
	}

	anns, err := p.parseInlineAnnotations()
	if err != nil {
		return astField{}, err
	}

	f.Annotations = anns

	return f, nil
}

// parseInlineAnnotations parses zero or more `@key=value` pairs attached to
// a field, stopping at the next comma or end of field list.
func (p *parser) parseInlineAnnotations() ([]astAnnotation, error) {
	var anns []astAnnotation

	for p.peek().kind == tokAt {
		a, err := p.parseOneAnnotation()
		if err != nil {
			return nil, err
		}

		anns = append(anns, a)
	}

	return anns, nil
}

// parseTrailingAnnotations parses `@key=value` pairs that follow a group's
// full field list, applying to the group itself.
func (p *parser) parseTrailingAnnotations() ([]astAnnotation, error) {
	return p.parseInlineAnnotations()
}

func (p *parser) parseOneAnnotation() (astAnnotation, error) {
	if _, err := p.expect(tokAt, "'@'"); err != nil {
		return astAnnotation{}, err
	}

	key, err := p.expect(tokIdent, "annotation key")
	if err != nil {
		return astAnnotation{}, err
	}

	if _, err := p.expect(tokEq, "'='"); err != nil {
		return astAnnotation{}, err
	}

	val, err := p.parseAnnotationValue()
	if err != nil {
		return astAnnotation{}, err
	}

	return astAnnotation{Key: key.text, Value: val}, nil
}

func (p *parser) parseAnnotationValue() (string, error) {
	t := p.peek()

	switch t.kind {
	case tokString, tokIdent, tokNumber:
		p.advance()

		// '-' and the word after it join a bare value when no whitespace
		// separates them, so `@owner=team-a` reads as "team-a".
		val, end := t.text, t.col+len(t.text)
		for dash, word := p.peek(), p.peekAt(1); dash.kind == tokMinus && dash.line == t.line && dash.col == end &&
			(word.kind == tokIdent || word.kind == tokNumber) && word.col == end+1; dash, word = p.peek(), p.peekAt(1) {
			p.advance()
			p.advance()
			val += "-" + word.text
			end = word.col + len(word.text)
		}

		return val, nil
	case tokMinus:
		p.advance()

		n, err := p.expect(tokNumber, "number")
		if err != nil {
			return "", err
		}

		return "-" + n.text, nil
	default:
		return "", parseErrf(t.line, t.col, "expected annotation value, got %q", t.text)
	}
}

func (p *parser) parseType() (astType, error) {
	pos := astPos{p.peek().line, p.peek().col}

	if p.atIdent("sequence") {
		p.advance()

		if _, err := p.expect(tokLAngle, "'<'"); err != nil {
			return astType{}, err
		}

		elem, err := p.parseType()
		if err != nil {
			return astType{}, err
		}

		if _, err := p.expect(tokRAngle, "'>'"); err != nil {
			return astType{}, err
		}

		return astType{Kind: astKindSequence, Elem: &elem, Pos: pos}, nil
	}

	if p.atIdent("object") {
		p.advance()

		return astType{Kind: astKindObject, Pos: pos}, nil
	}

	if p.atIdent("fixed") {
		p.advance()

		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return astType{}, err
		}

		n, err := p.expect(tokNumber, "fixed size")
		if err != nil {
			return astType{}, err
		}

		size, convErr := strconv.ParseUint(n.text, 10, 64)
		if convErr != nil {
			return astType{}, parseErrf(n.line, n.col, "invalid fixed size %q", n.text)
		}

		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return astType{}, err
		}

		return astType{Kind: astKindFixed, FixedSize: size, Pos: pos}, nil
	}

	if p.atIdent("string") || p.atIdent("binary") {
		isString := p.atIdent("string")
		p.advance()

		var max *uint64

		if p.peek().kind == tokLParen {
			p.advance()

			n, err := p.expect(tokNumber, "max size")
			if err != nil {
				return astType{}, err
			}

			v, convErr := strconv.ParseUint(n.text, 10, 64)
			if convErr != nil {
				return astType{}, parseErrf(n.line, n.col, "invalid max size %q", n.text)
			}

			max = &v

			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return astType{}, err
			}
		}

		kind := astKindBinary
		if isString {
			kind = astKindString
		}

		return astType{Kind: kind, Max: max, Pos: pos}, nil
	}

	if prim, ok := primitiveByName[p.peek().text]; ok && p.peek().kind == tokIdent {
		p.advance()

		return astType{Kind: astKindPrimitive, Primitive: prim, Pos: pos}, nil
	}

	// Otherwise this is a named reference to an enum, typedef, or group.
	ref, err := p.tightQName()
	if err != nil {
		return astType{}, err
	}

	return astType{Kind: astKindNamed, Ref: ref, Pos: pos}, nil
}

func (p *parser) parseEnum() (astEnum, error) {
	pos := astPos{p.peek().line, p.peek().col}

	if _, err := p.expectIdent("enum"); err != nil {
		return astEnum{}, err
	}

	name, err := p.expect(tokIdent, "enum name")
	if err != nil {
		return astEnum{}, err
	}

	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return astEnum{}, err
	}

	e := astEnum{Namespace: p.ns, Name: name.text, Pos: pos}
	next := int32(0)

	for p.peek().kind != tokRBrace {
		symName, err := p.expect(tokIdent, "enum symbol")
		if err != nil {
			return astEnum{}, err
		}

		sym := astEnumSymbol{Name: symName.text, Value: next}

		if p.peek().kind == tokEq {
			p.advance()

			neg := false
			if p.peek().kind == tokMinus {
				p.advance()

				neg = true
			}

			n, err := p.expect(tokNumber, "enum value")
			if err != nil {
				return astEnum{}, err
			}

			v, convErr := strconv.ParseInt(n.text, 10, 32)
			if convErr != nil {
				return astEnum{}, parseErrf(n.line, n.col, "invalid enum value %q", n.text)
			}

			if neg {
				v = -v
			}

			sym.Value = int32(v)
			sym.HasValue = true
		}

		e.Symbols = append(e.Symbols, sym)
		next = sym.Value + 1

		if p.peek().kind == tokComma {
			p.advance()

			continue
		}

		break
	}

	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return astEnum{}, err
	}

	return e, nil
}

func (p *parser) parseTypeDef() (astTypeDef, error) {
	pos := astPos{p.peek().line, p.peek().col}

	if _, err := p.expectIdent("type"); err != nil {
		return astTypeDef{}, err
	}

	name, err := p.expect(tokIdent, "typedef name")
	if err != nil {
		return astTypeDef{}, err
	}

	if _, err := p.expect(tokEq, "'='"); err != nil {
		return astTypeDef{}, err
	}

	target, err := p.parseType()
	if err != nil {
		return astTypeDef{}, err
	}

	return astTypeDef{Namespace: p.ns, Name: name.text, Target: target, Pos: pos}, nil
}

func (p *parser) parseIncremental() (astIncremental, error) {
	pos := astPos{p.peek().line, p.peek().col}

	if _, err := p.expectIdent("annotate"); err != nil {
		return astIncremental{}, err
	}

	target, err := p.tightQName()
	if err != nil {
		return astIncremental{}, err
	}

	inc := astIncremental{Namespace: p.ns, Target: target, Pos: pos}

	if p.peek().kind == tokDot {
		p.advance()

		field, err := p.expect(tokIdent, "field name")
		if err != nil {
			return astIncremental{}, err
		}

		inc.Field = field.text
	}

	a, err := p.parseOneAnnotation()
	if err != nil {
		return astIncremental{}, err
	}

	inc.Key, inc.Value = a.Key, a.Value

	return inc, nil
}
