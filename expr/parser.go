package expr

import (
	"fmt"
	"strconv"
)

// Node is an expression AST node.
type Node interface {
	node()
}

// Literal is a constant value: float64, string, bool or nil.
type Literal struct {
	Value any
}

// Path is a dotted field access rooted at one of the context aliases.
type Path struct {
	Root     string
	Segments []string
}

// Unary is logical negation.
type Unary struct {
	Op      string
	Operand Node
}

// Binary covers comparisons and the boolean connectives.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

func (Literal) node() {}
func (Path) node()    {}
func (Unary) node()   {}
func (Binary) node()  {}

// Roots are the two aliases bound to the evaluation data.
var Roots = map[string]struct{}{
	"host":     {},
	"formData": {},
}

// disallowed names never resolve, wherever they appear in an expression.
var disallowed = toSet(
	"window", "document", "globalThis", "global", "self", "top", "parent", "frames",
	"process", "require", "module", "exports", "import", "eval", "Function",
	"constructor", "__proto__", "prototype", "this",
	"localStorage", "sessionStorage", "fetch", "XMLHttpRequest",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

type parser struct {
	tokens []token
	pos    int
}

// Parse compiles source into an AST. Disallowed tokens are rejected before
// any parsing takes place.
func Parse(src string) (Node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	for _, tok := range tokens {
		if tok.kind != tokIdent {
			continue
		}
		if _, blocked := disallowed[tok.text]; blocked {
			return nil, disallowedError(src, tok.text)
		}
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, syntaxError(src, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(src, fmt.Errorf("unexpected %s", tok))
	}
	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "||", Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "&&", Left: left, Right: right}
	}
}

// parseComparison reads unary operands, so !host.n > 3 is (!host.n) > 3.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("===", "!==", "==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if _, ok := p.acceptOp("!"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: "!", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) but found %s", closing)
		}
		return inner, nil
	case tokNumber:
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", tok)
		}
		return Literal{Value: value}, nil
	case tokString:
		return Literal{Value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		case "null", "undefined":
			return Literal{Value: nil}, nil
		}
		if _, ok := Roots[tok.text]; !ok {
			return nil, fmt.Errorf("unknown identifier %s", tok)
		}
		path := Path{Root: tok.text}
		for p.peek().kind == tokDot {
			p.next()
			seg := p.next()
			if seg.kind != tokIdent {
				return nil, fmt.Errorf("expected field name after . but found %s", seg)
			}
			path.Segments = append(path.Segments, seg.text)
		}
		return path, nil
	default:
		return nil, fmt.Errorf("unexpected %s", tok)
	}
}
