package formula

import (
	"sort"

	"github.com/wonny/aegis-screener/internal/numeric"
)

const (
	maxLength = 512
	maxDepth  = 32
	maxNodes  = 256
)

// Allowed reports whether an identifier names a known metric
type Allowed func(name string) bool

// Expr is a parsed, type-checked boolean expression
type Expr struct {
	source string
	root   Node
	idents []string
}

// Source returns the original text
func (e *Expr) Source() string { return e.source }

// Root returns the AST root
func (e *Expr) Root() Node { return e.root }

// Identifiers lists the distinct metrics referenced, sorted
func (e *Expr) Identifiers() []string { return e.idents }

func (e *Expr) String() string { return e.root.String() }

type parser struct {
	tokens  []Token
	pos     int
	depth   int
	nodes   int
	allowed Allowed
	idents  map[string]struct{}
}

// Parse tokenizes, parses and type-checks input. Every identifier must pass allowed
// and the whole expression must be a condition (comparison or boolean combination).
func Parse(input string, allowed Allowed) (*Expr, error) {
	if len(input) > maxLength {
		return nil, errorf(maxLength, "formula longer than %d characters", maxLength)
	}

	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 {
		return nil, errorf(0, "empty formula")
	}

	p := &parser{tokens: tokens, allowed: allowed, idents: map[string]struct{}{}}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, errorf(tok.Position, "unexpected %s", describe(tok))
	}
	if root.kind() != kindBool {
		return nil, errorf(0, "formula must be a condition, e.g. \"per < 15\"")
	}

	idents := make([]string, 0, len(p.idents))
	for name := range p.idents {
		idents = append(idents, name)
	}
	sort.Strings(idents)

	return &Expr{source: input, root: root, idents: idents}, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) node(n Node) (Node, error) {
	p.nodes++
	if p.nodes > maxNodes {
		return nil, errorf(n.pos(), "formula too complex")
	}
	return n, nil
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxDepth {
		return errorf(pos, "formula nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if left, err = p.logical(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenAnd {
		op := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		if left, err = p.logical(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) logical(op Token, left, right Node) (Node, error) {
	if left.kind() != kindBool || right.kind() != kindBool {
		return nil, errorf(op.Position, "%s needs conditions on both sides", op.Type)
	}
	return p.node(&Binary{Op: op.Type, Left: left, Right: right, Position: op.Position})
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().Type != TokenNot {
		return p.parseComparison()
	}

	op := p.next()
	if err := p.enter(op.Position); err != nil {
		return nil, err
	}
	defer p.leave()

	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if x.kind() != kindBool {
		return nil, errorf(op.Position, "NOT needs a condition")
	}
	return p.node(&Not{X: x, Position: op.Position})
}

func isComparison(t TokenType) bool {
	switch t {
	case TokenGT, TokenGTE, TokenLT, TokenLTE, TokenEQ, TokenNEQ:
		return true
	}
	return false
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !isComparison(p.peek().Type) {
		return left, nil
	}

	op := p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if left.kind() != kindNumber || right.kind() != kindNumber {
		return nil, errorf(op.Position, "%s compares numbers", op.Type)
	}
	if isComparison(p.peek().Type) {
		return nil, errorf(p.peek().Position, "chained comparisons are not allowed; combine with AND")
	}
	return p.node(&Binary{Op: op.Type, Left: left, Right: right, Position: op.Position})
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenPlus || p.peek().Type == TokenMinus {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if left, err = p.arithmetic(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenStar || p.peek().Type == TokenSlash {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if left, err = p.arithmetic(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) arithmetic(op Token, left, right Node) (Node, error) {
	if left.kind() != kindNumber || right.kind() != kindNumber {
		return nil, errorf(op.Position, "%s needs numbers on both sides", op.Type)
	}
	return p.node(&Binary{Op: op.Type, Left: left, Right: right, Position: op.Position})
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().Type != TokenMinus {
		return p.parsePrimary()
	}

	op := p.next()
	if err := p.enter(op.Position); err != nil {
		return nil, err
	}
	defer p.leave()

	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if x.kind() != kindNumber {
		return nil, errorf(op.Position, "unary minus needs a number")
	}
	return p.node(&Negate{X: x, Position: op.Position})
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.Type {
	case TokenNumber:
		v := numeric.Normalize(tok.Text)
		if !v.Present() {
			return nil, errorf(tok.Position, "invalid number %q", tok.Text)
		}
		return p.node(&NumberLit{Value: v, Position: tok.Position})

	case TokenIdent:
		if p.allowed == nil || !p.allowed(tok.Text) {
			return nil, errorf(tok.Position, "unknown metric %q", tok.Text)
		}
		p.idents[tok.Text] = struct{}{}
		return p.node(&Ident{Name: tok.Text, Position: tok.Position})

	case TokenLParen:
		if err := p.enter(tok.Position); err != nil {
			return nil, err
		}
		defer p.leave()

		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.Type != TokenRParen {
			return nil, errorf(closing.Position, "expected ) but found %s", describe(closing))
		}
		return inner, nil
	}

	return nil, errorf(tok.Position, "unexpected %s", describe(tok))
}

func describe(tok Token) string {
	if tok.Type == TokenEOF {
		return "end of input"
	}
	return "\"" + tok.Text + "\""
}
