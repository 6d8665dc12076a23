package formula

import (
	"fmt"

	"github.com/wonny/aegis-screener/internal/numeric"
)

// kind is the static type of an expression node
type kind int

const (
	kindNumber kind = iota
	kindBool
)

func (k kind) String() string {
	if k == kindBool {
		return "condition"
	}
	return "number"
}

// Node is an expression tree node
type Node interface {
	fmt.Stringer
	kind() kind
	pos() int
}

// NumberLit is a numeric literal
type NumberLit struct {
	Value    numeric.Value
	Position int
}

func (n *NumberLit) String() string { return n.Value.String() }
func (n *NumberLit) kind() kind     { return kindNumber }
func (n *NumberLit) pos() int       { return n.Position }

// Ident references a metric by canonical name
type Ident struct {
	Name     string
	Position int
}

func (n *Ident) String() string { return n.Name }
func (n *Ident) kind() kind     { return kindNumber }
func (n *Ident) pos() int       { return n.Position }

// Negate is unary minus
type Negate struct {
	X        Node
	Position int
}

func (n *Negate) String() string { return fmt.Sprintf("(-%s)", n.X) }
func (n *Negate) kind() kind     { return kindNumber }
func (n *Negate) pos() int       { return n.Position }

// Not is logical negation
type Not struct {
	X        Node
	Position int
}

func (n *Not) String() string { return fmt.Sprintf("(NOT %s)", n.X) }
func (n *Not) kind() kind     { return kindBool }
func (n *Not) pos() int       { return n.Position }

// Binary covers arithmetic, comparison and logical operators
type Binary struct {
	Op       TokenType
	Left     Node
	Right    Node
	Position int
}

func (n *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

func (n *Binary) kind() kind {
	switch n.Op {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return kindNumber
	}
	return kindBool
}

func (n *Binary) pos() int { return n.Position }
