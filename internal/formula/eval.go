package formula

import "github.com/wonny/aegis-screener/internal/numeric"

// Env resolves metric values for one entity
type Env interface {
	Lookup(name string) numeric.Value
}

// EnvFunc adapts a function to Env
type EnvFunc func(name string) numeric.Value

func (f EnvFunc) Lookup(name string) numeric.Value { return f(name) }

// truth is a Kleene three-valued boolean: a comparison touching an Absent value is unknown
type truth int

const (
	unknown truth = iota
	falsy
	truthy
)

// Evaluate reports whether the condition holds for env. Unknown (missing data) counts
// as not satisfied, the same rule the range predicates apply.
func (e *Expr) Evaluate(env Env) bool {
	return evalBool(e.root, env) == truthy
}

func evalBool(n Node, env Env) truth {
	switch n := n.(type) {
	case *Not:
		switch evalBool(n.X, env) {
		case truthy:
			return falsy
		case falsy:
			return truthy
		}
		return unknown

	case *Binary:
		switch n.Op {
		case TokenAnd:
			l := evalBool(n.Left, env)
			if l == falsy {
				return falsy
			}
			r := evalBool(n.Right, env)
			if r == falsy {
				return falsy
			}
			if l == truthy && r == truthy {
				return truthy
			}
			return unknown

		case TokenOr:
			l := evalBool(n.Left, env)
			if l == truthy {
				return truthy
			}
			r := evalBool(n.Right, env)
			if r == truthy {
				return truthy
			}
			if l == falsy && r == falsy {
				return falsy
			}
			return unknown
		}

		c, ok := evalNumber(n.Left, env).Cmp(evalNumber(n.Right, env))
		if !ok {
			return unknown
		}
		var holds bool
		switch n.Op {
		case TokenGT:
			holds = c > 0
		case TokenGTE:
			holds = c >= 0
		case TokenLT:
			holds = c < 0
		case TokenLTE:
			holds = c <= 0
		case TokenEQ:
			holds = c == 0
		case TokenNEQ:
			holds = c != 0
		}
		if holds {
			return truthy
		}
		return falsy
	}
	return unknown
}

func evalNumber(n Node, env Env) numeric.Value {
	switch n := n.(type) {
	case *NumberLit:
		return n.Value
	case *Ident:
		return env.Lookup(n.Name)
	case *Negate:
		return evalNumber(n.X, env).Neg()
	case *Binary:
		l := evalNumber(n.Left, env)
		r := evalNumber(n.Right, env)
		switch n.Op {
		case TokenPlus:
			return l.Add(r)
		case TokenMinus:
			return l.Sub(r)
		case TokenStar:
			return l.Mul(r)
		case TokenSlash:
			return l.Div(r)
		}
	}
	return numeric.Absent()
}
