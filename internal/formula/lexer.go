// Package formula implements the allow-listed expression grammar used by custom
// screening conditions. Only named metrics, numeric literals, arithmetic, comparison
// and boolean operators are accepted; nothing is ever executed as code.
//
//	expr       := or
//	or         := and { ("OR" | "||") and }
//	and        := not { ("AND" | "&&") not }
//	not        := ("NOT" | "!") not | comparison
//	comparison := additive [ (">" | ">=" | "<" | "<=" | "==" | "!=") additive ]
//	additive   := term { ("+" | "-") term }
//	term       := unary { ("*" | "/") unary }
//	unary      := "-" unary | primary
//	primary    := NUMBER | IDENT | "(" expr ")"
package formula

import (
	"fmt"
	"strings"
)

// TokenType enumerates lexer token kinds
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenIdent

	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenGT
	TokenGTE
	TokenLT
	TokenLTE
	TokenEQ
	TokenNEQ

	TokenLParen
	TokenRParen

	TokenAnd
	TokenOr
	TokenNot
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "end of input",
	TokenNumber: "number",
	TokenIdent:  "identifier",
	TokenPlus:   "+",
	TokenMinus:  "-",
	TokenStar:   "*",
	TokenSlash:  "/",
	TokenGT:     ">",
	TokenGTE:    ">=",
	TokenLT:     "<",
	TokenLTE:    "<=",
	TokenEQ:     "==",
	TokenNEQ:    "!=",
	TokenLParen: "(",
	TokenRParen: ")",
	TokenAnd:    "AND",
	TokenOr:     "OR",
	TokenNot:    "NOT",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexeme with its byte offset in the source
type Token struct {
	Type     TokenType
	Text     string
	Position int
}

// ParseError reports a lexing, parsing or validation failure at a byte offset
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("formula error at position %d: %s", e.Position, e.Message)
}

func errorf(pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Position: pos, Message: fmt.Sprintf(format, args...)}
}

// Tokenize splits the input into tokens, ending with TokenEOF
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue

		case isDigit(c) || (c == '.' && i+1 < len(input) && isDigit(input[i+1])):
			start := i
			dot := false
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				if input[i] == '.' {
					if dot {
						return nil, errorf(i, "malformed number")
					}
					dot = true
				}
				i++
			}
			tokens = append(tokens, Token{Type: TokenNumber, Text: input[start:i], Position: start})
			continue

		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			word := input[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, Token{Type: TokenAnd, Text: word, Position: start})
			case "OR":
				tokens = append(tokens, Token{Type: TokenOr, Text: word, Position: start})
			case "NOT":
				tokens = append(tokens, Token{Type: TokenNot, Text: word, Position: start})
			default:
				tokens = append(tokens, Token{Type: TokenIdent, Text: strings.ToLower(word), Position: start})
			}
			continue
		}

		two := ""
		if i+1 < len(input) {
			two = input[i : i+2]
		}
		switch two {
		case ">=":
			tokens = append(tokens, Token{Type: TokenGTE, Text: two, Position: i})
			i += 2
			continue
		case "<=":
			tokens = append(tokens, Token{Type: TokenLTE, Text: two, Position: i})
			i += 2
			continue
		case "==":
			tokens = append(tokens, Token{Type: TokenEQ, Text: two, Position: i})
			i += 2
			continue
		case "!=":
			tokens = append(tokens, Token{Type: TokenNEQ, Text: two, Position: i})
			i += 2
			continue
		case "&&":
			tokens = append(tokens, Token{Type: TokenAnd, Text: two, Position: i})
			i += 2
			continue
		case "||":
			tokens = append(tokens, Token{Type: TokenOr, Text: two, Position: i})
			i += 2
			continue
		}

		var tt TokenType
		switch c {
		case '+':
			tt = TokenPlus
		case '-':
			tt = TokenMinus
		case '*':
			tt = TokenStar
		case '/':
			tt = TokenSlash
		case '>':
			tt = TokenGT
		case '<':
			tt = TokenLT
		case '!':
			tt = TokenNot
		case '(':
			tt = TokenLParen
		case ')':
			tt = TokenRParen
		default:
			return nil, errorf(i, "unexpected character %q", c)
		}
		tokens = append(tokens, Token{Type: tt, Text: string(c), Position: i})
		i++
	}

	return append(tokens, Token{Type: TokenEOF, Position: len(input)}), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
