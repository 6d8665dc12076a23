package formula

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/numeric"
)

var known = map[string]bool{
	"per": true, "pbr": true, "roe": true, "roa": true, "dividend_yield": true, "price": true,
}

func allowed(name string) bool { return known[name] }

func env(values map[string]interface{}) Env {
	return EnvFunc(func(name string) numeric.Value {
		return numeric.Normalize(values[name])
	})
}

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize("per < 15 && ROE >= 8.5 || !(pbr != 1)")
	require.NoError(t, err)

	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenIdent, TokenLT, TokenNumber, TokenAnd, TokenIdent, TokenGTE, TokenNumber,
		TokenOr, TokenNot, TokenLParen, TokenIdent, TokenNEQ, TokenNumber, TokenRParen, TokenEOF,
	}, types)
	assert.Equal(t, "roe", tokens[4].Text, "identifiers are lower-cased")
}

func TestTokenize_Errors(t *testing.T) {
	for _, input := range []string{"per < 1.2.3", "per ; drop", "per < 'x'", "__import__('os')"} {
		_, err := Parse(input, allowed)
		assert.Error(t, err, input)
	}
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		ast   string
		ids   []string
	}{
		{"per < 15", "(per < 15)", []string{"per"}},
		{"per < 15 AND roe > 10", "((per < 15) AND (roe > 10))", []string{"per", "roe"}},
		{"per < 15 or pbr < 1 and roe > 8", "((per < 15) OR ((pbr < 1) AND (roe > 8)))", []string{"pbr", "per", "roe"}},
		{"roe - roa * 2 >= -1.5", "((roe - (roa * 2)) >= (-1.5))", []string{"roa", "roe"}},
		{"NOT (per > 30)", "(NOT (per > 30))", []string{"per"}},
		{"(per * pbr) <= 22.5", "((per * pbr) <= 22.5)", []string{"pbr", "per"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := Parse(tt.input, allowed)
			require.NoError(t, err)
			assert.Equal(t, tt.ast, expr.String())
			assert.Equal(t, tt.ids, expr.Identifiers())
			assert.Equal(t, tt.input, expr.Source())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "   ", "empty formula"},
		{"unknown metric", "eval > 1", "unknown metric"},
		{"not a condition", "per + 1", "must be a condition"},
		{"bare metric", "per", "must be a condition"},
		{"logical on numbers", "per AND roe", "needs conditions"},
		{"arithmetic on conditions", "(per > 1) + 2", "needs numbers"},
		{"chained comparison", "1 < per < 10", "chained comparisons"},
		{"missing paren", "(per > 1", "expected )"},
		{"dangling operator", "per >", "unexpected end of input"},
		{"trailing tokens", "per > 1 2", "unexpected \"2\""},
		{"not on number", "NOT per", "NOT needs a condition"},
		{"minus on condition", "-(per > 1)", "unary minus needs a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, allowed)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Contains(t, perr.Message, tt.want)
		})
	}
}

func TestParse_Limits(t *testing.T) {
	_, err := Parse(strings.Repeat("per > 1 AND ", 60)+"per > 1", allowed)
	assert.Error(t, err, "too long")

	_, err = Parse(strings.Repeat("(", 40)+"per > 1"+strings.Repeat(")", 40), allowed)
	assert.Error(t, err, "too deep")

	_, err = Parse("per > 1", nil)
	assert.Error(t, err, "nil allow-list accepts nothing")
}

func TestEvaluate(t *testing.T) {
	values := map[string]interface{}{"per": 12, "pbr": 0.9, "roe": 11, "roa": nil}

	tests := []struct {
		input string
		want  bool
	}{
		{"per < 15", true},
		{"per <= 12", true},
		{"per == 12", true},
		{"per != 12", false},
		{"per < 15 AND pbr < 1", true},
		{"per < 10 OR pbr < 1", true},
		{"per * pbr < 11", true},
		{"roe / 2 > 5", true},
		{"NOT (per > 20)", true},
		// roa is Absent: the comparison is unknown, which never satisfies the formula
		{"roa > 1", false},
		{"NOT (roa > 1)", false},
		{"roa > 1 OR per < 15", true},
		{"roa > 1 AND per < 15", false},
		{"roa > 1 OR per > 15", false},
		{"per / 0 > 1", false},
		{"-per < 0", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := Parse(tt.input, allowed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Evaluate(env(values)))
		})
	}
}
