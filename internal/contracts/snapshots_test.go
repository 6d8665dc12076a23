package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/aegis-screener/internal/numeric"
)

func TestParseSizeBucket(t *testing.T) {
	tests := []struct {
		input string
		want  SizeBucket
		ok    bool
	}{
		{"large", SizeLarge, true},
		{" MID ", SizeMid, true},
		{"Small", SizeSmall, true},
		{"micro", SizeMicro, true},
		{"mega", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSizeBucket(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSizeBucket(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSubScores_Total(t *testing.T) {
	s := SubScores{Valuation: 25, Profitability: 12.5, Growth: 7.5, Safety: 0}
	assert.Equal(t, 45.0, s.Total())
}

func TestEntitySnapshot_LatestStatement(t *testing.T) {
	snap := &EntitySnapshot{}
	assert.Nil(t, snap.LatestStatement())

	snap.Statements = []FinancialStatement{
		{FiscalYear: 2024, NetIncome: numeric.Int(120)},
		{FiscalYear: 2023, NetIncome: numeric.Int(100)},
	}
	assert.Equal(t, 2024, snap.LatestStatement().FiscalYear)
}
