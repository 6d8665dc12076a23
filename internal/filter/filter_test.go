package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/numeric"
)

func n(s string) numeric.Value { return numeric.MustParse(s) }

// snapshot builds a profitable entity with four years of rising statements
func snapshot() *contracts.EntitySnapshot {
	return &contracts.EntitySnapshot{
		Entity: contracts.Entity{
			ID: "7203", Name: "Toyota Motor", Market: "Prime", Sector: "Transportation Equipment",
			SizeBucket: contracts.SizeLarge, Active: true,
		},
		Market: &contracts.MarketSnapshot{
			EntityID: "7203", Price: n("2800"), PER: n("10"), PBR: n("1.1"), DividendYield: n("2.5"),
		},
		Fundamental: &contracts.FundamentalSnapshot{
			EntityID: "7203", ROE: n("12"), ROA: n("4.5"), EquityRatio: n("38"), CurrentRatio: n("1.3"),
		},
		Technical: &contracts.TechnicalSnapshot{
			EntityID: "7203", MA5: n("2810"), MA25: n("2750"), MA75: n("2600"),
		},
		Statements: []contracts.FinancialStatement{
			{FiscalYear: 2024, Revenue: n("450"), NetIncome: n("49"), DividendPerShare: n("75")},
			{FiscalYear: 2023, Revenue: n("370"), NetIncome: n("24"), DividendPerShare: n("60")},
			{FiscalYear: 2022, Revenue: n("310"), NetIncome: n("28"), DividendPerShare: n("48")},
			{FiscalYear: 2021, Revenue: n("272"), NetIncome: n("22"), DividendPerShare: n("45")},
		},
	}
}

func compile(t *testing.T, c *criteria.Criteria) *Program {
	t.Helper()
	p, err := Compile(c)
	require.NoError(t, err)
	return p
}

func TestCompile_EmptyCriteria(t *testing.T) {
	_, err := Compile(&criteria.Criteria{})
	assert.ErrorIs(t, err, contracts.ErrInvalidCriteria)

	_, err = Compile(nil)
	assert.ErrorIs(t, err, contracts.ErrInvalidCriteria)
}

func TestEvaluate_Conjunction(t *testing.T) {
	// five predicates; per sits exactly on its max bound
	five := &criteria.Criteria{
		Ranges: map[string]criteria.Range{
			"per": criteria.Between(n("5"), n("10")),
			"roe": criteria.AtLeast(n("8")),
		},
		Text:           []criteria.TextMatch{{Field: "name", Value: "toyota"}},
		Streaks:        []criteria.Streak{{Field: "revenue", MinYears: 3}},
		ExcludeSectors: []string{"Banks"},
	}
	p := compile(t, five)
	assert.Len(t, p.Predicates(), 5)
	assert.Equal(t, Outcome{Passed: true}, p.Evaluate(snapshot()))

	tests := []struct {
		name   string
		mutate func(s *contracts.EntitySnapshot)
		reason string
	}{
		{"per above max", func(s *contracts.EntitySnapshot) { s.Market.PER = n("10.01") }, "range:per"},
		{"roe below min", func(s *contracts.EntitySnapshot) { s.Fundamental.ROE = n("7.99") }, "range:roe"},
		{"name mismatch", func(s *contracts.EntitySnapshot) { s.Entity.Name = "Honda Motor" }, "text:name"},
		{"revenue streak broken", func(s *contracts.EntitySnapshot) { s.Statements[2].Revenue = n("380") }, "streak:revenue"},
		{"excluded sector", func(s *contracts.EntitySnapshot) { s.Entity.Sector = "banks" }, "exclude_sector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot()
			tt.mutate(s)
			assert.Equal(t, Outcome{Passed: false, Reason: tt.reason}, p.Evaluate(s))
		})
	}
}

func TestEvaluate_MinBoundInclusive(t *testing.T) {
	p := compile(t, &criteria.Criteria{Ranges: map[string]criteria.Range{"dividend_yield": criteria.AtLeast(n("2.50"))}})
	assert.True(t, p.Evaluate(snapshot()).Passed)
}

func TestEvaluate_AbsentFailsRange(t *testing.T) {
	tests := []struct {
		name string
		r    criteria.Range
	}{
		{"min only", criteria.AtLeast(n("0"))},
		{"max only", criteria.AtMost(n("100"))},
		{"both", criteria.Between(n("-100"), n("100"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compile(t, &criteria.Criteria{Ranges: map[string]criteria.Range{"roe": tt.r}})

			s := snapshot()
			s.Fundamental.ROE = numeric.Absent()
			assert.Equal(t, "range:roe", p.Evaluate(s).Reason)

			s.Fundamental = nil
			assert.False(t, p.Evaluate(s).Passed)
		})
	}
}

func TestEvaluate_Ordering(t *testing.T) {
	p := compile(t, &criteria.Criteria{
		Formula:        "per < 100",
		Streaks:        []criteria.Streak{{Field: "net_income", MinYears: 1}},
		Ranges:         map[string]criteria.Range{"revenue_cagr_3y": criteria.AtLeast(n("0")), "pbr": criteria.AtMost(n("5"))},
		SizeBuckets:    []contracts.SizeBucket{contracts.SizeLarge},
		Text:           []criteria.TextMatch{{Field: "market", Value: "prime", Mode: criteria.MatchEquals}},
		ExcludeSectors: []string{"Banks"},
	})

	assert.Equal(t, []string{
		"exclude_sector",
		"text:market",
		"size_bucket",
		"range:pbr",
		"range:revenue_cagr_3y",
		"streak:net_income",
		"formula",
	}, p.Predicates())
	assert.True(t, p.Evaluate(snapshot()).Passed)
}

func TestEvaluate_TextModes(t *testing.T) {
	tests := []struct {
		name  string
		match criteria.TextMatch
		want  bool
	}{
		{"contains case-insensitive", criteria.TextMatch{Field: "sector", Value: "EQUIPMENT"}, true},
		{"equals exact", criteria.TextMatch{Field: "market", Value: "PRIME", Mode: "equals"}, true},
		{"equals rejects substring", criteria.TextMatch{Field: "name", Value: "toyota", Mode: "equals"}, false},
		{"code", criteria.TextMatch{Field: "code", Value: "72"}, true},
		{"no match", criteria.TextMatch{Field: "name", Value: "sony"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compile(t, &criteria.Criteria{Text: []criteria.TextMatch{tt.match}})
			assert.Equal(t, tt.want, p.Evaluate(snapshot()).Passed)
		})
	}
}

func TestEvaluate_Streaks(t *testing.T) {
	// net income 49 > 24, then 24 < 28 stops the streak at 1
	p := compile(t, &criteria.Criteria{Streaks: []criteria.Streak{{Field: "net_income", MinYears: 2}}})
	assert.Equal(t, "streak:net_income", p.Evaluate(snapshot()).Reason)

	p = compile(t, &criteria.Criteria{Streaks: []criteria.Streak{{Field: "dividend_per_share", MinYears: 3}}})
	assert.True(t, p.Evaluate(snapshot()).Passed)

	s := snapshot()
	s.Statements[1].DividendPerShare = numeric.Absent()
	assert.False(t, p.Evaluate(s).Passed)
}

func TestEvaluate_ExcludeLoss(t *testing.T) {
	p := compile(t, &criteria.Criteria{ExcludeLoss: true})
	assert.True(t, p.Evaluate(snapshot()).Passed)

	s := snapshot()
	s.Statements[0].NetIncome = n("-3")
	assert.Equal(t, "exclude_loss", p.Evaluate(s).Reason)

	s.Statements = nil
	assert.False(t, p.Evaluate(s).Passed)
}

func TestEvaluate_MATrend(t *testing.T) {
	up := compile(t, &criteria.Criteria{MATrend: criteria.TrendUp})
	down := compile(t, &criteria.Criteria{MATrend: criteria.TrendDown})

	s := snapshot()
	assert.True(t, up.Evaluate(s).Passed)
	assert.False(t, down.Evaluate(s).Passed)

	s.Technical = &contracts.TechnicalSnapshot{MA5: n("90"), MA25: n("95"), MA75: n("100")}
	assert.False(t, up.Evaluate(s).Passed)
	assert.True(t, down.Evaluate(s).Passed)

	s.Technical = nil
	assert.False(t, up.Evaluate(s).Passed)
}

func TestEvaluate_Formula(t *testing.T) {
	p := compile(t, &criteria.Criteria{Formula: "per * pbr <= 11 AND (roe > 10 OR roa > 10)"})
	assert.True(t, p.Evaluate(snapshot()).Passed)

	s := snapshot()
	s.Market.PBR = numeric.Absent()
	assert.Equal(t, "formula", p.Evaluate(s).Reason)
}

func TestExplain(t *testing.T) {
	p := compile(t, &criteria.Criteria{
		Ranges:      map[string]criteria.Range{"per": criteria.AtMost(n("5")), "roe": criteria.AtLeast(n("5"))},
		ExcludeLoss: true,
		SizeBuckets: []contracts.SizeBucket{contracts.SizeSmall},
	})
	assert.Equal(t, []string{"size_bucket", "range:per"}, p.Explain(snapshot()))
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(n("5"), criteria.Between(n("5"), n("5"))))
	assert.False(t, InRange(numeric.Absent(), criteria.Range{}))
	assert.True(t, InRange(n("-1"), criteria.AtMost(n("0"))))
}
