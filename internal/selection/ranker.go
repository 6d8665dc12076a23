package selection

import (
	"sort"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Ranker orders scored results
// ⭐ SSOT: result ordering happens here only
type Ranker struct {
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(logger *logger.Logger) *Ranker {
	return &Ranker{logger: logger}
}

// Sort orders results in place by key with a stable sort.
// Absent values sort last in both directions; ties break by ascending entity id.
// Position is reassigned 1..n.
func (r *Ranker) Sort(results []contracts.ScoredResult, key criteria.SortKey) {
	less := comparator(key)
	sort.SliceStable(results, func(i, j int) bool {
		return less(&results[i], &results[j])
	})

	// Assign positions
	for i := range results {
		results[i].Position = i + 1
	}

	if r.logger != nil && len(results) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"count": len(results),
			"sort":  key.String(),
			"top":   results[0].Entity.ID,
		}).Debug("Results sorted")
	}
}

func comparator(key criteria.SortKey) func(a, b *contracts.ScoredResult) bool {
	byID := func(a, b *contracts.ScoredResult) bool { return a.Entity.ID < b.Entity.ID }

	switch key.Field {
	case criteria.SortCode:
		return func(a, b *contracts.ScoredResult) bool {
			if key.Descending {
				return a.Entity.ID > b.Entity.ID
			}
			return a.Entity.ID < b.Entity.ID
		}
	case criteria.SortName:
		return func(a, b *contracts.ScoredResult) bool {
			an, bn := strings.ToLower(a.Entity.Name), strings.ToLower(b.Entity.Name)
			if an == bn {
				return byID(a, b)
			}
			if key.Descending {
				return an > bn
			}
			return an < bn
		}
	}

	get := valueOf(key.Field)
	return func(a, b *contracts.ScoredResult) bool {
		av, bv := get(a), get(b)
		cmp, ok := av.Cmp(bv)
		if !ok {
			// Absent last
			if av.Present() != bv.Present() {
				return av.Present()
			}
			return byID(a, b)
		}
		if cmp == 0 {
			return byID(a, b)
		}
		if key.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
}

func valueOf(field string) func(*contracts.ScoredResult) numeric.Value {
	score := func(f func(*contracts.ScoredResult) float64) func(*contracts.ScoredResult) numeric.Value {
		return func(r *contracts.ScoredResult) numeric.Value { return numeric.Normalize(f(r)) }
	}
	market := func(f func(*contracts.MarketSnapshot) numeric.Value) func(*contracts.ScoredResult) numeric.Value {
		return func(r *contracts.ScoredResult) numeric.Value {
			if r.Market == nil {
				return numeric.Absent()
			}
			return f(r.Market)
		}
	}
	fundamental := func(f func(*contracts.FundamentalSnapshot) numeric.Value) func(*contracts.ScoredResult) numeric.Value {
		return func(r *contracts.ScoredResult) numeric.Value {
			if r.Fundamental == nil {
				return numeric.Absent()
			}
			return f(r.Fundamental)
		}
	}

	switch field {
	case criteria.SortValuation:
		return score(func(r *contracts.ScoredResult) float64 { return r.Scores.Valuation })
	case criteria.SortProfitability:
		return score(func(r *contracts.ScoredResult) float64 { return r.Scores.Profitability })
	case criteria.SortGrowth:
		return score(func(r *contracts.ScoredResult) float64 { return r.Scores.Growth })
	case criteria.SortSafety:
		return score(func(r *contracts.ScoredResult) float64 { return r.Scores.Safety })
	case criteria.SortPER:
		return market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PER })
	case criteria.SortPBR:
		return market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PBR })
	case criteria.SortDividendYield:
		return market(func(m *contracts.MarketSnapshot) numeric.Value { return m.DividendYield })
	case criteria.SortPrice:
		return market(func(m *contracts.MarketSnapshot) numeric.Value { return m.Price })
	case criteria.SortMarketCap:
		return market(func(m *contracts.MarketSnapshot) numeric.Value { return m.MarketCap })
	case criteria.SortROE:
		return fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROE })
	case criteria.SortROA:
		return fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROA })
	default:
		return score(func(r *contracts.ScoredResult) float64 { return r.TotalScore })
	}
}
