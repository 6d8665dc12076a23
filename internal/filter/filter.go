// Package filter compiles screening criteria into an ordered list of predicates
// and evaluates them against one entity snapshot at a time.
//
// Evaluation is a pure conjunction with short-circuit: the first failing predicate
// rejects the entity and names the reason. Missing data never errors; it fails
// the predicate that needed it.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/formula"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/metricview"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// Predicate stages, cheapest and most selective first
const (
	stageExclusion = iota
	stageText
	stageSize
	stageRange
	stageStreak
	stageFormula
)

// Outcome is the result of evaluating one entity
type Outcome struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"` // failing predicate when rejected
}

type predicate struct {
	name  string
	stage int
	cost  int
	test  func(*contracts.EntitySnapshot) bool
}

// Program is a compiled, immutable predicate list. Safe for concurrent use.
type Program struct {
	predicates []predicate
}

// Compile validates c and builds its predicate list.
// Returns criteria.ValidationErrors (unwrapping to contracts.ErrInvalidCriteria) on bad input.
func Compile(c *criteria.Criteria) (*Program, error) {
	if err := criteria.Validate(c); err != nil {
		return nil, err
	}

	var preds []predicate

	if len(c.ExcludeSectors) > 0 {
		preds = append(preds, excludeSectors(c.ExcludeSectors))
	}

	for _, t := range c.Text {
		preds = append(preds, textMatch(t))
	}

	if len(c.SizeBuckets) > 0 {
		preds = append(preds, sizeBuckets(c.SizeBuckets))
	}
	if c.ExcludeLoss {
		preds = append(preds, predicate{
			name:  "exclude_loss",
			stage: stageSize,
			cost:  1,
			test: func(s *contracts.EntitySnapshot) bool {
				latest := s.LatestStatement()
				return latest != nil && latest.NetIncome.IsPositive()
			},
		})
	}
	if c.MATrend != "" {
		preds = append(preds, maTrend(c.MATrend))
	}

	for name, r := range c.Ranges {
		m, _ := metricview.Lookup(name)
		preds = append(preds, rangePredicate(m, r))
	}

	for _, st := range c.Streaks {
		field, _ := growth.ParseField(st.Field)
		preds = append(preds, streak(field, st.MinYears))
	}

	if strings.TrimSpace(c.Formula) != "" {
		expr, err := formula.Parse(c.Formula, criteria.AllowMetric)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidCriteria, err)
		}
		preds = append(preds, formulaPredicate(expr))
	}

	sort.SliceStable(preds, func(i, j int) bool {
		a, b := preds[i], preds[j]
		if a.stage != b.stage {
			return a.stage < b.stage
		}
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		return a.name < b.name
	})

	return &Program{predicates: preds}, nil
}

// Evaluate runs the predicates in order and stops at the first failure
func (p *Program) Evaluate(s *contracts.EntitySnapshot) Outcome {
	for _, pred := range p.predicates {
		if !pred.test(s) {
			return Outcome{Passed: false, Reason: pred.name}
		}
	}
	return Outcome{Passed: true}
}

// Explain runs every predicate without short-circuit and returns the names that failed
func (p *Program) Explain(s *contracts.EntitySnapshot) []string {
	var failed []string
	for _, pred := range p.predicates {
		if !pred.test(s) {
			failed = append(failed, pred.name)
		}
	}
	return failed
}

// Predicates lists predicate names in evaluation order
func (p *Program) Predicates() []string {
	names := make([]string, len(p.predicates))
	for i, pred := range p.predicates {
		names[i] = pred.name
	}
	return names
}

func excludeSectors(sectors []string) predicate {
	set := make(map[string]struct{}, len(sectors))
	for _, s := range sectors {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return predicate{
		name:  "exclude_sector",
		stage: stageExclusion,
		cost:  1,
		test: func(s *contracts.EntitySnapshot) bool {
			_, excluded := set[strings.ToLower(strings.TrimSpace(s.Entity.Sector))]
			return !excluded
		},
	}
}

func textMatch(t criteria.TextMatch) predicate {
	field := strings.ToLower(t.Field)
	want := strings.ToLower(strings.TrimSpace(t.Value))
	equals := strings.EqualFold(t.Mode, criteria.MatchEquals)

	get := func(e *contracts.Entity) string {
		switch field {
		case "name":
			return e.Name
		case "market":
			return e.Market
		case "sector":
			return e.Sector
		default:
			return e.ID
		}
	}

	return predicate{
		name:  "text:" + field,
		stage: stageText,
		cost:  1,
		test: func(s *contracts.EntitySnapshot) bool {
			got := strings.ToLower(strings.TrimSpace(get(&s.Entity)))
			if equals {
				return got == want
			}
			return strings.Contains(got, want)
		},
	}
}

func sizeBuckets(buckets []contracts.SizeBucket) predicate {
	set := make(map[contracts.SizeBucket]struct{}, len(buckets))
	for _, b := range buckets {
		parsed, _ := contracts.ParseSizeBucket(string(b))
		set[parsed] = struct{}{}
	}
	return predicate{
		name:  "size_bucket",
		stage: stageSize,
		cost:  1,
		test: func(s *contracts.EntitySnapshot) bool {
			_, ok := set[s.Entity.SizeBucket]
			return ok
		},
	}
}

func maTrend(trend string) predicate {
	return predicate{
		name:  "ma_trend",
		stage: stageSize,
		cost:  2,
		test: func(s *contracts.EntitySnapshot) bool {
			if s.Technical == nil {
				return false
			}
			t := s.Technical
			if trend == criteria.TrendUp {
				return t.MA5.GreaterThan(t.MA25) && t.MA25.GreaterThan(t.MA75)
			}
			return t.MA5.LessThan(t.MA25) && t.MA25.LessThan(t.MA75)
		},
	}
}

// rangePredicate fails on an Absent value whichever bounds are set
func rangePredicate(m metricview.Metric, r criteria.Range) predicate {
	return predicate{
		name:  "range:" + m.Name,
		stage: stageRange,
		cost:  m.Cost,
		test: func(s *contracts.EntitySnapshot) bool {
			return InRange(m.Value(s), r)
		},
	}
}

// InRange reports whether v is present and within the inclusive bounds of r
func InRange(v numeric.Value, r criteria.Range) bool {
	if !v.Present() {
		return false
	}
	if r.Min.Present() && !v.GreaterThanOrEqual(r.Min) {
		return false
	}
	if r.Max.Present() && !v.LessThanOrEqual(r.Max) {
		return false
	}
	return true
}

func streak(field growth.Field, minYears int) predicate {
	return predicate{
		name:  "streak:" + string(field),
		stage: stageStreak,
		cost:  5,
		test: func(s *contracts.EntitySnapshot) bool {
			return growth.Streak(s.Statements, field) >= minYears
		},
	}
}

func formulaPredicate(expr *formula.Expr) predicate {
	metrics := make(map[string]metricview.Metric, len(expr.Identifiers()))
	for _, name := range expr.Identifiers() {
		m, _ := metricview.Lookup(name)
		metrics[name] = m
	}

	return predicate{
		name:  "formula",
		stage: stageFormula,
		cost:  10,
		test: func(s *contracts.EntitySnapshot) bool {
			return expr.Evaluate(formula.EnvFunc(func(name string) numeric.Value {
				m, ok := metrics[name]
				if !ok {
					return numeric.Absent()
				}
				return m.Value(s)
			}))
		},
	}
}
