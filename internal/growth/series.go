package growth

import (
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// Field names a statement line usable as a series
type Field string

const (
	Revenue            Field = "revenue"
	OperatingIncome    Field = "operating_income"
	NetIncome          Field = "net_income"
	TotalAssets        Field = "total_assets"
	ShareholdersEquity Field = "shareholders_equity"
	EPS                Field = "eps"
	BPS                Field = "bps"
	DividendPerShare   Field = "dividend_per_share"
)

var fields = map[Field]func(*contracts.FinancialStatement) numeric.Value{
	Revenue:            func(s *contracts.FinancialStatement) numeric.Value { return s.Revenue },
	OperatingIncome:    func(s *contracts.FinancialStatement) numeric.Value { return s.OperatingIncome },
	NetIncome:          func(s *contracts.FinancialStatement) numeric.Value { return s.NetIncome },
	TotalAssets:        func(s *contracts.FinancialStatement) numeric.Value { return s.TotalAssets },
	ShareholdersEquity: func(s *contracts.FinancialStatement) numeric.Value { return s.ShareholdersEquity },
	EPS:                func(s *contracts.FinancialStatement) numeric.Value { return s.EPS },
	BPS:                func(s *contracts.FinancialStatement) numeric.Value { return s.BPS },
	DividendPerShare:   func(s *contracts.FinancialStatement) numeric.Value { return s.DividendPerShare },
}

// ParseField resolves a series name case-insensitively
func ParseField(name string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(name)))
	_, ok := fields[f]
	return f, ok
}

// Series extracts one field from newest-first annual statements. A skipped fiscal
// year becomes an Absent slot so streaks stop at the gap.
func Series(statements []contracts.FinancialStatement, field Field) []numeric.Value {
	get, ok := fields[field]
	if !ok || len(statements) == 0 {
		return nil
	}

	out := make([]numeric.Value, 0, len(statements))
	for i := range statements {
		if i > 0 {
			for gap := statements[i-1].FiscalYear - statements[i].FiscalYear; gap > 1; gap-- {
				out = append(out, numeric.Absent())
			}
		}
		out = append(out, get(&statements[i]))
	}
	return out
}

// CAGRPeriods is the horizon used for the growth sub-score and derived metrics
const CAGRPeriods = 3

// RevenueCAGR is the 3-period revenue CAGR over the newest four slots. Absent unless
// all four annual values are present.
func RevenueCAGR(statements []contracts.FinancialStatement) numeric.Value {
	return fullWindowCAGR(Series(statements, Revenue))
}

// NetIncomeCAGR is the 3-period CAGR over the newest four profitable years only.
// Absent with fewer than four profitable years.
func NetIncomeCAGR(statements []contracts.FinancialStatement) numeric.Value {
	return fullWindowCAGR(PositiveOnly(Series(statements, NetIncome)))
}

func fullWindowCAGR(series []numeric.Value) numeric.Value {
	w := Window(series, CAGRPeriods+1)
	if len(w) < CAGRPeriods+1 {
		return numeric.Absent()
	}
	for _, v := range w {
		if !v.Present() {
			return numeric.Absent()
		}
	}
	return CAGR(w, CAGRPeriods)
}

// Latest YoY growth of a field (newest vs. the year before)
func LatestYoY(statements []contracts.FinancialStatement, field Field) numeric.Value {
	s := Series(statements, field)
	if len(s) < 2 {
		return numeric.Absent()
	}
	return YoYGrowth(s[0], s[1])
}

// Streak is ConsecutiveImprovementYears over a field
func Streak(statements []contracts.FinancialStatement, field Field) int {
	return ConsecutiveImprovementYears(Series(statements, field))
}

// Stats bundles the growth figures shown next to a scored result
func Stats(statements []contracts.FinancialStatement) contracts.GrowthStats {
	return contracts.GrowthStats{
		RevenueYoY:      LatestYoY(statements, Revenue),
		NetIncomeYoY:    LatestYoY(statements, NetIncome),
		RevenueCAGR3Y:   RevenueCAGR(statements),
		NetIncomeCAGR3Y: NetIncomeCAGR(statements),
		RevenueStreak:   Streak(statements, Revenue),
		ProfitStreak:    Streak(statements, NetIncome),
		DividendStreak:  Streak(statements, DividendPerShare),
	}
}
