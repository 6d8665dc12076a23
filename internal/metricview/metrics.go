package metricview

import (
	"sort"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// Family is the snapshot family a metric is read from
type Family string

const (
	FamilyMarket      Family = "market"
	FamilyFundamental Family = "fundamental"
	FamilyTechnical   Family = "technical"
	FamilyStatements  Family = "statements"
)

// Metric is a named, canonically-resolved value readable from an entity snapshot.
// Cost orders predicates: direct fields are cheaper than derived series math.
type Metric struct {
	Name   string
	Family Family
	Cost   int
	Value  func(*contracts.EntitySnapshot) numeric.Value
}

const (
	costField   = 1
	costDerived = 5
)

func market(get func(*contracts.MarketSnapshot) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if s.Market == nil {
			return numeric.Absent()
		}
		return get(s.Market)
	}
}

func fundamental(get func(*contracts.FundamentalSnapshot) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if s.Fundamental == nil {
			return numeric.Absent()
		}
		return get(s.Fundamental)
	}
}

func technical(get func(*contracts.TechnicalSnapshot) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if s.Technical == nil {
			return numeric.Absent()
		}
		return get(s.Technical)
	}
}

func latest(field growth.Field) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		series := growth.Series(s.Statements, field)
		if len(series) == 0 {
			return numeric.Absent()
		}
		return series[0]
	}
}

func profitMargin(s *contracts.EntitySnapshot) numeric.Value {
	st := s.LatestStatement()
	if st == nil || !st.Revenue.IsPositive() {
		return numeric.Absent()
	}
	return st.NetIncome.Div(st.Revenue).Mul(numeric.Int(100)).Round(4)
}

var registry = map[string]Metric{}

func register(name string, family Family, cost int, fn func(*contracts.EntitySnapshot) numeric.Value) {
	registry[name] = Metric{Name: name, Family: family, Cost: cost, Value: fn}
}

func init() {
	register("price", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.Price }))
	register("per", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PER }))
	register("pbr", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PBR }))
	register("psr", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PSR }))
	register("dividend_yield", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.DividendYield }))
	register("payout_ratio", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.PayoutRatio }))
	register("market_cap", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.MarketCap }))
	register("volume", FamilyMarket, costField, market(func(m *contracts.MarketSnapshot) numeric.Value { return m.Volume }))

	register("roe", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROE }))
	register("roa", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROA }))
	register("roic", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROIC }))
	register("gross_margin", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.GrossMargin }))
	register("operating_margin", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.OperatingMargin }))
	register("net_margin", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.NetMargin }))
	register("debt_equity_ratio", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.DebtEquityRatio }))
	register("current_ratio", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.CurrentRatio }))
	register("equity_ratio", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.EquityRatio }))
	register("asset_turnover", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.AssetTurnover }))
	register("revenue_growth", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.RevenueGrowth1Y }))
	register("revenue_growth_3y", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.RevenueGrowth3Y }))
	register("profit_growth", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ProfitGrowth1Y }))
	register("profit_growth_3y", FamilyFundamental, costField, fundamental(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ProfitGrowth3Y }))

	register("ma5", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.MA5 }))
	register("ma25", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.MA25 }))
	register("ma75", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.MA75 }))
	register("rsi", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.RSI14 }))
	register("volatility", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.Volatility }))
	register("momentum", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.Momentum20 }))
	register("avg_volume", FamilyTechnical, costField, technical(func(t *contracts.TechnicalSnapshot) numeric.Value { return t.AvgVolume20 }))

	register("revenue", FamilyStatements, costField, latest(growth.Revenue))
	register("operating_income", FamilyStatements, costField, latest(growth.OperatingIncome))
	register("net_income", FamilyStatements, costField, latest(growth.NetIncome))
	register("eps", FamilyStatements, costField, latest(growth.EPS))
	register("bps", FamilyStatements, costField, latest(growth.BPS))
	register("dividend_per_share", FamilyStatements, costField, latest(growth.DividendPerShare))
	register("profit_margin", FamilyStatements, costDerived, profitMargin)
	register("revenue_yoy", FamilyStatements, costDerived, func(s *contracts.EntitySnapshot) numeric.Value {
		return growth.LatestYoY(s.Statements, growth.Revenue)
	})
	register("net_income_yoy", FamilyStatements, costDerived, func(s *contracts.EntitySnapshot) numeric.Value {
		return growth.LatestYoY(s.Statements, growth.NetIncome)
	})
	register("revenue_cagr_3y", FamilyStatements, costDerived, func(s *contracts.EntitySnapshot) numeric.Value {
		return growth.RevenueCAGR(s.Statements)
	})
	register("net_income_cagr_3y", FamilyStatements, costDerived, func(s *contracts.EntitySnapshot) numeric.Value {
		return growth.NetIncomeCAGR(s.Statements)
	})
	register("profit_stability", FamilyStatements, costDerived, func(s *contracts.EntitySnapshot) numeric.Value {
		return growth.ProfitStability(growth.Series(s.Statements, growth.NetIncome))
	})
}

// Lookup resolves a metric by canonical name
func Lookup(name string) (Metric, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names lists every metric name, sorted
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
