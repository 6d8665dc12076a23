package collector

import (
	"sort"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/external/provider"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Size bucket market-cap floors, in the listing currency
var (
	largeCapFloor = numeric.MustParse("1000000000000")
	midCapFloor   = numeric.MustParse("100000000000")
	smallCapFloor = numeric.MustParse("10000000000")
)

// SizeBucketFor classifies a market cap. An absent cap yields no bucket.
func SizeBucketFor(marketCap numeric.Value) contracts.SizeBucket {
	switch {
	case !marketCap.Present():
		return ""
	case marketCap.GreaterThanOrEqual(largeCapFloor):
		return contracts.SizeLarge
	case marketCap.GreaterThanOrEqual(midCapFloor):
		return contracts.SizeMid
	case marketCap.GreaterThanOrEqual(smallCapFloor):
		return contracts.SizeSmall
	default:
		return contracts.SizeMicro
	}
}

// EntityFromListing builds an active entity from a listing row
func EntityFromListing(row provider.ListingRow) contracts.Entity {
	return contracts.Entity{
		ID:         row.Code,
		Name:       row.Name,
		Market:     row.Market,
		Sector:     row.Sector,
		SizeBucket: SizeBucketFor(row.MarketCap),
		Active:     true,
	}
}

// mapper resolves vendor labels and normalizes values, reporting drift
type mapper struct {
	aliases *AliasTable
	drift   *Drift
	logger  *logger.Logger
}

// fields resolves a label->text map. The first present value of a field wins.
func (m *mapper) fields(entityID, source string, raw map[string]string) map[string]numeric.Value {
	out := make(map[string]numeric.Value, len(raw))
	for label, text := range raw {
		field, ok := m.aliases.Resolve(label)
		if !ok {
			m.unknown(entityID, source, label)
			continue
		}
		v := numeric.Normalize(text)
		if cur, seen := out[field]; seen && cur.Present() {
			continue
		}
		out[field] = v
	}
	return out
}

func (m *mapper) unknown(entityID, source, label string) {
	if m.drift.Record(label) {
		m.logger.WithFields(map[string]interface{}{
			"entity": entityID,
			"source": source,
			"label":  label,
		}).Warn("Unknown vendor label, schema drift")
	}
}

// statements converts the year x label grid into one annual statement per fiscal year, newest first
func (m *mapper) statements(entityID string, table *provider.StatementTable) []contracts.FinancialStatement {
	if table == nil || len(table.Years) == 0 {
		return nil
	}

	out := make([]contracts.FinancialStatement, len(table.Years))
	for i, year := range table.Years {
		out[i] = contracts.FinancialStatement{EntityID: entityID, FiscalYear: year}
	}

	for _, row := range table.Rows {
		field, ok := m.aliases.Resolve(row.Label)
		if !ok {
			m.unknown(entityID, "financials", row.Label)
			continue
		}
		for i := range out {
			if i >= len(row.Values) {
				break
			}
			target := statementField(&out[i], field)
			if target == nil || target.Present() {
				continue
			}
			*target = numeric.Normalize(row.Values[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FiscalYear > out[j].FiscalYear })
	return out
}

func statementField(s *contracts.FinancialStatement, field string) *numeric.Value {
	switch field {
	case FieldRevenue:
		return &s.Revenue
	case FieldOperatingIncome:
		return &s.OperatingIncome
	case FieldNetIncome:
		return &s.NetIncome
	case FieldTotalAssets:
		return &s.TotalAssets
	case FieldShareholdersEquity:
		return &s.ShareholdersEquity
	case FieldEPS:
		return &s.EPS
	case FieldBPS:
		return &s.BPS
	case FieldDividendPerShare:
		return &s.DividendPerShare
	}
	return nil
}

func value(fields map[string]numeric.Value, name string) numeric.Value {
	if v, ok := fields[name]; ok {
		return v
	}
	return numeric.Absent()
}

// BuildMarket assembles a market snapshot from resolved quote fields
func BuildMarket(entityID string, asOf time.Time, fields map[string]numeric.Value) *contracts.MarketSnapshot {
	return &contracts.MarketSnapshot{
		EntityID:      entityID,
		AsOf:          asOf,
		Price:         value(fields, FieldPrice),
		PER:           value(fields, FieldPER),
		PBR:           value(fields, FieldPBR),
		PSR:           value(fields, FieldPSR),
		DividendYield: value(fields, FieldDividendYield),
		PayoutRatio:   value(fields, FieldPayoutRatio),
		MarketCap:     value(fields, FieldMarketCap),
		Volume:        value(fields, FieldVolume),
	}
}

var hundred = numeric.Int(100)

// BuildFundamental assembles a fundamental snapshot. Ratios the quote page does not
// print are derived from the newest statement; growth rates always come from statements.
// statements must be newest first.
func BuildFundamental(entityID string, asOf time.Time, fields map[string]numeric.Value, statements []contracts.FinancialStatement) *contracts.FundamentalSnapshot {
	f := &contracts.FundamentalSnapshot{
		EntityID:        entityID,
		AsOf:            asOf,
		ROE:             value(fields, FieldROE),
		ROA:             value(fields, FieldROA),
		ROIC:            value(fields, FieldROIC),
		GrossMargin:     value(fields, FieldGrossMargin),
		OperatingMargin: value(fields, FieldOperatingMargin),
		NetMargin:       value(fields, FieldNetMargin),
		DebtEquityRatio: value(fields, FieldDebtEquity),
		CurrentRatio:    value(fields, FieldCurrentRatio),
		EquityRatio:     value(fields, FieldEquityRatio),
		AssetTurnover:   value(fields, FieldAssetTurnover),
	}

	if len(statements) > 0 {
		s := statements[0]
		fill(&f.ROE, s.NetIncome.Div(s.ShareholdersEquity).Mul(hundred))
		fill(&f.ROA, s.NetIncome.Div(s.TotalAssets).Mul(hundred))
		fill(&f.NetMargin, s.NetIncome.Div(s.Revenue).Mul(hundred))
		fill(&f.OperatingMargin, s.OperatingIncome.Div(s.Revenue).Mul(hundred))
		fill(&f.EquityRatio, s.ShareholdersEquity.Div(s.TotalAssets).Mul(hundred))
		fill(&f.AssetTurnover, s.Revenue.Div(s.TotalAssets))
		if s.ShareholdersEquity.IsPositive() {
			fill(&f.DebtEquityRatio, s.TotalAssets.Sub(s.ShareholdersEquity).Div(s.ShareholdersEquity))
		}
	}

	f.RevenueGrowth1Y = growth.LatestYoY(statements, growth.Revenue)
	f.RevenueGrowth3Y = growth.RevenueCAGR(statements)
	f.ProfitGrowth1Y = growth.LatestYoY(statements, growth.NetIncome)
	f.ProfitGrowth3Y = growth.NetIncomeCAGR(statements)
	return f
}

func fill(dst *numeric.Value, derived numeric.Value) {
	if dst.Present() {
		return
	}
	*dst = derived.Round(4)
}
