package metricview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seed(t *testing.T) *MemorySource {
	t.Helper()
	ctx := context.Background()
	src := NewMemorySource()

	require.NoError(t, src.UpsertEntity(ctx, contracts.Entity{ID: "1001", Name: "Alpha Foods", Sector: "Foods", Active: true}))
	require.NoError(t, src.UpsertEntity(ctx, contracts.Entity{ID: "1002", Name: "Beta Steel", Sector: "Steel", Active: true}))

	require.NoError(t, src.SaveMarket(ctx, &contracts.MarketSnapshot{EntityID: "1001", AsOf: day("2024-05-01"), PER: numeric.Int(10)}))
	require.NoError(t, src.SaveMarket(ctx, &contracts.MarketSnapshot{EntityID: "1001", AsOf: day("2024-06-01"), PER: numeric.Int(12)}))
	require.NoError(t, src.SaveMarket(ctx, &contracts.MarketSnapshot{EntityID: "1001", AsOf: day("2024-07-01"), PER: numeric.Int(14)}))

	// fundamentals lag: only an older record for 1001, none for 1002
	require.NoError(t, src.SaveFundamental(ctx, &contracts.FundamentalSnapshot{EntityID: "1001", AsOf: day("2024-03-31"), ROE: numeric.Int(9)}))
	require.NoError(t, src.SaveMarket(ctx, &contracts.MarketSnapshot{EntityID: "1002", AsOf: day("2024-06-01"), PER: numeric.Int(6)}))

	require.NoError(t, src.SaveStatements(ctx, "1001", []contracts.FinancialStatement{
		{FiscalYear: 2021, Revenue: numeric.Int(100), NetIncome: numeric.Int(10)},
		{FiscalYear: 2023, Revenue: numeric.Int(120), NetIncome: numeric.Int(12)},
		{FiscalYear: 2022, Revenue: numeric.Int(110), NetIncome: numeric.Int(11)},
		{FiscalYear: 2023, Quarter: 2, Revenue: numeric.Int(60)},
		{FiscalYear: 2025, Revenue: numeric.Int(200), NetIncome: numeric.Int(20)},
	}))
	return src
}

func TestView_LoadResolvesFamiliesIndependently(t *testing.T) {
	view := New(seed(t), DefaultConfig(), logger.NewNop())

	snaps, err := view.Load(context.Background(), []string{"1001", "1002", "9999"}, day("2024-06-15"))
	require.NoError(t, err)
	require.Len(t, snaps, 2, "unknown ids are skipped")

	alpha := snaps["1001"]
	require.NotNil(t, alpha.Market)
	assert.Equal(t, "12", alpha.Market.PER.String(), "latest market record at or before as-of")
	require.NotNil(t, alpha.Fundamental)
	assert.Equal(t, day("2024-03-31"), alpha.Fundamental.AsOf)
	assert.Nil(t, alpha.Technical)

	require.Len(t, alpha.Statements, 3, "annual only, future fiscal years excluded")
	assert.Equal(t, 2023, alpha.Statements[0].FiscalYear)
	assert.Equal(t, 2021, alpha.Statements[2].FiscalYear)

	beta := snaps["1002"]
	assert.NotNil(t, beta.Market, "missing fundamentals never hide market data")
	assert.Nil(t, beta.Fundamental)
	assert.Empty(t, beta.Statements)
}

func TestView_HistoryLimit(t *testing.T) {
	view := New(seed(t), Config{HistoryYears: 0}, logger.NewNop())
	assert.Equal(t, 2, view.config.HistoryYears)

	snaps, err := view.Load(context.Background(), []string{"1001"}, day("2024-06-15"))
	require.NoError(t, err)
	assert.Len(t, snaps["1001"].Statements, 2)
}

func TestView_EmptyIDs(t *testing.T) {
	view := New(seed(t), DefaultConfig(), logger.NewNop())
	snaps, err := view.Load(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

type failingSource struct{ *MemorySource }

func (f failingSource) LatestFundamental(context.Context, []string, time.Time) (map[string]*contracts.FundamentalSnapshot, error) {
	return nil, errors.New("connection reset")
}

func TestView_SourceError(t *testing.T) {
	view := New(failingSource{seed(t)}, DefaultConfig(), logger.NewNop())
	_, err := view.Load(context.Background(), []string{"1001"}, day("2024-06-15"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fundamental snapshots")
}

func TestMemorySource_UpsertAndVersion(t *testing.T) {
	ctx := context.Background()
	src := seed(t)

	v1, _ := src.DataVersion(ctx)
	require.NoError(t, src.SaveMarket(ctx, &contracts.MarketSnapshot{EntityID: "1002", AsOf: day("2024-06-01"), PER: numeric.Int(7)}))
	v2, _ := src.DataVersion(ctx)
	assert.NotEqual(t, v1, v2)

	m, _ := src.LatestMarket(ctx, []string{"1002"}, day("2024-06-30"))
	assert.Equal(t, "7", m["1002"].PER.String(), "same (entity, date) replaces")

	n, err := src.Deactivate(ctx, []string{"1002", "nope"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ids, _ := src.ListActiveIDs(ctx)
	assert.Equal(t, []string{"1001"}, ids)

	n, _ = src.Deactivate(ctx, []string{"1002"})
	assert.Zero(t, n, "already inactive")
}

func TestLoadFixture(t *testing.T) {
	doc := `{
		"entities": [{"id": "7203", "name": "Motor Co", "sector": "Autos", "active": true}],
		"market": [{"entity_id": "7203", "as_of": "2024-06-01T00:00:00Z", "per": "9.5", "pbr": "NaN"}],
		"statements": [
			{"entity_id": "7203", "fiscal_year": 2023, "revenue": 1000, "net_income": null},
			{"entity_id": "7203", "fiscal_year": 2022, "revenue": 900}
		]
	}`

	src, err := LoadFixture(strings.NewReader(doc))
	require.NoError(t, err)

	view := New(src, DefaultConfig(), logger.NewNop())
	snaps, err := view.Load(context.Background(), []string{"7203"}, day("2024-12-31"))
	require.NoError(t, err)

	snap := snaps["7203"]
	require.NotNil(t, snap)
	assert.Equal(t, "9.5", snap.Market.PER.String())
	assert.False(t, snap.Market.PBR.Present())
	assert.Len(t, snap.Statements, 2)
	assert.False(t, snap.Statements[0].NetIncome.Present())

	_, err = LoadFixture(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestMetricsRegistry(t *testing.T) {
	for _, name := range []string{"per", "pbr", "dividend_yield", "price", "roe", "roa", "debt_equity_ratio",
		"revenue_growth", "profit_growth", "roic", "market_cap", "rsi", "revenue_cagr_3y", "profit_margin"} {
		_, ok := Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := Lookup("__import__")
	assert.False(t, ok)

	names := Names()
	assert.True(t, len(names) > 30)
	assert.IsIncreasing(t, names)
}

func TestMetrics_Values(t *testing.T) {
	snap := &contracts.EntitySnapshot{
		Market: &contracts.MarketSnapshot{PER: numeric.Int(8)},
		Statements: []contracts.FinancialStatement{
			{FiscalYear: 2024, Revenue: numeric.Int(200), NetIncome: numeric.Int(30)},
			{FiscalYear: 2023, Revenue: numeric.Int(160), NetIncome: numeric.Int(20)},
		},
	}

	get := func(name string) numeric.Value {
		m, ok := Lookup(name)
		require.True(t, ok)
		return m.Value(snap)
	}

	assert.Equal(t, "8", get("per").String())
	assert.False(t, get("roe").Present(), "nil fundamental snapshot reads as Absent")
	assert.False(t, get("rsi").Present())
	assert.Equal(t, "15", get("profit_margin").String())
	assert.Equal(t, "25", get("revenue_yoy").String())
	assert.Equal(t, "200", get("revenue").String())
}
