package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/external/provider"
	"github.com/wonny/aegis-screener/internal/metricview"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

type fakeSource struct {
	listing    []provider.ListingRow
	quotes     map[string]*provider.Quote
	financials map[string]*provider.StatementTable
	bars       map[string][]provider.PriceBar
}

func (f *fakeSource) FetchAllListings(_ context.Context, _ int) ([]provider.ListingRow, error) {
	return f.listing, nil
}

func (f *fakeSource) FetchQuote(_ context.Context, code string) (*provider.Quote, error) {
	q, ok := f.quotes[code]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return q, nil
}

func (f *fakeSource) FetchFinancials(_ context.Context, code string) (*provider.StatementTable, error) {
	t, ok := f.financials[code]
	if !ok {
		return nil, errors.New("no statement table")
	}
	return t, nil
}

func (f *fakeSource) FetchPrices(_ context.Context, code string, _ int) ([]provider.PriceBar, error) {
	return f.bars[code], nil
}

func risingBars(n int, start float64) []provider.PriceBar {
	day0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]provider.PriceBar, n)
	for i := range bars {
		c := numeric.Normalize(start + float64(i))
		bars[i] = provider.PriceBar{
			Date:   day0.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: numeric.Int(1000),
		}
	}
	return bars
}

func TestAliasTable_Resolve(t *testing.T) {
	a := DefaultAliases()
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"P/E Ratio", FieldPER, true},
		{"p/e ratio (x)", FieldPER, true},
		{"PER", FieldPER, true},
		{"Dividend Yield (%)", FieldDividendYield, true},
		{"Net Income", FieldNetIncome, true},
		{"Net Income Attributable to Parent", FieldNetIncome, true},
		{"Profit", FieldNetIncome, true},
		{"  Total  Revenue ", FieldRevenue, true},
		{"売上高", FieldRevenue, true},
		{"自己資本比率", FieldEquityRatio, true},
		{"自己資本", FieldShareholdersEquity, true},
		{"dividend_per_share", FieldDividendPerShare, true},
		{"Goodwill Amortisation", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := a.Resolve(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAliases(t *testing.T) {
	a, err := ParseAliases([]byte("revenue: [\"Net Revenues\"]\nroe: [\"RoE (%)\"]\n"))
	require.NoError(t, err)

	f, ok := a.Resolve("net revenues")
	assert.True(t, ok)
	assert.Equal(t, FieldRevenue, f)

	f, ok = a.Resolve("P/E Ratio")
	assert.True(t, ok, "defaults are kept")
	assert.Equal(t, FieldPER, f)

	_, err = ParseAliases([]byte("shoe_size: [\"Size\"]\n"))
	assert.ErrorContains(t, err, "shoe_size")

	_, err = ParseAliases([]byte("revenue: {"))
	assert.Error(t, err)
}

func TestDrift(t *testing.T) {
	d := NewDrift()
	assert.True(t, d.Record("Beta"))
	assert.False(t, d.Record("Beta"))
	assert.True(t, d.Record("Alpha"))

	assert.Equal(t, []string{"Alpha", "Beta"}, d.Labels())
	assert.Equal(t, 2, d.Count("Beta"))
	assert.Equal(t, 3, d.Total())
}

func TestSizeBucketFor(t *testing.T) {
	tests := []struct {
		cap  string
		want contracts.SizeBucket
	}{
		{"2000000000000", contracts.SizeLarge},
		{"1000000000000", contracts.SizeLarge},
		{"999999999999", contracts.SizeMid},
		{"100000000000", contracts.SizeMid},
		{"50000000000", contracts.SizeSmall},
		{"9999999999", contracts.SizeMicro},
	}
	for _, tt := range tests {
		t.Run(tt.cap, func(t *testing.T) {
			assert.Equal(t, tt.want, SizeBucketFor(numeric.MustParse(tt.cap)))
		})
	}
	assert.Equal(t, contracts.SizeBucket(""), SizeBucketFor(numeric.Absent()))
}

func TestMapper_Statements(t *testing.T) {
	m := &mapper{aliases: DefaultAliases(), drift: NewDrift(), logger: logger.NewNop()}
	table := &provider.StatementTable{
		Years: []int{2021, 2022, 2023},
		Rows: []provider.StatementRow{
			{Label: "Net Sales", Values: []string{"100", "110", "121"}},
			{Label: "Revenue", Values: []string{"999", "999", "999"}},
			{Label: "Profit", Values: []string{"10", "-", "12"}},
			{Label: "Goodwill", Values: []string{"1", "1", "1"}},
			{Label: "DPS", Values: []string{"5"}},
		},
	}

	got := m.statements("7974", table)
	require.Len(t, got, 3)
	assert.Equal(t, 2023, got[0].FiscalYear, "newest first")
	assert.Equal(t, "121", got[0].Revenue.String(), "first alias with a value wins")
	assert.False(t, got[1].NetIncome.Present(), "dash stays absent")
	assert.Equal(t, "5", got[2].DividendPerShare.String())
	assert.False(t, got[0].DividendPerShare.Present(), "short row leaves later years absent")
	assert.Equal(t, "7974", got[0].EntityID)
	assert.Equal(t, []string{"Goodwill"}, m.drift.Labels())

	assert.Nil(t, m.statements("7974", nil))
}

func TestBuildFundamental_DerivesMissingRatios(t *testing.T) {
	statements := []contracts.FinancialStatement{
		{
			FiscalYear:         2023,
			Revenue:            numeric.Int(1000),
			OperatingIncome:    numeric.Int(150),
			NetIncome:          numeric.Int(100),
			TotalAssets:        numeric.Int(2000),
			ShareholdersEquity: numeric.Int(800),
		},
		{FiscalYear: 2022, Revenue: numeric.Int(800), NetIncome: numeric.Int(80)},
	}
	fields := map[string]numeric.Value{
		FieldROE: numeric.MustParse("11"),
	}

	f := BuildFundamental("X", time.Now(), fields, statements)
	assert.Equal(t, "11", f.ROE.String(), "quote value wins over derivation")
	assert.Equal(t, "5", f.ROA.String())
	assert.Equal(t, "10", f.NetMargin.String())
	assert.Equal(t, "15", f.OperatingMargin.String())
	assert.Equal(t, "40", f.EquityRatio.String())
	assert.Equal(t, "0.5", f.AssetTurnover.String())
	assert.Equal(t, "1.5", f.DebtEquityRatio.String())
	assert.Equal(t, "25", f.RevenueGrowth1Y.String())
	assert.Equal(t, "25", f.ProfitGrowth1Y.String())
	assert.False(t, f.CurrentRatio.Present())

	empty := BuildFundamental("X", time.Now(), nil, nil)
	assert.False(t, empty.ROE.Present())
	assert.False(t, empty.RevenueGrowth1Y.Present())
}

func TestComputeTechnicals(t *testing.T) {
	tech := ComputeTechnicals("X", risingBars(80, 100))
	require.NotNil(t, tech)

	assert.Equal(t, "177", tech.MA5.String())
	assert.Equal(t, "167", tech.MA25.String())
	assert.Equal(t, "142", tech.MA75.String())
	assert.Equal(t, "100", tech.RSI14.String(), "no losses")
	assert.Equal(t, "12.5786", tech.Momentum20.String())
	assert.Equal(t, "1000", tech.AvgVolume20.String())
	assert.True(t, tech.Volatility.IsPositive())
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), tech.AsOf)
}

func TestComputeTechnicals_ShortHistory(t *testing.T) {
	tech := ComputeTechnicals("X", risingBars(10, 100))
	require.NotNil(t, tech)
	assert.Equal(t, "107", tech.MA5.String())
	assert.False(t, tech.MA25.Present())
	assert.False(t, tech.RSI14.Present())
	assert.False(t, tech.Volatility.Present())
	assert.False(t, tech.Momentum20.Present())
	assert.False(t, tech.AvgVolume20.Present())

	assert.Nil(t, ComputeTechnicals("X", nil))
}

func TestRSI_Mixed(t *testing.T) {
	closes := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}
	// 7 gains of 1 and 7 losses of 1
	assert.Equal(t, "50", rsi(closes, 14).String())

	flat := make([]float64, 15)
	assert.Equal(t, "50", rsi(flat, 14).String())
}

func TestCollector_Run(t *testing.T) {
	ctx := context.Background()
	store := metricview.NewMemorySource()
	require.NoError(t, store.UpsertEntity(ctx, contracts.Entity{ID: "1111", Name: "Delisted", Active: true}))

	years := []int{2016, 2017, 2018, 2019, 2020, 2021, 2022, 2023}
	revenue := []string{"100", "110", "120", "130", "140", "150", "160", "170"}

	src := &fakeSource{
		listing: []provider.ListingRow{
			{Code: "7974", Name: "Nintendo", Sector: "Other Products", MarketCap: numeric.MustParse("10000000000000")},
			{Code: "6758", Name: "Sony", Sector: "Electric Appliances"},
			{Code: "7974", Name: "Nintendo duplicate"},
		},
		quotes: map[string]*provider.Quote{
			"7974": {
				Code: "7974",
				AsOf: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
				Fields: map[string]string{
					"P/E Ratio":      "18.5",
					"PBR":            "3.9",
					"Dividend Yield": "2.71%",
					"Beta":           "0.8",
				},
			},
		},
		financials: map[string]*provider.StatementTable{
			"7974": {
				Years: years,
				Rows:  []provider.StatementRow{{Label: "Revenue", Values: revenue}},
			},
		},
		bars: map[string][]provider.PriceBar{"7974": risingBars(80, 100)},
	}

	c := NewCollector(src, store, store, Config{Workers: 2, HistoryYears: 5, ListingPages: 1}, logger.NewNop())
	summary, err := c.Run(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, int64(1), summary.Deactivated)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed, "6758 has no quote page")
	assert.Equal(t, []string{"Beta"}, summary.DriftLabels)

	ids, err := store.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"6758", "7974"}, ids)

	view := metricview.New(store, metricview.Config{HistoryYears: 20}, logger.NewNop())
	snaps, err := view.Load(ctx, []string{"7974"}, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	snap := snaps["7974"]
	require.NotNil(t, snap)

	assert.Equal(t, contracts.SizeLarge, snap.Entity.SizeBucket)
	assert.Equal(t, "18.5", snap.Market.PER.String())
	assert.Equal(t, "2.71", snap.Market.DividendYield.String())
	require.Len(t, snap.Statements, 5, "history capped")
	assert.Equal(t, 2023, snap.Statements[0].FiscalYear)
	require.NotNil(t, snap.Technical)
	assert.Equal(t, "177", snap.Technical.MA5.String())
	require.NotNil(t, snap.Fundamental)
	assert.Equal(t, "6.25", snap.Fundamental.RevenueGrowth1Y.String())
}

func TestCollector_IngestAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := metricview.NewMemorySource()
	c := NewCollector(&fakeSource{}, store, store, Config{Workers: 1}, logger.NewNop())
	results, err := c.IngestAll(ctx, []string{"1", "2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2)
}

func TestCollector_SyncUniverse_EmptyListing(t *testing.T) {
	ctx := context.Background()
	store := metricview.NewMemorySource()
	require.NoError(t, store.UpsertEntity(ctx, contracts.Entity{ID: "1111", Name: "Kept", Active: true}))

	c := NewCollector(&fakeSource{}, store, store, Config{}, logger.NewNop())
	discovered, deactivated, err := c.SyncUniverse(ctx)
	require.NoError(t, err)
	assert.Zero(t, discovered)
	assert.Zero(t, deactivated)

	ids, _ := store.ListActiveIDs(ctx)
	assert.Equal(t, []string{"1111"}, ids)
}
