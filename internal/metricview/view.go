// Package metricview assembles the read-only per-entity snapshot the engine evaluates,
// and owns the registry of named metrics readable from it.
package metricview

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Config holds view configuration
type Config struct {
	HistoryYears int // statements kept per entity, clamped to [2, 20]
}

// DefaultConfig returns default view configuration
func DefaultConfig() Config {
	return Config{HistoryYears: 10}
}

// View projects persisted state into EntitySnapshots
// ⭐ SSOT: snapshot assembly
type View struct {
	source contracts.SnapshotSource
	config Config
	logger *logger.Logger
}

// New creates a new metric view
func New(source contracts.SnapshotSource, cfg Config, log *logger.Logger) *View {
	if cfg.HistoryYears < 2 {
		cfg.HistoryYears = 2
	}
	if cfg.HistoryYears > 20 {
		cfg.HistoryYears = 20
	}

	return &View{
		source: source,
		config: cfg,
		logger: log.Component("metricview"),
	}
}

// Load returns one snapshot per known entity in ids. Each family is fetched in a single
// bulk call and resolved independently: a missing fundamental record never hides an
// available market record. Unknown ids are skipped.
func (v *View) Load(ctx context.Context, ids []string, asOf time.Time) (map[string]*contracts.EntitySnapshot, error) {
	if len(ids) == 0 {
		return map[string]*contracts.EntitySnapshot{}, nil
	}

	var (
		entities    map[string]contracts.Entity
		markets     map[string]*contracts.MarketSnapshot
		fundamental map[string]*contracts.FundamentalSnapshot
		technicals  map[string]*contracts.TechnicalSnapshot
		statements  map[string][]contracts.FinancialStatement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entities, err = v.source.Entities(gctx, ids)
		return wrap("entities", err)
	})
	g.Go(func() (err error) {
		markets, err = v.source.LatestMarket(gctx, ids, asOf)
		return wrap("market snapshots", err)
	})
	g.Go(func() (err error) {
		fundamental, err = v.source.LatestFundamental(gctx, ids, asOf)
		return wrap("fundamental snapshots", err)
	})
	g.Go(func() (err error) {
		technicals, err = v.source.LatestTechnical(gctx, ids, asOf)
		return wrap("technical snapshots", err)
	})
	g.Go(func() (err error) {
		statements, err = v.source.RecentStatements(gctx, ids, asOf, v.config.HistoryYears)
		return wrap("financial statements", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*contracts.EntitySnapshot, len(entities))
	missing := 0
	for _, id := range ids {
		entity, ok := entities[id]
		if !ok {
			missing++
			continue
		}

		out[id] = &contracts.EntitySnapshot{
			Entity:      entity,
			AsOf:        asOf,
			Market:      sanitizeMarket(markets[id]),
			Fundamental: sanitizeFundamental(fundamental[id]),
			Technical:   sanitizeTechnical(technicals[id]),
			Statements:  orderStatements(statements[id], v.config.HistoryYears),
		}
	}

	v.logger.WithFields(map[string]interface{}{
		"requested": len(ids),
		"loaded":    len(out),
		"missing":   missing,
		"as_of":     asOf.Format("2006-01-02"),
	}).Debug("Loaded entity snapshots")

	return out, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

// orderStatements keeps annual rows, one per fiscal year, newest first, capped at limit
func orderStatements(in []contracts.FinancialStatement, limit int) []contracts.FinancialStatement {
	annual := make([]contracts.FinancialStatement, 0, len(in))
	seen := make(map[int]bool, len(in))
	for _, st := range in {
		if st.Quarter != 0 || seen[st.FiscalYear] {
			continue
		}
		seen[st.FiscalYear] = true
		annual = append(annual, sanitizeStatement(st))
	}

	sort.SliceStable(annual, func(i, j int) bool {
		return annual[i].FiscalYear > annual[j].FiscalYear
	})

	if len(annual) > limit {
		annual = annual[:limit]
	}
	return annual
}

// The sanitize helpers re-run the normalizer on every value crossing into the engine.

func sanitizeMarket(m *contracts.MarketSnapshot) *contracts.MarketSnapshot {
	if m == nil {
		return nil
	}
	c := *m
	for _, f := range []*numeric.Value{&c.Price, &c.PER, &c.PBR, &c.PSR, &c.DividendYield, &c.PayoutRatio, &c.MarketCap, &c.Volume} {
		*f = numeric.Normalize(*f)
	}
	return &c
}

func sanitizeFundamental(f *contracts.FundamentalSnapshot) *contracts.FundamentalSnapshot {
	if f == nil {
		return nil
	}
	c := *f
	for _, p := range []*numeric.Value{
		&c.ROE, &c.ROA, &c.ROIC, &c.GrossMargin, &c.OperatingMargin, &c.NetMargin,
		&c.DebtEquityRatio, &c.CurrentRatio, &c.EquityRatio, &c.AssetTurnover,
		&c.RevenueGrowth1Y, &c.RevenueGrowth3Y, &c.ProfitGrowth1Y, &c.ProfitGrowth3Y,
	} {
		*p = numeric.Normalize(*p)
	}
	return &c
}

func sanitizeTechnical(t *contracts.TechnicalSnapshot) *contracts.TechnicalSnapshot {
	if t == nil {
		return nil
	}
	c := *t
	for _, p := range []*numeric.Value{&c.MA5, &c.MA25, &c.MA75, &c.RSI14, &c.Volatility, &c.Momentum20, &c.AvgVolume20} {
		*p = numeric.Normalize(*p)
	}
	return &c
}

func sanitizeStatement(s contracts.FinancialStatement) contracts.FinancialStatement {
	for _, p := range []*numeric.Value{
		&s.Revenue, &s.OperatingIncome, &s.NetIncome, &s.TotalAssets,
		&s.ShareholdersEquity, &s.EPS, &s.BPS, &s.DividendPerShare,
	} {
		*p = numeric.Normalize(*p)
	}
	return s
}
