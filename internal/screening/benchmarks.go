package screening

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// SectorBenchmark holds per-sector averages over entities that report each metric
type SectorBenchmark struct {
	Sector           string        `json:"sector"`
	Count            int           `json:"count"`
	AvgPER           numeric.Value `json:"avg_per"`
	AvgPBR           numeric.Value `json:"avg_pbr"`
	AvgROE           numeric.Value `json:"avg_roe"`
	AvgROA           numeric.Value `json:"avg_roa"`
	AvgDividendYield numeric.Value `json:"avg_dividend_yield"`
	AvgDebtEquity    numeric.Value `json:"avg_debt_equity_ratio"`
}

// UnclassifiedSector groups entities without a sector
const UnclassifiedSector = "Unclassified"

type mean struct {
	sum numeric.Value
	n   int64
}

func (m *mean) add(v numeric.Value) {
	if !v.Present() {
		return
	}
	if m.n == 0 {
		m.sum = v
	} else {
		m.sum = m.sum.Add(v)
	}
	m.n++
}

func (m *mean) value() numeric.Value {
	if m.n == 0 {
		return numeric.Absent()
	}
	return m.sum.Div(numeric.Int(m.n)).Round(2)
}

// Benchmarks averages valuation and profitability per sector over the active universe.
// Loss-making multiples (PER or PBR <= 0) are left out of their averages.
func (e *Engine) Benchmarks(ctx context.Context, asOf time.Time) ([]SectorBenchmark, error) {
	ids, err := e.universe.ListActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list universe: %w", err)
	}
	snaps, err := e.view.Load(ctx, ids, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return ComputeBenchmarks(snaps), nil
}

// ComputeBenchmarks groups snapshots by sector, sorted by sector name
func ComputeBenchmarks(snaps map[string]*contracts.EntitySnapshot) []SectorBenchmark {
	type acc struct {
		count                         int
		per, pbr, roe, roa, dy, debtE mean
	}
	groups := make(map[string]*acc)

	for _, s := range snaps {
		sector := strings.TrimSpace(s.Entity.Sector)
		if sector == "" {
			sector = UnclassifiedSector
		}
		a, ok := groups[sector]
		if !ok {
			a = &acc{}
			groups[sector] = a
		}
		a.count++

		if s.Market != nil {
			if s.Market.PER.IsPositive() {
				a.per.add(s.Market.PER)
			}
			if s.Market.PBR.IsPositive() {
				a.pbr.add(s.Market.PBR)
			}
			a.dy.add(s.Market.DividendYield)
		}
		if s.Fundamental != nil {
			a.roe.add(s.Fundamental.ROE)
			a.roa.add(s.Fundamental.ROA)
			a.debtE.add(s.Fundamental.DebtEquityRatio)
		}
	}

	out := make([]SectorBenchmark, 0, len(groups))
	for sector, a := range groups {
		out = append(out, SectorBenchmark{
			Sector:           sector,
			Count:            a.count,
			AvgPER:           a.per.value(),
			AvgPBR:           a.pbr.value(),
			AvgROE:           a.roe.value(),
			AvgROA:           a.roa.value(),
			AvgDividendYield: a.dy.value(),
			AvgDebtEquity:    a.debtE.value(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out
}
