package quality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Issue kinds
const (
	KindRange   = "range"
	KindLogical = "logical"
	KindMissing = "missing"
	KindStale   = "stale"
)

// Score penalties per issue kind. Missing fields are charged through completeness.
var penalties = map[string]float64{
	KindRange:   10,
	KindLogical: 15,
	KindStale:   20,
}

// Issue is one failed check
type Issue struct {
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the quality verdict for one entity
type Report struct {
	EntityID     string    `json:"entity_id"`
	CheckedAt    time.Time `json:"checked_at"`
	Score        float64   `json:"score"`        // 0-100
	Completeness float64   `json:"completeness"` // 0-1
	Issues       []Issue   `json:"issues"`
}

// Summary aggregates reports over the universe
type Summary struct {
	CheckedAt       time.Time      `json:"checked_at"`
	Total           int            `json:"total"`
	Passed          int            `json:"passed"`
	AverageScore    float64        `json:"average_score"`
	AvgCompleteness float64        `json:"average_completeness"`
	IssueCounts     map[string]int `json:"issue_counts"`
	Worst           []Report       `json:"worst"`
}

// Config holds quality gate thresholds
type Config struct {
	MaxMarketAge      time.Duration `yaml:"max_market_age"`      // 7 days
	MaxFundamentalAge time.Duration `yaml:"max_fundamental_age"` // 120 days
	PassScore         float64       `yaml:"pass_score"`          // 70
	WorstCount        int           `yaml:"worst_count"`
}

// DefaultConfig returns default thresholds
func DefaultConfig() Config {
	return Config{
		MaxMarketAge:      7 * 24 * time.Hour,
		MaxFundamentalAge: 120 * 24 * time.Hour,
		PassScore:         70,
		WorstCount:        10,
	}
}

// SnapshotLoader assembles entity snapshots. *metricview.View implements it.
type SnapshotLoader interface {
	Load(ctx context.Context, ids []string, asOf time.Time) (map[string]*contracts.EntitySnapshot, error)
}

// QualityGate validates persisted snapshots
// ⭐ SSOT: S0 data quality checks
type QualityGate struct {
	loader   SnapshotLoader
	universe contracts.UniverseSource
	config   Config
	logger   *logger.Logger
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(loader SnapshotLoader, universe contracts.UniverseSource, config Config, log *logger.Logger) *QualityGate {
	if config.PassScore <= 0 {
		config.PassScore = DefaultConfig().PassScore
	}
	if config.WorstCount < 1 {
		config.WorstCount = DefaultConfig().WorstCount
	}
	return &QualityGate{
		loader:   loader,
		universe: universe,
		config:   config,
		logger:   log.WithField("module", "quality"),
	}
}

// Check validates every active entity as of the given date
func (g *QualityGate) Check(ctx context.Context, asOf time.Time) (*Summary, []Report, error) {
	ids, err := g.universe.ListActiveIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active entities: %w", err)
	}

	snapshots, err := g.loader.Load(ctx, ids, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshots: %w", err)
	}

	reports := make([]Report, 0, len(snapshots))
	for _, id := range ids {
		snap, ok := snapshots[id]
		if !ok {
			continue
		}
		reports = append(reports, Validate(snap, asOf, g.config))
	}

	summary := Summarize(reports, asOf, g.config)

	g.logger.WithFields(map[string]interface{}{
		"total":         summary.Total,
		"passed":        summary.Passed,
		"average_score": summary.AverageScore,
	}).Info("Quality check completed")

	return summary, reports, nil
}

type rangeCheck struct {
	field    string
	min, max numeric.Value
	get      func(*contracts.EntitySnapshot) numeric.Value
}

func marketField(get func(*contracts.MarketSnapshot) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if s.Market == nil {
			return numeric.Absent()
		}
		return get(s.Market)
	}
}

func fundamentalField(get func(*contracts.FundamentalSnapshot) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if s.Fundamental == nil {
			return numeric.Absent()
		}
		return get(s.Fundamental)
	}
}

func statementField(get func(*contracts.FinancialStatement) numeric.Value) func(*contracts.EntitySnapshot) numeric.Value {
	return func(s *contracts.EntitySnapshot) numeric.Value {
		if st := s.LatestStatement(); st != nil {
			return get(st)
		}
		return numeric.Absent()
	}
}

var (
	per           = marketField(func(m *contracts.MarketSnapshot) numeric.Value { return m.PER })
	pbr           = marketField(func(m *contracts.MarketSnapshot) numeric.Value { return m.PBR })
	dividendYield = marketField(func(m *contracts.MarketSnapshot) numeric.Value { return m.DividendYield })
	roe           = fundamentalField(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROE })
	roa           = fundamentalField(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.ROA })
	currentRatio  = fundamentalField(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.CurrentRatio })
	equityRatio   = fundamentalField(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.EquityRatio })
)

var rangeChecks = []rangeCheck{
	{"per", numeric.Int(0), numeric.Int(1000), per},
	{"pbr", numeric.Int(0), numeric.Int(100), pbr},
	{"dividend_yield", numeric.Int(0), numeric.Int(100), dividendYield},
	{"roe", numeric.Int(-100), numeric.Int(100), roe},
	{"roa", numeric.Int(-100), numeric.Int(100), roa},
	{"current_ratio", numeric.Int(0), numeric.Int(100), currentRatio},
}

// requiredFields drive completeness
var requiredFields = []struct {
	field string
	get   func(*contracts.EntitySnapshot) numeric.Value
}{
	{"price", marketField(func(m *contracts.MarketSnapshot) numeric.Value { return m.Price })},
	{"per", per},
	{"pbr", pbr},
	{"market_cap", marketField(func(m *contracts.MarketSnapshot) numeric.Value { return m.MarketCap })},
	{"dividend_yield", dividendYield},
	{"roe", roe},
	{"roa", roa},
	{"operating_margin", fundamentalField(func(f *contracts.FundamentalSnapshot) numeric.Value { return f.OperatingMargin })},
	{"equity_ratio", equityRatio},
	{"revenue", statementField(func(s *contracts.FinancialStatement) numeric.Value { return s.Revenue })},
	{"net_income", statementField(func(s *contracts.FinancialStatement) numeric.Value { return s.NetIncome })},
}

// Validate runs every check against one snapshot. Absent values are never range
// or logic failures; they only lower completeness.
func Validate(snap *contracts.EntitySnapshot, asOf time.Time, cfg Config) Report {
	report := Report{
		EntityID:  snap.Entity.ID,
		CheckedAt: asOf,
		Issues:    []Issue{},
	}

	present := 0
	for _, r := range requiredFields {
		if r.get(snap).Present() {
			present++
			continue
		}
		report.Issues = append(report.Issues, Issue{Field: r.field, Kind: KindMissing, Message: "value absent"})
	}
	report.Completeness = float64(present) / float64(len(requiredFields))

	for _, c := range rangeChecks {
		v := c.get(snap)
		if !v.Present() {
			continue
		}
		if v.LessThan(c.min) || v.GreaterThan(c.max) {
			report.Issues = append(report.Issues, Issue{
				Field:   c.field,
				Kind:    KindRange,
				Message: fmt.Sprintf("%s outside [%s, %s]", v, c.min, c.max),
			})
		}
	}

	if a, e := roa(snap), roe(snap); a.IsPositive() && e.IsPositive() && a.GreaterThan(e) {
		report.Issues = append(report.Issues, Issue{
			Field:   "roa",
			Kind:    KindLogical,
			Message: fmt.Sprintf("ROA %s exceeds ROE %s", a, e),
		})
	}
	if eq := equityRatio(snap); eq.GreaterThan(numeric.Int(100)) {
		report.Issues = append(report.Issues, Issue{
			Field:   "equity_ratio",
			Kind:    KindLogical,
			Message: fmt.Sprintf("equity ratio %s above 100", eq),
		})
	}

	if snap.Market != nil && asOf.Sub(snap.Market.AsOf) > cfg.MaxMarketAge {
		report.Issues = append(report.Issues, Issue{
			Field:   "market",
			Kind:    KindStale,
			Message: fmt.Sprintf("market snapshot from %s", snap.Market.AsOf.Format("2006-01-02")),
		})
	}
	if snap.Fundamental != nil && asOf.Sub(snap.Fundamental.AsOf) > cfg.MaxFundamentalAge {
		report.Issues = append(report.Issues, Issue{
			Field:   "fundamental",
			Kind:    KindStale,
			Message: fmt.Sprintf("fundamental snapshot from %s", snap.Fundamental.AsOf.Format("2006-01-02")),
		})
	}

	report.Score = calculateScore(report.Completeness, report.Issues)
	return report
}

// calculateScore starts from completeness and subtracts per-issue penalties, clamped to [0, 100]
func calculateScore(completeness float64, issues []Issue) float64 {
	score := completeness * 100
	for _, issue := range issues {
		score -= penalties[issue.Kind]
	}
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

// Summarize aggregates reports. Worst lists the lowest scores, ties by entity id.
func Summarize(reports []Report, asOf time.Time, cfg Config) *Summary {
	summary := &Summary{
		CheckedAt:   asOf,
		Total:       len(reports),
		IssueCounts: make(map[string]int),
		Worst:       []Report{},
	}
	if len(reports) == 0 {
		return summary
	}

	var scoreSum, completenessSum float64
	for _, r := range reports {
		scoreSum += r.Score
		completenessSum += r.Completeness
		if r.Score >= cfg.PassScore {
			summary.Passed++
		}
		for _, issue := range r.Issues {
			summary.IssueCounts[issue.Kind]++
		}
	}
	summary.AverageScore = math.Round(scoreSum/float64(len(reports))*100) / 100
	summary.AvgCompleteness = math.Round(completenessSum/float64(len(reports))*10000) / 10000

	sorted := make([]Report, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})
	n := cfg.WorstCount
	if n <= 0 || n > len(sorted) {
		n = len(sorted)
	}
	for _, r := range sorted[:n] {
		if r.Score >= cfg.PassScore {
			break
		}
		summary.Worst = append(summary.Worst, r)
	}
	return summary
}
