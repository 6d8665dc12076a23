package contracts

import (
	"time"

	"github.com/wonny/aegis-screener/internal/numeric"
)

// RankBucket is the letter grade derived from the total score
type RankBucket string

const (
	RankS RankBucket = "S"
	RankA RankBucket = "A"
	RankB RankBucket = "B"
	RankC RankBucket = "C"
	RankD RankBucket = "D"
)

// SubScores are the four bounded (0-25) components of the composite score
type SubScores struct {
	Valuation     float64 `json:"valuation"`
	Profitability float64 `json:"profitability"`
	Growth        float64 `json:"growth"`
	Safety        float64 `json:"safety"`
}

// Total sums the four sub-scores
func (s SubScores) Total() float64 {
	return s.Valuation + s.Profitability + s.Growth + s.Safety
}

// ScoreBreakdown is the per-half contribution (0-12.5) behind each sub-score
type ScoreBreakdown struct {
	PER           float64 `json:"per"`
	PBR           float64 `json:"pbr"`
	ROE           float64 `json:"roe"`
	ROA           float64 `json:"roa"`
	RevenueCAGR   float64 `json:"revenue_cagr"`
	NetIncomeCAGR float64 `json:"net_income_cagr"`
	EquityRatio   float64 `json:"equity_ratio"`
	CurrentRatio  float64 `json:"current_ratio"`
}

// GrowthStats are the derived growth and streak figures shown next to a result
type GrowthStats struct {
	RevenueYoY      numeric.Value `json:"revenue_yoy"`
	NetIncomeYoY    numeric.Value `json:"net_income_yoy"`
	RevenueCAGR3Y   numeric.Value `json:"revenue_cagr_3y"`
	NetIncomeCAGR3Y numeric.Value `json:"net_income_cagr_3y"`
	RevenueStreak   int           `json:"revenue_streak"`
	ProfitStreak    int           `json:"profit_streak"`
	DividendStreak  int           `json:"dividend_streak"`
}

// ScoredResult is computed per query from an entity snapshot. It is never stored as ground truth.
type ScoredResult struct {
	Entity      Entity               `json:"entity"`
	Market      *MarketSnapshot      `json:"market,omitempty"`
	Fundamental *FundamentalSnapshot `json:"fundamental,omitempty"`
	Growth      GrowthStats          `json:"growth"`
	Scores      SubScores            `json:"scores"`
	Breakdown   ScoreBreakdown       `json:"breakdown"`
	TotalScore  float64              `json:"total_score"`
	Rank        RankBucket           `json:"rank"`
	Position    int                  `json:"position"` // 1-based after sorting
}

// EvaluationStats summarises one evaluate() call
type EvaluationStats struct {
	Candidates int            `json:"candidates"`
	Passed     int            `json:"passed"`
	Rejected   map[string]int `json:"rejected"` // reason -> count
	Failed     int            `json:"failed"`   // entities dropped by an evaluation error
	Duration   time.Duration  `json:"duration"`
}
