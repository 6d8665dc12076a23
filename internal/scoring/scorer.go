// Package scoring computes the four bounded sub-scores (valuation, profitability,
// growth, safety), their total and the letter rank.
package scoring

import (
	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/numeric"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Inputs are the eight figures the score is built from. Absent inputs contribute 0.
type Inputs struct {
	PER           numeric.Value
	PBR           numeric.Value
	ROE           numeric.Value
	ROA           numeric.Value
	RevenueCAGR   numeric.Value // 3-period, percent
	NetIncomeCAGR numeric.Value // 3-period over profitable years, percent
	EquityRatio   numeric.Value
	CurrentRatio  numeric.Value
}

// Result is the full score of one entity
type Result struct {
	Scores    contracts.SubScores
	Breakdown contracts.ScoreBreakdown
	Total     float64
	Rank      contracts.RankBucket
}

// Scorer computes composite scores
// ⭐ SSOT: composite scoring happens here only
type Scorer struct {
	logger *logger.Logger
}

// NewScorer creates a new scorer
func NewScorer(log *logger.Logger) *Scorer {
	return &Scorer{logger: log}
}

// InputsFrom resolves the score inputs from a snapshot. CAGRs come from the statement series.
func InputsFrom(snap *contracts.EntitySnapshot) Inputs {
	var in Inputs
	if snap.Market != nil {
		in.PER = snap.Market.PER
		in.PBR = snap.Market.PBR
	}
	if snap.Fundamental != nil {
		in.ROE = snap.Fundamental.ROE
		in.ROA = snap.Fundamental.ROA
		in.EquityRatio = snap.Fundamental.EquityRatio
		in.CurrentRatio = snap.Fundamental.CurrentRatio
	}
	in.RevenueCAGR = growth.RevenueCAGR(snap.Statements)
	in.NetIncomeCAGR = growth.NetIncomeCAGR(snap.Statements)
	return in
}

// Score scores one entity snapshot
func (s *Scorer) Score(snap *contracts.EntitySnapshot) Result {
	res := s.ScoreInputs(InputsFrom(snap))

	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"entity":        snap.Entity.ID,
			"valuation":     res.Scores.Valuation,
			"profitability": res.Scores.Profitability,
			"growth":        res.Scores.Growth,
			"safety":        res.Scores.Safety,
			"total":         res.Total,
			"rank":          res.Rank,
		}).Debug("Scored entity")
	}

	return res
}

// ScoreInputs applies the tier ladders. It is a pure function of in.
func (s *Scorer) ScoreInputs(in Inputs) Result {
	b := contracts.ScoreBreakdown{
		PER:           perLadder.points(in.PER),
		PBR:           pbrLadder.points(in.PBR),
		ROE:           roeLadder.points(in.ROE),
		ROA:           roaLadder.points(in.ROA),
		RevenueCAGR:   revenueCAGRLadder.points(in.RevenueCAGR),
		NetIncomeCAGR: netIncomeCAGRLadder.points(in.NetIncomeCAGR),
		EquityRatio:   equityRatioLadder.points(in.EquityRatio),
		CurrentRatio:  currentRatioLadder.points(in.CurrentRatio),
	}

	scores := contracts.SubScores{
		Valuation:     b.PER + b.PBR,
		Profitability: b.ROE + b.ROA,
		Growth:        b.RevenueCAGR + b.NetIncomeCAGR,
		Safety:        b.EquityRatio + b.CurrentRatio,
	}
	total := scores.Total()

	return Result{
		Scores:    scores,
		Breakdown: b,
		Total:     total,
		Rank:      RankBucket(total),
	}
}

// RankBucket maps a total score to its letter. Total over every float64.
func RankBucket(total float64) contracts.RankBucket {
	switch {
	case total >= 80:
		return contracts.RankS
	case total >= 65:
		return contracts.RankA
	case total >= 50:
		return contracts.RankB
	case total >= 35:
		return contracts.RankC
	default:
		return contracts.RankD
	}
}
