package scoring

import "github.com/wonny/aegis-screener/internal/numeric"

// Points per tier. Each half of a sub-score is worth at most HalfMax.
const (
	HalfMax     = 12.5
	SubScoreMax = 2 * HalfMax
	TotalMax    = 4 * SubScoreMax
)

var tierPoints = [...]float64{12.5, 10, 7.5, 5, 2.5}

// ladder is a step function over five breakpoints, best tier first.
// Anything that misses the last breakpoint (or is Absent) scores 0.
type ladder struct {
	bounds []numeric.Value

	// lowerIsBetter: tier i when v < bounds[i]; the value must also be > 0.
	// otherwise: tier i when v >= bounds[i] (v > bounds[i] for the last tier when strictLast).
	lowerIsBetter bool
	strictLast    bool
}

func newLadder(lowerIsBetter, strictLast bool, bounds ...string) ladder {
	l := ladder{lowerIsBetter: lowerIsBetter, strictLast: strictLast}
	for _, b := range bounds {
		l.bounds = append(l.bounds, numeric.MustParse(b))
	}
	return l
}

func (l ladder) points(v numeric.Value) float64 {
	if !v.Present() {
		return 0
	}
	if l.lowerIsBetter && !v.IsPositive() {
		return 0
	}

	for i, bound := range l.bounds {
		var hit bool
		switch {
		case l.lowerIsBetter:
			hit = v.LessThan(bound)
		case l.strictLast && i == len(l.bounds)-1:
			hit = v.GreaterThan(bound)
		default:
			hit = v.GreaterThanOrEqual(bound)
		}
		if hit {
			return tierPoints[i]
		}
	}
	return 0
}

// ⭐ SSOT: tier breakpoints. Closed design constants, not tuned.
var (
	perLadder           = newLadder(true, false, "8", "12", "15", "20", "25")
	pbrLadder           = newLadder(true, false, "0.7", "1.0", "1.5", "2.0", "3.0")
	roeLadder           = newLadder(false, true, "20", "15", "10", "5", "0")
	roaLadder           = newLadder(false, true, "10", "7", "5", "2", "0")
	revenueCAGRLadder   = newLadder(false, true, "15", "10", "5", "2", "0")
	netIncomeCAGRLadder = newLadder(false, true, "20", "15", "10", "5", "0")
	equityRatioLadder   = newLadder(false, false, "60", "50", "40", "30", "20")
	currentRatioLadder  = newLadder(false, false, "2.0", "1.5", "1.2", "1.0", "0.8")
)
