// Package growth derives growth rates and improvement streaks from statement series.
// All functions are pure and degrade to Absent or zero on incomplete history.
package growth

import (
	"math"

	"github.com/wonny/aegis-screener/internal/numeric"
)

var hundred = numeric.Int(100)

// YoYGrowth returns (current - previous) / previous * 100.
// Absent when either side is Absent or previous <= 0.
func YoYGrowth(current, previous numeric.Value) numeric.Value {
	if !current.Present() || !previous.IsPositive() {
		return numeric.Absent()
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(4)
}

// CAGR returns ((newest / oldest) ^ (1/periods) - 1) * 100 using the first and last
// present values of a newest-first series. Absent with fewer than two present values,
// a non-positive oldest value, periods <= 0, or a negative ratio.
func CAGR(valuesNewestFirst []numeric.Value, periods int) numeric.Value {
	if periods <= 0 {
		return numeric.Absent()
	}

	first, last := -1, -1
	for i, v := range valuesNewestFirst {
		if !v.Present() {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 || first == last {
		return numeric.Absent()
	}

	newest := valuesNewestFirst[first]
	oldest := valuesNewestFirst[last]
	if !oldest.IsPositive() {
		return numeric.Absent()
	}

	ratio, ok := newest.Div(oldest).Float64()
	if !ok || ratio < 0 {
		return numeric.Absent()
	}

	g := (math.Pow(ratio, 1/float64(periods)) - 1) * 100
	return numeric.Normalize(g).Round(4)
}

// ConsecutiveImprovementYears counts, from the newest value backwards, how many times a
// value strictly exceeds the one immediately older. The first gap, tie, decline or
// Absent operand ends the streak.
func ConsecutiveImprovementYears(seriesNewestFirst []numeric.Value) int {
	streak := 0
	for i := 0; i+1 < len(seriesNewestFirst); i++ {
		if !seriesNewestFirst[i].GreaterThan(seriesNewestFirst[i+1]) {
			break
		}
		streak++
	}
	return streak
}

// PositiveOnly keeps present values > 0, preserving order
func PositiveOnly(values []numeric.Value) []numeric.Value {
	out := make([]numeric.Value, 0, len(values))
	for _, v := range values {
		if v.IsPositive() {
			out = append(out, v)
		}
	}
	return out
}

// Window returns at most n leading values
func Window(values []numeric.Value, n int) []numeric.Value {
	if n < 0 {
		n = 0
	}
	if len(values) <= n {
		return values
	}
	return values[:n]
}

// ProfitStability is 1 / (1 + coefficient of variation) over the present values.
// Absent with fewer than three points or a non-positive mean.
func ProfitStability(values []numeric.Value) numeric.Value {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.Float64(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) < 3 {
		return numeric.Absent()
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean <= 0 {
		return numeric.Absent()
	}

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	stdev := math.Sqrt(sq / float64(len(xs)-1))

	return numeric.Normalize(1 / (1 + stdev/mean)).Round(4)
}
