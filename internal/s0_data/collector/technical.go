package collector

import (
	"math"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/external/provider"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// Indicator windows
const (
	rsiPeriod        = 14
	volatilityPeriod = 20
	momentumPeriod   = 20
	volumePeriod     = 20
	tradingDays      = 252
)

// ComputeTechnicals derives the technical snapshot from daily bars (oldest first).
// Each indicator is Absent when the history is too short for its window.
// ⭐ SSOT: technical indicator math
func ComputeTechnicals(entityID string, bars []provider.PriceBar) *contracts.TechnicalSnapshot {
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if c, ok := b.Close.Float64(); ok {
			closes = append(closes, c)
		}
	}

	return &contracts.TechnicalSnapshot{
		EntityID:    entityID,
		AsOf:        bars[len(bars)-1].Date,
		MA5:         movingAverage(closes, 5),
		MA25:        movingAverage(closes, 25),
		MA75:        movingAverage(closes, 75),
		RSI14:       rsi(closes, rsiPeriod),
		Volatility:  volatility(closes, volatilityPeriod),
		Momentum20:  momentum(closes, momentumPeriod),
		AvgVolume20: averageVolume(bars, volumePeriod),
	}
}

func indicator(f float64) numeric.Value {
	return numeric.Normalize(f).Round(4)
}

// movingAverage is the simple mean of the last period closes
func movingAverage(closes []float64, period int) numeric.Value {
	if len(closes) < period {
		return numeric.Absent()
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return indicator(sum / float64(period))
}

// rsi uses simple averages of gains and losses over the last period changes.
// A flat window reads as neutral (50).
func rsi(closes []float64, period int) numeric.Value {
	if len(closes) < period+1 {
		return numeric.Absent()
	}

	var gains, losses float64
	window := closes[len(closes)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	switch {
	case gains == 0 && losses == 0:
		return indicator(50)
	case losses == 0:
		return indicator(100)
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return indicator(100 - 100/(1+rs))
}

// volatility is the sample standard deviation of the last period daily returns,
// annualised and expressed in percent
func volatility(closes []float64, period int) numeric.Value {
	if len(closes) < period+1 {
		return numeric.Absent()
	}

	window := closes[len(closes)-period-1:]
	returns := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			return numeric.Absent()
		}
		returns = append(returns, window[i]/window[i-1]-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return indicator(math.Sqrt(variance) * math.Sqrt(tradingDays) * 100)
}

// momentum is the percent change over the last period sessions
func momentum(closes []float64, period int) numeric.Value {
	if len(closes) < period+1 {
		return numeric.Absent()
	}
	past := closes[len(closes)-period-1]
	if past == 0 {
		return numeric.Absent()
	}
	return indicator((closes[len(closes)-1] - past) / past * 100)
}

// averageVolume needs period bars with a reported volume among the newest period bars
func averageVolume(bars []provider.PriceBar, period int) numeric.Value {
	if len(bars) < period {
		return numeric.Absent()
	}
	sum := numeric.Int(0)
	for _, b := range bars[len(bars)-period:] {
		if !b.Volume.Present() {
			return numeric.Absent()
		}
		sum = sum.Add(b.Volume)
	}
	return sum.Div(numeric.Int(int64(period))).Round(0)
}
