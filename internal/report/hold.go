package report

import (
	"sort"

	"carry-backtest/internal/strategy"
)

var DefaultHoldWindows = []int{7, 14, 30, 60, 90}

// SmartEntryDays is the hold length used for the funding-filtered entries.
const SmartEntryDays = 30

// HoldWindow summarizes every start date from which a position could be held
// for Days days. Returns are net of one round trip of fees, in dollars.
type HoldWindow struct {
	Days       int
	Samples    int
	Wins       int
	WinRatePct float64
	Avg        float64
	Median     float64
	Best       float64
	Worst      float64
}

// DailyCarryPnL converts the raw net APY of each day into the dollar carry a
// position sized from capital would have earned that day.
func DailyCarryPnL(signals []strategy.DailySignal, capital float64) []float64 {
	out := make([]float64, len(signals))
	for i, sig := range signals {
		out[i] = capital * sig.Raw / 100 / 365
	}
	return out
}

// HoldStats evaluates a fixed hold of each window length from every start
// index that leaves enough days. A hold wins when its cumulative carry beats
// roundTrip.
func HoldStats(pnl []float64, roundTrip float64, windows []int) []HoldWindow {
	prefix := prefixSums(pnl)
	out := make([]HoldWindow, 0, len(windows))
	for _, days := range windows {
		if days <= 0 {
			continue
		}
		var returns []float64
		for start := 0; start+days <= len(pnl); start++ {
			returns = append(returns, prefix[start+days]-prefix[start]-roundTrip)
		}
		out = append(out, reduceHold(days, returns))
	}
	return out
}

// SmartEntryStats is HoldStats for a single window, restricted to start days
// that follow a day of positive funding.
func SmartEntryStats(signals []strategy.DailySignal, pnl []float64, roundTrip float64, days int) HoldWindow {
	if days <= 0 || len(pnl) != len(signals) {
		return HoldWindow{Days: days}
	}
	prefix := prefixSums(pnl)
	var returns []float64
	for start := 1; start+days <= len(pnl); start++ {
		if signals[start-1].Funding <= 0 {
			continue
		}
		returns = append(returns, prefix[start+days]-prefix[start]-roundTrip)
	}
	return reduceHold(days, returns)
}

func prefixSums(values []float64) []float64 {
	prefix := make([]float64, len(values)+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}
	return prefix
}

func reduceHold(days int, returns []float64) HoldWindow {
	h := HoldWindow{Days: days, Samples: len(returns)}
	if len(returns) == 0 {
		return h
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	var sum float64
	for _, r := range returns {
		sum += r
		if r > 0 {
			h.Wins++
		}
	}
	h.WinRatePct = float64(h.Wins) / float64(h.Samples) * 100
	h.Avg = sum / float64(h.Samples)
	h.Median = sorted[len(sorted)/2]
	h.Worst = sorted[0]
	h.Best = sorted[len(sorted)-1]
	return h
}
