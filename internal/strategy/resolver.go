package strategy

import "math"

const DefaultMinTransferUSD = 5.0

// RebalanceOutcome describes a cross-leg capital transfer.
type RebalanceOutcome struct {
	Transfer          float64
	TransferCost      float64
	EffectiveLeverage float64
	LongEquity        float64
	ShortEquity       float64
}

// Rebalance moves capital between legs when either leg's effective leverage
// exceeds trigger, restoring both legs to half of total equity. Only Debt
// and Margin change; quantities and entry price are untouched. It returns
// false when no transfer was made.
func Rebalance(pos *Position, close float64, venue Venue, trigger, minTransfer float64) (RebalanceOutcome, bool) {
	if pos == nil {
		return RebalanceOutcome{}, false
	}
	longLev, shortLev := pos.EffectiveLeverage(close)
	effLev := math.Max(longLev, shortLev)
	if effLev <= trigger {
		return RebalanceOutcome{}, false
	}
	longEq := pos.LongEquity(close)
	shortEq := pos.ShortEquity(close)
	target := (longEq + shortEq) / 2
	transfer := math.Abs(longEq - target)
	if transfer <= minTransfer {
		return RebalanceOutcome{}, false
	}
	if longEq < target {
		add := target - longEq
		pos.Debt -= add
		pos.Margin -= add
	} else {
		add := target - shortEq
		pos.Debt += add
		pos.Margin += add
	}
	cost := venue.TransferCostUSD
	pos.Debt += cost / 2
	pos.Margin -= cost / 2

	return RebalanceOutcome{
		Transfer:          transfer,
		TransferCost:      cost,
		EffectiveLeverage: effLev,
		LongEquity:        pos.LongEquity(close),
		ShortEquity:       pos.ShortEquity(close),
	}, true
}

// LiquidationOutcome reports a liquidation and the reopened position, if any.
type LiquidationOutcome struct {
	Leg          Leg
	Penalty      float64
	LongEquity   float64
	ShortEquity  float64
	PooledEquity float64
	ReopenFees   float64
	Notional     float64
	Position     *Position
}

// Liquidate penalizes the breached legs at the close price, pools what is
// left and reopens at target leverage. Reopen fees are sized on the notional
// the pool would support before fees, plus the taker fee for unwinding the
// old short. When the pool cannot cover those fees nothing is reopened,
// Position is nil and PooledEquity is the cash left over.
func Liquidate(pos *Position, verdict Verdict, close float64, venue Venue, fees FeeSchedule, leverage float64) LiquidationOutcome {
	out := LiquidationOutcome{Leg: verdict.Leg}
	if pos == nil || !verdict.Liquidated() {
		return out
	}
	longEq := pos.LongEquity(close)
	shortEq := pos.ShortEquity(close)
	if verdict.Long() {
		var penalty float64
		longEq, penalty = applyPenalty(venue.Penalty, longEq, pos.LongNotional(close))
		out.Penalty += penalty
	}
	if verdict.Short() {
		var penalty float64
		shortEq, penalty = applyPenalty(venue.Penalty, shortEq, pos.ShortNotional(close))
		out.Penalty += penalty
	}
	out.LongEquity = longEq
	out.ShortEquity = shortEq

	pooled := math.Max(longEq, 0) + math.Max(shortEq, 0)
	reopenNotional := pooled / 2 * leverage
	reopenFees := fees.OpenCost(reopenNotional, venue) + fees.PerpCloseCost(pos.ShortNotional(close), venue)
	if pooled-reopenFees <= 0 {
		out.PooledEquity = pooled
		return out
	}
	out.ReopenFees = reopenFees
	pooled -= reopenFees
	out.PooledEquity = pooled

	half := pooled / 2
	qty := half * leverage / close
	out.Notional = half * leverage
	out.Position = &Position{
		AssetQty:   qty,
		Debt:       half * (leverage - 1),
		Contracts:  qty,
		EntryPrice: close,
		Margin:     half,
	}
	return out
}

// applyPenalty returns the leg's equity after liquidation and the amount
// forfeited. Remaining equity is never negative.
func applyPenalty(model PenaltyModel, equity, notional float64) (float64, float64) {
	switch m := model.(type) {
	case EquityFraction:
		remaining := math.Max(equity*(1-m.Fraction), 0)
		return remaining, math.Max(equity-remaining, 0)
	case NotionalFraction:
		penalty := math.Min(notional*m.Fraction, math.Max(equity, 0))
		return math.Max(equity-penalty, 0), penalty
	default:
		return math.Max(equity, 0), 0
	}
}
