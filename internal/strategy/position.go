package strategy

import (
	"fmt"
	"math"
)

// Position is a deployed delta-neutral pair. A nil *Position means no
// position is open.
type Position struct {
	AssetQty   float64
	Debt       float64
	Contracts  float64
	EntryPrice float64
	Margin     float64
}

// OpenResult reports what opening a position cost.
type OpenResult struct {
	Notional float64
	Fees     float64
}

// OpenPosition splits capital evenly between the legs, sizes both legs at
// capital/2 × leverage and charges the open fees half to each leg. It fails
// with ErrCapitalBelowFees when the fees would leave no equity.
func OpenPosition(capital, leverage, price float64, venue Venue, fees FeeSchedule) (*Position, OpenResult, error) {
	if capital <= 0 {
		return nil, OpenResult{}, fmt.Errorf("capital %.2f must be > 0: %w", capital, ErrInvalidConfig)
	}
	if leverage <= 1 {
		return nil, OpenResult{}, fmt.Errorf("leverage %.2f must be > 1: %w", leverage, ErrInvalidConfig)
	}
	if price <= 0 {
		return nil, OpenResult{}, fmt.Errorf("open price %.4f must be > 0: %w", price, ErrInvalidConfig)
	}
	half := capital / 2
	notional := half * leverage
	cost := fees.OpenCost(notional, venue)
	if capital-cost <= 0 {
		return nil, OpenResult{}, fmt.Errorf("capital %.4f, open cost %.4f: %w", capital, cost, ErrCapitalBelowFees)
	}
	qty := notional / price
	pos := &Position{
		AssetQty:   qty,
		Debt:       half*(leverage-1) + cost/2,
		Contracts:  qty,
		EntryPrice: price,
		Margin:     half - cost/2,
	}
	return pos, OpenResult{Notional: notional, Fees: cost}, nil
}

// OpenCostFor is the fee OpenPosition would charge for capital at leverage.
func OpenCostFor(capital, leverage float64, venue Venue, fees FeeSchedule) float64 {
	return fees.OpenCost(capital/2*leverage, venue)
}

func (p *Position) LongEquity(price float64) float64 {
	return p.AssetQty*price - p.Debt
}

func (p *Position) ShortEquity(price float64) float64 {
	return p.Margin + p.Contracts*(p.EntryPrice-price)
}

func (p *Position) Equity(price float64) float64 {
	return p.LongEquity(price) + p.ShortEquity(price)
}

func (p *Position) LongNotional(price float64) float64 {
	return p.AssetQty * price
}

func (p *Position) ShortNotional(price float64) float64 {
	return p.Contracts * price
}

// EffectiveLeverage returns notional over equity per leg; a leg with no
// positive equity reports +Inf.
func (p *Position) EffectiveLeverage(price float64) (long, short float64) {
	return leverageOf(p.LongNotional(price), p.LongEquity(price)),
		leverageOf(p.ShortNotional(price), p.ShortEquity(price))
}

func leverageOf(notional, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return notional / equity
}
