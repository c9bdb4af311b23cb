package strategy

import "math"

// Verdict is the outcome of an intraday liquidation check.
type Verdict struct {
	Leg Leg
}

func (v Verdict) Liquidated() bool {
	return v.Leg != LegNone
}

func (v Verdict) Long() bool {
	return v.Leg == LegLong || v.Leg == LegBoth
}

func (v Verdict) Short() bool {
	return v.Leg == LegShort || v.Leg == LegBoth
}

// CheckLiquidation tests the long leg at the day's low and the short leg at
// the day's high against the maintenance requirement mm × notional.
func CheckLiquidation(pos *Position, mm, high, low float64) Verdict {
	if pos == nil {
		return Verdict{}
	}
	longHit := pos.LongEquity(low) <= mm*pos.LongNotional(low)
	shortHit := pos.ShortEquity(high) <= mm*pos.ShortNotional(high)
	switch {
	case longHit && shortHit:
		return Verdict{Leg: LegBoth}
	case longHit:
		return Verdict{Leg: LegLong}
	case shortHit:
		return Verdict{Leg: LegShort}
	}
	return Verdict{}
}

// LiquidationPrices solves the CheckLiquidation inequalities for price: the
// long leg is liquidated at or below long, the short leg at or above short.
func LiquidationPrices(pos *Position, mm float64) (long, short float64) {
	if pos == nil {
		return 0, math.Inf(1)
	}
	switch {
	case pos.AssetQty > 0:
		long = pos.Debt / (pos.AssetQty * (1 - mm))
	case pos.Debt > 0:
		long = math.Inf(1)
	}
	if pos.Contracts > 0 {
		short = (pos.Margin + pos.Contracts*pos.EntryPrice) / (pos.Contracts * (1 + mm))
	} else {
		short = math.Inf(1)
	}
	return long, short
}

// Proximity is the distance from price to each liquidation price, in
// percent of price. Smaller is closer.
type Proximity struct {
	LongBufferPct  float64
	ShortBufferPct float64
}

func (p Proximity) Min() float64 {
	return math.Min(p.LongBufferPct, p.ShortBufferPct)
}

// Within reports whether either leg is at or inside bufferPct.
func (p Proximity) Within(bufferPct float64) bool {
	return p.LongBufferPct <= bufferPct || p.ShortBufferPct <= bufferPct
}

func MeasureProximity(pos *Position, mm, price float64) Proximity {
	if pos == nil || price <= 0 {
		return Proximity{LongBufferPct: math.Inf(1), ShortBufferPct: math.Inf(1)}
	}
	long, short := LiquidationPrices(pos, mm)
	return Proximity{
		LongBufferPct:  (price - long) / price * 100,
		ShortBufferPct: (short - price) / price * 100,
	}
}

// MaxAdverseMove is the fractional price move from entry that liquidates a
// freshly opened leg at leverage L: the short leg on a rally, the long leg
// on a drop.
func MaxAdverseMove(leverage, mm float64) (worst, short, long float64) {
	short = (1 - mm) / (leverage - 1 + mm)
	long = (1 - mm*leverage) / leverage
	return math.Min(short, long), short, long
}
