package strategy

const (
	slippageFlatBps       = 0.1
	slippageFlatNotional  = 20_000.0
	slippageStepBps       = 0.09
	slippageStepNotional  = 10_000.0
	defaultRebalancesYear = 6
)

// EstimateSlippageBps is the one-way slippage for a perp order of the given
// notional: flat up to $20k, then rising 0.09 bps per $10k above.
func EstimateSlippageBps(notional, multiplier float64) float64 {
	base := slippageFlatBps
	if notional > slippageFlatNotional {
		base += (notional - slippageFlatNotional) / slippageStepNotional * slippageStepBps
	}
	return base * multiplier
}

// RoundTripCostUSD is the cost of opening and later closing a position sized
// from capital at leverage, including one gas charge.
func RoundTripCostUSD(capital, leverage float64, venue Venue, fees FeeSchedule) float64 {
	notional := capital / 2 * leverage
	return fees.OpenCost(notional, venue) + fees.PerpCloseCost(notional, venue)
}

type BreakevenInput struct {
	Capital           float64
	Leverage          float64
	HoldingDays       float64
	RebalancesPerYear float64
}

type Breakeven struct {
	RoundTripFeePct   float64
	AnnualFeeDragPct  float64
	TransferDragPct   float64
	BreakevenSpread   float64
	MaxAdverseMove    float64
	ShortAdverseMove  float64
	LongAdverseMove   float64
	GrossAPYPerSpread float64
}

// AnalyzeBreakeven computes the rate spread (lend + funding − borrow, as an
// annual fraction) needed for the position to cover its costs.
func AnalyzeBreakeven(in BreakevenInput, venue Venue, fees FeeSchedule) Breakeven {
	holding := in.HoldingDays
	if holding <= 0 {
		holding = 365
	}
	rebalances := in.RebalancesPerYear
	if rebalances < 0 {
		rebalances = defaultRebalancesYear
	}
	var out Breakeven
	if in.Capital > 0 {
		out.RoundTripFeePct = RoundTripCostUSD(in.Capital, in.Leverage, venue, fees) / in.Capital * 100
		out.TransferDragPct = venue.TransferCostUSD * rebalances / in.Capital * 100
	}
	out.AnnualFeeDragPct = out.RoundTripFeePct * 365 / holding
	if in.Leverage > 0 {
		out.BreakevenSpread = 2 / in.Leverage * (out.AnnualFeeDragPct + out.TransferDragPct) / 100
	}
	out.GrossAPYPerSpread = in.Leverage / 2
	out.MaxAdverseMove, out.ShortAdverseMove, out.LongAdverseMove = MaxAdverseMove(in.Leverage, venue.MaintenanceMargin)
	return out
}

// BreakevenFunding is the annual funding fraction needed on top of the given
// lend and borrow fractions to reach the breakeven spread.
func (b Breakeven) BreakevenFunding(lend, borrow float64) float64 {
	return b.BreakevenSpread - lend + borrow
}
