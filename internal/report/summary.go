package report

import (
	"math"

	"carry-backtest/internal/strategy"
)

// Totals are running sums kept by the simulator. Fees include every open,
// close, reopen and transfer charge; TransferCosts is the transfer share.
type Totals struct {
	Fees          float64
	TransferCosts float64
	Carry         float64
	Funding       float64
	Penalties     float64
}

func (t Totals) Gross() float64 {
	return t.Carry + t.Funding
}

type Input struct {
	InitialCapital float64
	FinalCapital   float64
	Totals         Totals
	Daily          []strategy.DailyEquity
	Events         []strategy.Event

	// Signals and RoundTripCost feed the fixed-hold analysis. Windows
	// defaults to DefaultHoldWindows.
	Signals       []strategy.DailySignal
	RoundTripCost float64
	HoldWindows   []int
}

type Summary struct {
	InitialCapital      float64
	FinalCapital        float64
	TotalReturn         float64
	ReturnPct           float64
	AnnualizedReturnPct float64
	MaxDrawdownPct      float64

	Days         int
	DeployedDays int
	IdleDays     int
	DeployedPct  float64

	Fees          float64
	TransferCosts float64
	Carry         float64
	Funding       float64
	Gross         float64
	Penalties     float64
	MTMDrag       float64
	FeesPctGross  float64

	Opens        int
	Closes       int
	Liquidations int
	Reopens      int
	Rebalances   int
	CloseReasons map[strategy.CloseReason]int
	LiquidatedBy map[strategy.Leg]int

	Holds      []HoldWindow
	SmartEntry HoldWindow
}

// DrawdownTracker follows the running peak of an equity series. The peak
// starts at the initial capital.
type DrawdownTracker struct {
	peak float64
	max  float64
}

func NewDrawdownTracker(initial float64) *DrawdownTracker {
	return &DrawdownTracker{peak: initial}
}

// Observe records equity and returns the current drawdown in percent.
func (d *DrawdownTracker) Observe(equity float64) float64 {
	if equity > d.peak {
		d.peak = equity
	}
	if d.peak <= 0 {
		return d.max
	}
	dd := (d.peak - equity) / d.peak * 100
	if dd > d.max {
		d.max = dd
	}
	return dd
}

func (d *DrawdownTracker) Peak() float64 {
	return d.peak
}

func (d *DrawdownTracker) Max() float64 {
	return d.max
}

// Summarize reduces a finished run to its headline figures.
func Summarize(in Input) Summary {
	s := Summary{
		InitialCapital: in.InitialCapital,
		FinalCapital:   in.FinalCapital,
		TotalReturn:    in.FinalCapital - in.InitialCapital,
		Days:           len(in.Daily),
		Fees:           in.Totals.Fees,
		TransferCosts:  in.Totals.TransferCosts,
		Carry:          in.Totals.Carry,
		Funding:        in.Totals.Funding,
		Gross:          in.Totals.Gross(),
		Penalties:      in.Totals.Penalties,
		CloseReasons:   make(map[strategy.CloseReason]int),
		LiquidatedBy:   make(map[strategy.Leg]int),
	}
	if in.InitialCapital > 0 {
		s.ReturnPct = s.TotalReturn / in.InitialCapital * 100
		if s.Days > 0 {
			s.AnnualizedReturnPct = s.TotalReturn / in.InitialCapital * 365 / float64(s.Days) * 100
		}
	}
	s.MTMDrag = s.TotalReturn - (s.Gross - s.Fees - s.Penalties)
	s.FeesPctGross = s.Fees / math.Max(s.Gross, 0.01) * 100

	dd := NewDrawdownTracker(in.InitialCapital)
	for _, day := range in.Daily {
		dd.Observe(day.Equity)
		if day.State == strategy.StateDeployed {
			s.DeployedDays++
		} else {
			s.IdleDays++
		}
	}
	s.MaxDrawdownPct = dd.Max()
	if s.Days > 0 {
		s.DeployedPct = float64(s.DeployedDays) / float64(s.Days) * 100
	}

	for _, ev := range in.Events {
		switch ev.Type {
		case strategy.EventOpen:
			s.Opens++
		case strategy.EventClose:
			s.Closes++
			s.CloseReasons[ev.Reason]++
		case strategy.EventLiquidation:
			s.Liquidations++
			s.LiquidatedBy[ev.Leg]++
		case strategy.EventReopen:
			s.Reopens++
		case strategy.EventRebalance:
			s.Rebalances++
		}
	}

	if len(in.Signals) > 0 {
		windows := in.HoldWindows
		if len(windows) == 0 {
			windows = DefaultHoldWindows
		}
		pnl := DailyCarryPnL(in.Signals, in.InitialCapital)
		s.Holds = HoldStats(pnl, in.RoundTripCost, windows)
		s.SmartEntry = SmartEntryStats(in.Signals, pnl, in.RoundTripCost, SmartEntryDays)
	}
	return s
}
