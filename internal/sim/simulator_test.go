package sim

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"carry-backtest/internal/market"
	"carry-backtest/internal/strategy"
)

type testDay struct {
	rates  strategy.DayRates
	candle strategy.Candle
}

var steadyRates = strategy.DayRates{LendAPY: 10, BorrowAPY: 5, Funding: 0.0001}

func flat(price float64) strategy.Candle {
	return strategy.Candle{Open: price, High: price, Low: price, Close: price}
}

func buildView(t *testing.T, days []testDay) *market.View {
	t.Helper()
	s := market.Series{
		Lend:    map[string]float64{},
		Borrow:  map[string]float64{},
		Candles: map[string]strategy.Candle{},
		Funding: map[string]map[string]float64{"hyperliquid": {}, "drift": {}},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range days {
		key := market.DateKey(start.AddDate(0, 0, i))
		s.Lend[key] = d.rates.LendAPY
		s.Borrow[key] = d.rates.BorrowAPY
		s.Candles[key] = d.candle
		s.Funding["hyperliquid"][key] = d.rates.Funding
		s.Funding["drift"][key] = d.rates.Funding
	}
	view, err := market.NewView(s)
	if err != nil {
		t.Fatalf("build view: %v", err)
	}
	return view
}

func newTestSimulator(t *testing.T, params Params) *Simulator {
	t.Helper()
	s, err := New(params, strategy.Hyperliquid())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return s
}

func eventTypes(events []strategy.Event) []strategy.EventType {
	out := make([]strategy.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func closeEnough(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestRunTwoDayFlatPrice(t *testing.T) {
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(100)},
	})
	res, err := newTestSimulator(t, DefaultParams()).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []strategy.EventType{strategy.EventOpen, strategy.EventClose}
	if got := eventTypes(res.Events); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	open := res.Events[0]
	if !closeEnough(open.Fees, 29.75, 1e-9) || open.Notional != 15_000 {
		t.Fatalf("unexpected open %+v", open)
	}
	wantCarry := 150*0.10/365*100 - 10_014.875*0.05/365
	if !closeEnough(res.Totals.Carry, wantCarry, 0.01) || !closeEnough(res.Totals.Carry, 2.7377, 0.001) {
		t.Fatalf("expected carry %f, got %f", wantCarry, res.Totals.Carry)
	}
	if !closeEnough(res.Totals.Funding, 1.5, 1e-9) {
		t.Fatalf("expected funding 1.5, got %f", res.Totals.Funding)
	}
	last := res.Events[1]
	if last.Reason != strategy.ReasonEndOfData || !closeEnough(last.Fees, 5.25, 1e-9) {
		t.Fatalf("unexpected final close %+v", last)
	}
	wantFinal := 10_000 - 29.75 + wantCarry + 1.5 - 5.25
	if !closeEnough(res.Summary.FinalCapital, wantFinal, 0.01) {
		t.Fatalf("expected final capital %f, got %f", wantFinal, res.Summary.FinalCapital)
	}
	if !closeEnough(res.Totals.Fees, 35, 1e-9) {
		t.Fatalf("expected fees 35, got %f", res.Totals.Fees)
	}
	if len(res.Daily) != 2 || res.Daily[0].State != strategy.StateDeployed {
		t.Fatalf("unexpected daily series %+v", res.Daily)
	}
	if !closeEnough(res.Daily[0].Equity, 10_000-29.75, 1e-9) {
		t.Fatalf("opening day must not accrue, got equity %f", res.Daily[0].Equity)
	}
	if res.Summary.Opens != 1 || res.Summary.Closes != 1 {
		t.Fatalf("unexpected counts %+v", res.Summary)
	}
}

func TestRunForcedLiquidationReopens(t *testing.T) {
	params := DefaultParams()
	params.Policy.Gated = false
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: strategy.Candle{Open: 100, High: 100, Low: 65, Close: 72}},
	})
	res, err := newTestSimulator(t, params).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []strategy.EventType{strategy.EventOpen, strategy.EventLiquidation, strategy.EventReopen, strategy.EventClose}
	if got := eventTypes(res.Events); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	liq, reopen := res.Events[1], res.Events[2]
	if liq.Leg != strategy.LegLong && liq.Leg != strategy.LegBoth {
		t.Fatalf("expected long leg liquidation, got %s", liq.Leg)
	}
	if !liq.Date.Equal(reopen.Date) || !liq.Date.Equal(res.Daily[1].Date) {
		t.Fatalf("expected liquidation and reopen on day two, got %s and %s", liq.Date, reopen.Date)
	}
	if reopen.Notional != reopen.PooledEquity/2*params.Leverage {
		t.Fatalf("expected reopen notional %f, got %f", reopen.PooledEquity/2*params.Leverage, reopen.Notional)
	}
	if liq.Penalty <= 0 || res.Totals.Penalties != liq.Penalty {
		t.Fatalf("expected penalty to be recorded, got %f / %f", liq.Penalty, res.Totals.Penalties)
	}
	if res.Summary.Liquidations != 1 || res.Summary.Reopens != 1 {
		t.Fatalf("unexpected counts %+v", res.Summary)
	}
}

func TestRunAPYExitAndIdleCarry(t *testing.T) {
	params := DefaultParams()
	params.LookbackDays = 1
	weak := strategy.DayRates{LendAPY: 0, BorrowAPY: 20}
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: weak, candle: flat(100)},
		{rates: weak, candle: flat(110)},
		{rates: weak, candle: flat(90)},
	})
	res, err := newTestSimulator(t, params).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []strategy.EventType{strategy.EventOpen, strategy.EventClose}
	if got := eventTypes(res.Events); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	if res.Events[1].Reason != strategy.ReasonAPY {
		t.Fatalf("expected apy exit, got %s", res.Events[1].Reason)
	}
	for i := 2; i < len(res.Daily); i++ {
		if res.Daily[i].State != strategy.StateIdle || res.Daily[i].Equity != res.Daily[i-1].Equity {
			t.Fatalf("idle equity changed on day %d: %+v", i, res.Daily)
		}
	}
	if res.Summary.FinalCapital != res.Events[1].CashAfter {
		t.Fatalf("expected final capital %f, got %f", res.Events[1].CashAfter, res.Summary.FinalCapital)
	}
}

func TestRunProximityExit(t *testing.T) {
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(116)},
	})
	res, err := newTestSimulator(t, DefaultParams()).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected open and close, got %v", eventTypes(res.Events))
	}
	ev := res.Events[1]
	if ev.Reason != strategy.ReasonLiqProximity {
		t.Fatalf("expected liq_proximity exit, got %s", ev.Reason)
	}
	if ev.ShortBufferPct > 10 || ev.ShortBufferPct < 9 {
		t.Fatalf("expected short buffer near 9.4%%, got %f", ev.ShortBufferPct)
	}
	if !closeEnough(ev.Fees, 150*116*3.5/10000+2, 1e-9) {
		t.Fatalf("expected taker fee plus gas, got %f", ev.Fees)
	}
}

func TestRunRebalancesStretchedLeg(t *testing.T) {
	params := DefaultParams()
	params.Policy.ProximityExit = false
	days := []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(120)},
	}
	res, err := newTestSimulator(t, params).Run(buildView(t, days))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []strategy.EventType{strategy.EventOpen, strategy.EventRebalance, strategy.EventClose}
	if got := eventTypes(res.Events); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	reb := res.Events[1]
	if reb.EffectiveLeverage <= params.RebalanceTrigger || reb.Transfer < 2_900 {
		t.Fatalf("unexpected rebalance %+v", reb)
	}
	if !closeEnough(reb.LongEquity, reb.ShortEquity, 1e-6) {
		t.Fatalf("expected equal legs after transfer, got %f / %f", reb.LongEquity, reb.ShortEquity)
	}
	if res.Totals.TransferCosts != 3 || res.Summary.Rebalances != 1 {
		t.Fatalf("unexpected transfer accounting %+v", res.Totals)
	}

	params.Rebalance = false
	res, err = newTestSimulator(t, params).Run(buildView(t, days))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Summary.Rebalances != 0 {
		t.Fatalf("expected no rebalances when disabled, got %d", res.Summary.Rebalances)
	}
}

func TestRunDeltaNeutral(t *testing.T) {
	params := DefaultParams()
	params.Policy = strategy.Policy{}
	params.Rebalance = false
	zero := strategy.DayRates{}
	view := buildView(t, []testDay{
		{rates: zero, candle: flat(100)},
		{rates: zero, candle: flat(110)},
	})
	res, err := newTestSimulator(t, params).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	move := math.Abs(res.Daily[1].Equity-res.Daily[0].Equity) / res.Daily[0].Equity
	if move >= 0.15*0.10 {
		t.Fatalf("hedged equity moved %f for a 10%% price move", move)
	}
}

func TestRunAlwaysIdleKeepsCapital(t *testing.T) {
	params := DefaultParams()
	params.Policy.APYThreshold = 1_000
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(50)},
		{rates: steadyRates, candle: flat(150)},
	})
	res, err := newTestSimulator(t, params).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Events) != 0 || res.Summary.FinalCapital != params.InitialCapital {
		t.Fatalf("expected untouched capital, got %+v", res.Summary)
	}
	for _, d := range res.Daily {
		if d.Equity != params.InitialCapital || d.State != strategy.StateIdle {
			t.Fatalf("unexpected idle day %+v", d)
		}
	}
	if res.Summary.MaxDrawdownPct != 0 || res.Summary.IdleDays != 3 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}

type gapView struct {
	*market.View
	extra time.Time
}

func (g gapView) Dates() []time.Time {
	return append(g.View.Dates(), g.extra)
}

func TestRunMissingDateFails(t *testing.T) {
	view := buildView(t, []testDay{{rates: steadyRates, candle: flat(100)}})
	gap := gapView{View: view, extra: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	_, err := newTestSimulator(t, DefaultParams()).Run(gap)
	if !errors.Is(err, market.ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
}

func TestRunUnknownVenueFunding(t *testing.T) {
	view := buildView(t, []testDay{{rates: steadyRates, candle: flat(100)}})
	venue := strategy.Hyperliquid()
	venue.Name = "binance"
	s, err := New(DefaultParams(), venue)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if _, err := s.Run(view); !errors.Is(err, market.ErrUnknownFundingSource) {
		t.Fatalf("expected ErrUnknownFundingSource, got %v", err)
	}
}

func TestRunDeterministic(t *testing.T) {
	params := DefaultParams()
	params.Policy.Gated = false
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: strategy.Candle{Open: 100, High: 104, Low: 95, Close: 98}},
		{rates: steadyRates, candle: strategy.Candle{Open: 98, High: 130, Low: 97, Close: 125}},
		{rates: steadyRates, candle: flat(101)},
	})
	s, err := New(params, strategy.Drift())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	first, err := s.Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := s.Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results across runs")
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	cases := []func(*Params){
		func(p *Params) { p.InitialCapital = 0 },
		func(p *Params) { p.Leverage = 1 },
		func(p *Params) { p.LookbackDays = 0 },
		func(p *Params) { p.RebalanceTrigger = 0.5 },
		func(p *Params) { p.Fees.GasUSD = -1 },
	}
	for i, mutate := range cases {
		params := DefaultParams()
		mutate(&params)
		if _, err := New(params, strategy.Hyperliquid()); !errors.Is(err, strategy.ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
	venue := strategy.Hyperliquid()
	venue.Penalty = nil
	if _, err := New(DefaultParams(), venue); !errors.Is(err, strategy.ErrUnknownPenaltyModel) {
		t.Fatalf("expected ErrUnknownPenaltyModel, got %v", err)
	}
}

func TestNewRejectsCapitalBelowOpenCost(t *testing.T) {
	params := DefaultParams()
	params.InitialCapital = 1
	if _, err := New(params, strategy.Hyperliquid()); !errors.Is(err, strategy.ErrCapitalBelowFees) {
		t.Fatalf("expected ErrCapitalBelowFees, got %v", err)
	}
}

func TestRunTinyCapitalNeverNegative(t *testing.T) {
	params := DefaultParams()
	params.InitialCapital = 2.5
	params.Policy.Gated = false
	params.Policy.ProximityExit = false
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(100)},
	})
	res, err := newTestSimulator(t, params).Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	open := res.Events[0]
	if open.Type != strategy.EventOpen || open.LongEquity <= 0 || open.ShortEquity <= 0 {
		t.Fatalf("expected a solvent open, got %+v", open)
	}
	for _, d := range res.Daily {
		if d.Equity < 0 {
			t.Fatalf("negative equity on %s: %f", market.DateKey(d.Date), d.Equity)
		}
	}
	if res.Summary.MaxDrawdownPct > 100 {
		t.Fatalf("drawdown above 100%%: %f", res.Summary.MaxDrawdownPct)
	}
}

func TestRunWipedOutStaysIdleBelowOpenCost(t *testing.T) {
	params := DefaultParams()
	params.InitialCapital = 100
	params.Policy.Gated = false
	venue := strategy.Hyperliquid()
	venue.Penalty = strategy.EquityFraction{Fraction: 0.98}
	s, err := New(params, venue)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	view := buildView(t, []testDay{
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: strategy.Candle{Open: 100, High: 140, Low: 60, Close: 100}},
		{rates: steadyRates, candle: flat(100)},
		{rates: steadyRates, candle: flat(100)},
	})
	res, err := s.Run(view)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []strategy.EventType{strategy.EventOpen, strategy.EventLiquidation, strategy.EventClose}
	if got := eventTypes(res.Events); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	wiped := res.Events[2]
	if wiped.Reason != strategy.ReasonWipedOut || wiped.CashAfter <= 0 {
		t.Fatalf("expected a wiped_out close with leftover cash, got %+v", wiped)
	}
	if cost := strategy.OpenCostFor(wiped.CashAfter, params.Leverage, venue, params.Fees); wiped.CashAfter > cost {
		t.Fatalf("leftover cash %f should not cover open cost %f", wiped.CashAfter, cost)
	}
	for _, d := range res.Daily[2:] {
		if d.State != strategy.StateIdle || d.Equity != wiped.CashAfter {
			t.Fatalf("expected idle leftover cash after wipe-out, got %+v", d)
		}
	}
	if res.Summary.FinalCapital != wiped.CashAfter || res.Summary.MaxDrawdownPct > 100 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}
