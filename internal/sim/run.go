package sim

import (
	"errors"
	"fmt"
	"math"

	"carry-backtest/internal/market"
	"carry-backtest/internal/report"
	"carry-backtest/internal/strategy"

	"go.uber.org/zap"
)

// run is the mutable state of a single simulation. It is owned by one
// goroutine for its whole life.
type run struct {
	sim      *Simulator
	sm       *strategy.StateMachine
	pos      *strategy.Position
	cash     float64
	smoother *strategy.Smoother
	totals   report.Totals
	events   []strategy.Event
	daily    []strategy.DailyEquity
	signals  []strategy.DailySignal
}

func (r *run) step(day market.Day) error {
	p := r.sim.params
	raw := strategy.NetAPY(day.Rates, p.Leverage)
	smoothed := r.smoother.Push(raw)

	if r.sm.Deployed() {
		r.deployedDay(day, smoothed)
	} else if err := r.idleDay(day, smoothed); err != nil {
		return err
	}

	r.signals = append(r.signals, strategy.DailySignal{
		Date:     day.Date,
		Raw:      raw,
		Smoothed: smoothed,
		Funding:  day.Rates.Funding,
		Deployed: r.sm.Deployed(),
	})
	r.daily = append(r.daily, strategy.DailyEquity{
		Date:   day.Date,
		State:  r.sm.State,
		Equity: r.equity(day.Candle.Close),
	})
	return nil
}

func (r *run) equity(price float64) float64 {
	if r.pos == nil {
		return r.cash
	}
	return r.pos.Equity(price)
}

func (r *run) idleDay(day market.Day, smoothed float64) error {
	p := r.sim.params
	if p.Policy.DecideEntry(smoothed, r.cash).Action != strategy.ActionOpen {
		return nil
	}
	price := day.Candle.Close
	pos, opened, err := strategy.OpenPosition(r.cash, p.Leverage, price, r.sim.venue, p.Fees)
	if errors.Is(err, strategy.ErrCapitalBelowFees) {
		r.sim.log.Debug("cash below open cost, staying idle",
			zap.String("date", market.DateKey(day.Date)),
			zap.Float64("cash", r.cash),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open on %s: %w", market.DateKey(day.Date), err)
	}
	r.pos = pos
	r.cash = 0
	r.totals.Fees += opened.Fees
	r.sm.Apply(strategy.TransitionOpen)
	r.emit(strategy.Event{
		Date:        day.Date,
		Type:        strategy.EventOpen,
		Price:       price,
		Notional:    opened.Notional,
		Fees:        opened.Fees,
		LongEquity:  pos.LongEquity(price),
		ShortEquity: pos.ShortEquity(price),
		NetAPY:      smoothed,
	})
	r.sim.metrics.Opens.Inc()
	r.sim.log.Info("position opened",
		zap.String("date", market.DateKey(day.Date)),
		zap.Float64("price", price),
		zap.Float64("notional", opened.Notional),
		zap.Float64("fees", opened.Fees),
		zap.Float64("net_apy", smoothed),
	)
	return nil
}

func (r *run) deployedDay(day market.Day, smoothed float64) {
	p := r.sim.params
	venue := r.sim.venue
	price := day.Candle.Close

	acc := strategy.Accrue(r.pos, day.Rates, price)
	r.totals.Carry += acc.Carry
	r.totals.Funding += acc.Funding

	verdict := strategy.CheckLiquidation(r.pos, venue.MaintenanceMargin, day.Candle.High, day.Candle.Low)
	if verdict.Liquidated() {
		r.liquidate(day, verdict)
		return
	}

	prox := strategy.MeasureProximity(r.pos, venue.MaintenanceMargin, price)
	if d := p.Policy.DecideExit(smoothed, prox); d.Action == strategy.ActionClose {
		r.close(day, d.Reason, p.Fees.GasUSD, smoothed, prox)
		return
	}

	if !p.Rebalance {
		return
	}
	out, ok := strategy.Rebalance(r.pos, price, venue, p.RebalanceTrigger, p.MinTransferUSD)
	if !ok {
		return
	}
	r.totals.Fees += out.TransferCost
	r.totals.TransferCosts += out.TransferCost
	r.emit(strategy.Event{
		Date:              day.Date,
		Type:              strategy.EventRebalance,
		Price:             price,
		Fees:              out.TransferCost,
		LongEquity:        out.LongEquity,
		ShortEquity:       out.ShortEquity,
		Transfer:          out.Transfer,
		TransferCost:      out.TransferCost,
		EffectiveLeverage: out.EffectiveLeverage,
	})
	r.sim.metrics.Rebalances.Inc()
	r.sim.log.Debug("capital rebalanced",
		zap.String("date", market.DateKey(day.Date)),
		zap.Float64("transfer", out.Transfer),
		zap.Float64("effective_leverage", out.EffectiveLeverage),
	)
}

func (r *run) liquidate(day market.Day, verdict strategy.Verdict) {
	p := r.sim.params
	price := day.Candle.Close
	out := strategy.Liquidate(r.pos, verdict, price, r.sim.venue, p.Fees, p.Leverage)
	r.totals.Penalties += out.Penalty
	r.emit(strategy.Event{
		Date:        day.Date,
		Type:        strategy.EventLiquidation,
		Price:       price,
		Leg:         out.Leg,
		Penalty:     out.Penalty,
		LongEquity:  out.LongEquity,
		ShortEquity: out.ShortEquity,
	})
	r.sim.metrics.Liquidations.Inc()
	r.sim.log.Warn("position liquidated",
		zap.String("date", market.DateKey(day.Date)),
		zap.String("leg", string(out.Leg)),
		zap.Float64("low", day.Candle.Low),
		zap.Float64("high", day.Candle.High),
		zap.Float64("penalty", out.Penalty),
	)

	if out.Position == nil {
		r.pos = nil
		r.cash = out.PooledEquity
		r.sm.Apply(strategy.TransitionClose)
		r.emit(strategy.Event{
			Date:      day.Date,
			Type:      strategy.EventClose,
			Price:     price,
			Reason:    strategy.ReasonWipedOut,
			CashAfter: r.cash,
		})
		r.sim.metrics.Closes.Inc()
		r.sim.log.Warn("pooled equity cannot cover reopen",
			zap.String("date", market.DateKey(day.Date)),
			zap.Float64("cash", r.cash),
		)
		return
	}

	r.pos = out.Position
	r.totals.Fees += out.ReopenFees
	r.emit(strategy.Event{
		Date:         day.Date,
		Type:         strategy.EventReopen,
		Price:        price,
		Notional:     out.Notional,
		Fees:         out.ReopenFees,
		PooledEquity: out.PooledEquity,
		LongEquity:   r.pos.LongEquity(price),
		ShortEquity:  r.pos.ShortEquity(price),
	})
}

// close unwinds the position at the day's close. The short is closed at the
// taker fee; gas is charged on top when the close is a policy exit.
func (r *run) close(day market.Day, reason strategy.CloseReason, gas, smoothed float64, prox strategy.Proximity) {
	price := day.Candle.Close
	cost := r.sim.params.Fees.PerpCloseCost(r.pos.ShortNotional(price), r.sim.venue) + gas
	longEq := r.pos.LongEquity(price)
	shortEq := r.pos.ShortEquity(price)
	r.cash = math.Max(longEq+shortEq-cost, 0)
	r.totals.Fees += cost
	r.pos = nil
	r.sm.Apply(strategy.TransitionClose)
	r.emit(strategy.Event{
		Date:           day.Date,
		Type:           strategy.EventClose,
		Price:          price,
		Fees:           cost,
		LongEquity:     longEq,
		ShortEquity:    shortEq,
		NetAPY:         smoothed,
		Reason:         reason,
		LongBufferPct:  prox.LongBufferPct,
		ShortBufferPct: prox.ShortBufferPct,
		CashAfter:      r.cash,
	})
	r.sim.metrics.Closes.Inc()
	r.sim.log.Info("position closed",
		zap.String("date", market.DateKey(day.Date)),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
		zap.Float64("cash", r.cash),
	)
}

// settle closes whatever is still open after the last day.
func (r *run) settle(last market.Day) {
	prox := strategy.MeasureProximity(r.pos, r.sim.venue.MaintenanceMargin, last.Candle.Close)
	var smoothed float64
	if n := len(r.signals); n > 0 {
		smoothed = r.signals[n-1].Smoothed
	}
	r.close(last, strategy.ReasonEndOfData, 0, smoothed, prox)
}

func (r *run) emit(ev strategy.Event) {
	r.events = append(r.events, ev)
}
