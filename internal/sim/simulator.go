package sim

import (
	"fmt"
	"time"

	"carry-backtest/internal/market"
	"carry-backtest/internal/metrics"
	"carry-backtest/internal/report"
	"carry-backtest/internal/strategy"

	"go.uber.org/zap"
)

// MarketView is the read-only market history a run walks through.
type MarketView interface {
	Dates() []time.Time
	Day(date time.Time, venue string) (market.Day, error)
}

// Params configures one run. The naive, managed and always-deployed
// strategies are all expressed through Policy and Rebalance.
type Params struct {
	InitialCapital   float64
	Leverage         float64
	RebalanceTrigger float64
	MinTransferUSD   float64
	LookbackDays     int
	Rebalance        bool
	Policy           strategy.Policy
	Fees             strategy.FeeSchedule
}

func DefaultParams() Params {
	return Params{
		InitialCapital:   10_000,
		Leverage:         3,
		RebalanceTrigger: 6,
		MinTransferUSD:   strategy.DefaultMinTransferUSD,
		LookbackDays:     strategy.DefaultLookbackDays,
		Rebalance:        true,
		Policy: strategy.Policy{
			Gated:         true,
			APYExit:       true,
			ProximityExit: true,
			APYThreshold:  10,
			LiqBufferPct:  10,
		},
		Fees: strategy.DefaultFeeSchedule(),
	}
}

func (p Params) Validate() error {
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial capital %.2f must be > 0: %w", p.InitialCapital, strategy.ErrInvalidConfig)
	}
	if p.Leverage <= 1 {
		return fmt.Errorf("leverage %.2f must be > 1: %w", p.Leverage, strategy.ErrInvalidConfig)
	}
	if p.LookbackDays < 1 {
		return fmt.Errorf("lookback %d must be >= 1: %w", p.LookbackDays, strategy.ErrInvalidConfig)
	}
	if p.Rebalance && p.RebalanceTrigger <= 1 {
		return fmt.Errorf("rebalance trigger %.2f must be > 1: %w", p.RebalanceTrigger, strategy.ErrInvalidConfig)
	}
	if p.Policy.LiqBufferPct < 0 {
		return fmt.Errorf("liquidation buffer %.2f must be >= 0: %w", p.Policy.LiqBufferPct, strategy.ErrInvalidConfig)
	}
	if p.Fees.OriginationBps < 0 || p.Fees.GasUSD < 0 || p.Fees.SlippageMultiplier < 0 {
		return fmt.Errorf("fees must be >= 0: %w", strategy.ErrInvalidConfig)
	}
	return nil
}

type Option func(*Simulator)

func WithLogger(log *zap.Logger) Option {
	return func(s *Simulator) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Simulator replays a carry strategy over a market view. It holds no run
// state, so one Simulator may serve concurrent runs.
type Simulator struct {
	params  Params
	venue   strategy.Venue
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(params Params, venue strategy.Venue, opts ...Option) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := venue.Validate(); err != nil {
		return nil, err
	}
	if cost := strategy.OpenCostFor(params.InitialCapital, params.Leverage, venue, params.Fees); params.InitialCapital <= cost {
		return nil, fmt.Errorf("initial capital %.2f, open cost %.2f: %w", params.InitialCapital, cost, strategy.ErrCapitalBelowFees)
	}
	s := &Simulator{
		params:  params,
		venue:   venue,
		log:     zap.NewNop(),
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Simulator) Params() Params {
	return s.params
}

func (s *Simulator) Venue() strategy.Venue {
	return s.venue
}

type Result struct {
	Venue   string
	Params  Params
	Summary report.Summary
	Totals  report.Totals
	Events  []strategy.Event
	Daily   []strategy.DailyEquity
	Signals []strategy.DailySignal
}

// Run walks every date of view in order. Any gap in the data aborts the run.
func (s *Simulator) Run(view MarketView) (*Result, error) {
	r := &run{
		sim:      s,
		sm:       strategy.NewStateMachine(),
		cash:     s.params.InitialCapital,
		smoother: strategy.NewSmoother(s.params.LookbackDays),
	}
	dates := view.Dates()
	var last market.Day
	for _, date := range dates {
		day, err := view.Day(date, s.venue.Name)
		if err != nil {
			s.metrics.RunsFailed.Inc()
			return nil, fmt.Errorf("simulate %s on %s: %w", s.venue.Name, market.DateKey(date), err)
		}
		if err := r.step(day); err != nil {
			s.metrics.RunsFailed.Inc()
			return nil, err
		}
		last = day
	}
	if r.pos != nil {
		r.settle(last)
	}
	s.metrics.RunsCompleted.Inc()

	res := &Result{
		Venue:   s.venue.Name,
		Params:  s.params,
		Totals:  r.totals,
		Events:  r.events,
		Daily:   r.daily,
		Signals: r.signals,
	}
	res.Summary = report.Summarize(report.Input{
		InitialCapital: s.params.InitialCapital,
		FinalCapital:   r.cash,
		Totals:         r.totals,
		Daily:          r.daily,
		Events:         r.events,
		Signals:        r.signals,
		RoundTripCost:  strategy.RoundTripCostUSD(s.params.InitialCapital, s.params.Leverage, s.venue, s.params.Fees),
	})
	s.log.Info("simulation finished",
		zap.String("venue", s.venue.Name),
		zap.Float64("leverage", s.params.Leverage),
		zap.Int("days", len(dates)),
		zap.Float64("final_capital", r.cash),
		zap.Int("liquidations", res.Summary.Liquidations),
	)
	return res, nil
}
