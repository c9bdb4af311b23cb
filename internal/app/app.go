package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carry-backtest/internal/alerts"
	"carry-backtest/internal/config"
	"carry-backtest/internal/market"
	"carry-backtest/internal/metrics"
	"carry-backtest/internal/report"
	"carry-backtest/internal/sim"
	"carry-backtest/internal/state"
	"carry-backtest/internal/state/sqlite"
	"carry-backtest/internal/strategy"
	"carry-backtest/internal/sweep"
	"carry-backtest/internal/timescale"

	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	timescale *timescale.Writer
	metrics   *metrics.Metrics
	server    *http.Server
	alerts    *alerts.Telegram
	now       func() time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewNoop(),
		alerts:  alerts.NewTelegram(cfg.Telegram, log),
		now:     time.Now,
	}
	if cfg.State.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		store, err := sqlite.New(cfg.State.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.timescale = writer
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		a.metrics = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, prom.Handler())
		a.server = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("metrics server started", zap.String("addr", cfg.Metrics.Address), zap.String("path", cfg.Metrics.Path))
	}
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	if a.timescale != nil {
		errs = append(errs, a.timescale.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// LoadMarket reads the configured data set.
func (a *App) LoadMarket() (*market.View, error) {
	view, err := market.Load(a.cfg.Data)
	if err != nil {
		return nil, err
	}
	dates := view.Dates()
	a.log.Info("market data loaded",
		zap.Int("days", len(dates)),
		zap.String("from", market.DateKey(dates[0])),
		zap.String("to", market.DateKey(dates[len(dates)-1])),
		zap.Strings("venues", view.Venues()),
	)
	return view, nil
}

// VenueFromConfig resolves a built-in venue and applies overrides. A name
// with no built-in must be fully described by its override.
func VenueFromConfig(name string, overrides map[string]config.VenueConfig) (strategy.Venue, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	override, hasOverride := overrides[key]
	venue, err := strategy.VenueByName(key)
	if err != nil {
		if !hasOverride {
			return strategy.Venue{}, err
		}
		venue = strategy.Venue{Name: key}
	}
	if !hasOverride {
		return venue, nil
	}
	venue.TakerFeeBps = config.FloatValue(override.TakerFeeBps, venue.TakerFeeBps)
	venue.MaintenanceMargin = config.FloatValue(override.MaintenanceMargin, venue.MaintenanceMargin)
	venue.TransferCostUSD = config.FloatValue(override.TransferCostUSD, venue.TransferCostUSD)
	tag := override.PenaltyModel
	if tag == "" && venue.Penalty != nil {
		tag = venue.Penalty.Tag()
	}
	if tag != "" {
		fraction := config.FloatValue(override.PenaltyFraction, penaltyFraction(venue.Penalty))
		model, err := strategy.ParsePenaltyModel(tag, fraction)
		if err != nil {
			return strategy.Venue{}, fmt.Errorf("venue %s: %w", key, err)
		}
		venue.Penalty = model
	}
	if err := venue.Validate(); err != nil {
		return strategy.Venue{}, err
	}
	return venue, nil
}

func penaltyFraction(model strategy.PenaltyModel) float64 {
	switch m := model.(type) {
	case strategy.EquityFraction:
		return m.Fraction
	case strategy.NotionalFraction:
		return m.Fraction
	}
	return 0
}

// ParamsFromConfig maps the run section onto simulator parameters.
func ParamsFromConfig(cfg *config.Config) sim.Params {
	run := cfg.Run
	return sim.Params{
		InitialCapital:   run.InitialCapital,
		Leverage:         run.Leverage,
		RebalanceTrigger: run.RebalanceTrigger,
		MinTransferUSD:   run.MinTransferUSD,
		LookbackDays:     run.LookbackDays,
		Rebalance:        config.BoolValue(run.Rebalance, true),
		Policy: strategy.Policy{
			Gated:         config.BoolValue(run.Gated, true),
			APYExit:       config.BoolValue(run.APYExit, true),
			ProximityExit: config.BoolValue(run.ProximityExit, true),
			APYThreshold:  run.APYThreshold,
			LiqBufferPct:  run.LiqBufferPct,
		},
		Fees: strategy.FeeSchedule{
			OriginationBps:     cfg.Fees.OriginationBps,
			GasUSD:             cfg.Fees.GasUSD,
			SlippageMultiplier: cfg.Fees.SlippageMultiplier,
		},
	}
}

func (a *App) simulator(params sim.Params, venueName string) (*sim.Simulator, error) {
	venue, err := VenueFromConfig(venueName, a.cfg.Venues)
	if err != nil {
		return nil, err
	}
	return sim.New(params, venue, sim.WithLogger(a.log), sim.WithMetrics(a.metrics))
}

type RunOptions struct {
	Label      string
	ShowEvents bool
}

// RunOnce simulates the configured run, prints it to w and hands the result
// to the configured sinks.
func (a *App) RunOnce(ctx context.Context, view sim.MarketView, w io.Writer, opts RunOptions) (*sim.Result, error) {
	s, err := a.simulator(ParamsFromConfig(a.cfg), a.cfg.Run.Venue)
	if err != nil {
		return nil, err
	}
	res, err := s.Run(view)
	if err != nil {
		return nil, err
	}
	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("%s %.1fx $%.0f", res.Venue, res.Params.Leverage, res.Params.InitialCapital)
	}
	if err := report.WriteSummary(w, label, res.Summary); err != nil {
		return nil, err
	}
	if opts.ShowEvents {
		fmt.Fprintln(w)
		if err := report.WriteEvents(w, res.Events); err != nil {
			return nil, err
		}
	}
	rec := state.NewRunRecord(label, res, a.now())
	a.persist(ctx, rec)
	_ = a.alerts.NotifyRun(ctx, rec.Label, rec.Summary)
	return res, nil
}

// persist is best effort; sink failures are logged and never fail the run.
func (a *App) persist(ctx context.Context, rec state.RunRecord) {
	if a.store != nil {
		if err := state.SaveRun(ctx, a.store, rec); err != nil {
			a.log.Warn("run save failed", zap.String("run_id", rec.ID), zap.Error(err))
		} else {
			a.log.Info("run saved", zap.String("run_id", rec.ID))
		}
	}
	if err := a.timescale.WriteRun(ctx, rec); err != nil {
		a.log.Warn("timescale export failed", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

// SweepGrid builds the grid from config. Empty dimensions fall back to the
// run section.
func SweepGrid(cfg *config.Config) sweep.Grid {
	g := sweep.Grid{
		Capitals:   cfg.Sweep.Capitals,
		Leverages:  cfg.Sweep.Leverages,
		Venues:     cfg.Sweep.Venues,
		Thresholds: cfg.Sweep.Thresholds,
		Triggers:   cfg.Sweep.Triggers,
	}
	if len(g.Capitals) == 0 {
		g.Capitals = []float64{cfg.Run.InitialCapital}
	}
	if len(g.Leverages) == 0 {
		g.Leverages = []float64{cfg.Run.Leverage}
	}
	if len(g.Venues) == 0 {
		g.Venues = []string{cfg.Run.Venue}
	}
	if len(g.Thresholds) == 0 {
		g.Thresholds = []float64{cfg.Run.APYThreshold}
	}
	return g
}

func (a *App) buildCase(c sweep.Case) (*sim.Simulator, error) {
	p := ParamsFromConfig(a.cfg)
	p.InitialCapital = c.Capital
	p.Policy.APYThreshold = c.Threshold
	if c.Leverage != p.Leverage {
		p.Leverage = c.Leverage
		if a.cfg.Run.TriggerDefaulted {
			p.RebalanceTrigger = 2 * c.Leverage
		}
	}
	if c.Trigger > 0 {
		p.RebalanceTrigger = c.Trigger
	}
	return a.simulator(p, c.Venue)
}

// Sweep runs the configured grid and prints the ranked table to w.
func (a *App) Sweep(ctx context.Context, view sim.MarketView, w io.Writer) ([]sweep.Outcome, error) {
	cases := SweepGrid(a.cfg).Cases()
	a.log.Info("sweep started", zap.Int("cases", len(cases)), zap.Int("workers", a.cfg.Sweep.Workers))
	started := a.now()
	outcomes, err := sweep.Run(ctx, view, cases, a.cfg.Sweep.Workers, a.buildCase)
	if err != nil {
		return nil, err
	}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			a.log.Warn("sweep case failed", zap.Int("case", o.Case.Index), zap.Error(o.Err))
			continue
		}
		a.persist(ctx, state.NewRunRecord(o.Case.Label(), o.Result, a.now()))
	}
	a.log.Info("sweep finished",
		zap.Int("cases", len(outcomes)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", a.now().Sub(started)),
	)
	ranked := sweep.Ranked(outcomes)
	if len(ranked) > 0 {
		best := ranked[0]
		_ = a.alerts.NotifyRun(ctx, "best of sweep: "+best.Case.Label(), best.Result.Summary)
	}
	if failed > 0 {
		for _, o := range outcomes {
			if o.Err != nil {
				ranked = append(ranked, o)
			}
		}
	}
	if err := sweep.WriteTable(w, ranked); err != nil {
		return nil, err
	}
	return outcomes, nil
}

type BreakevenOptions struct {
	HoldingDays       float64
	RebalancesPerYear float64
	LendAPY           float64
	BorrowAPY         float64
}

// Breakeven prints the cost hurdle for every venue in the sweep grid at the
// configured capital and leverage.
func (a *App) Breakeven(w io.Writer, opts BreakevenOptions) error {
	p := ParamsFromConfig(a.cfg)
	for _, name := range SweepGrid(a.cfg).Venues {
		venue, err := VenueFromConfig(name, a.cfg.Venues)
		if err != nil {
			return err
		}
		b := strategy.AnalyzeBreakeven(strategy.BreakevenInput{
			Capital:           p.InitialCapital,
			Leverage:          p.Leverage,
			HoldingDays:       opts.HoldingDays,
			RebalancesPerYear: opts.RebalancesPerYear,
		}, venue, p.Fees)
		fmt.Fprintf(w, "%s $%.0f %.1fx\n", venue.Name, p.InitialCapital, p.Leverage)
		fmt.Fprintf(w, "  round trip fees        %s\n", report.Pct(b.RoundTripFeePct))
		fmt.Fprintf(w, "  annual fee drag        %s\n", report.Pct(b.AnnualFeeDragPct))
		fmt.Fprintf(w, "  transfer drag          %s\n", report.Pct(b.TransferDragPct))
		fmt.Fprintf(w, "  breakeven spread       %s\n", report.Pct(b.BreakevenSpread*100))
		fmt.Fprintf(w, "  breakeven funding      %s\n", report.Pct(b.BreakevenFunding(opts.LendAPY/100, opts.BorrowAPY/100)*100))
		fmt.Fprintf(w, "  max adverse move       %s (short %s, long %s)\n",
			report.Pct(b.MaxAdverseMove*100), report.Pct(b.ShortAdverseMove*100), report.Pct(b.LongAdverseMove*100))
	}
	return nil
}

// ExportParquet writes the loaded view to dir as parquet.
func (a *App) ExportParquet(view *market.View, dir string) error {
	if dir == "" {
		dir = a.cfg.Data.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := market.WriteParquet(dir, view); err != nil {
		return err
	}
	a.log.Info("parquet exported", zap.String("dir", dir), zap.Int("days", view.Len()))
	return nil
}

// ListRuns prints stored run IDs with their headline return.
func (a *App) ListRuns(ctx context.Context, w io.Writer) error {
	if a.store == nil {
		return errors.New("state store is disabled")
	}
	ids, err := state.ListRuns(ctx, a.store)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := state.LoadRun(ctx, a.store, id)
		if err != nil {
			return err
		}
		created := time.UnixMilli(rec.CreatedAtMS).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s  %s  %s  final %s  ann %s\n", id, created, rec.Label,
			report.USD(rec.Summary.FinalCapital), report.Pct(rec.Summary.AnnualizedReturnPct))
	}
	return nil
}

// ShowRun prints a stored run's summary and event log.
func (a *App) ShowRun(ctx context.Context, id string, w io.Writer) error {
	if a.store == nil {
		return errors.New("state store is disabled")
	}
	rec, err := state.LoadRun(ctx, a.store, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	if err := report.WriteSummary(w, rec.Label, rec.Summary); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return report.WriteEvents(w, rec.Events)
}
