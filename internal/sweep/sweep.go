package sweep

import (
	"context"
	"fmt"
	"runtime"

	"carry-backtest/internal/sim"

	"golang.org/x/sync/errgroup"
)

// Grid is the cartesian product of run parameters to sweep. An empty
// dimension contributes a single zero value, which the Builder treats as
// "use the configured default".
type Grid struct {
	Capitals   []float64
	Leverages  []float64
	Venues     []string
	Thresholds []float64
	Triggers   []float64
}

type Case struct {
	Index     int
	Capital   float64
	Leverage  float64
	Venue     string
	Threshold float64
	Trigger   float64
}

func (c Case) Label() string {
	return fmt.Sprintf("%s $%.0f %.1fx thr=%.1f trig=%.1f", c.Venue, c.Capital, c.Leverage, c.Threshold, c.Trigger)
}

// Cases expands the grid in venue, capital, leverage, threshold, trigger
// order.
func (g Grid) Cases() []Case {
	venues := g.Venues
	if len(venues) == 0 {
		venues = []string{""}
	}
	capitals := orZero(g.Capitals)
	leverages := orZero(g.Leverages)
	thresholds := orZero(g.Thresholds)
	triggers := orZero(g.Triggers)

	out := make([]Case, 0, len(venues)*len(capitals)*len(leverages)*len(thresholds)*len(triggers))
	for _, venue := range venues {
		for _, capital := range capitals {
			for _, lev := range leverages {
				for _, thr := range thresholds {
					for _, trig := range triggers {
						out = append(out, Case{
							Index:     len(out),
							Capital:   capital,
							Leverage:  lev,
							Venue:     venue,
							Threshold: thr,
							Trigger:   trig,
						})
					}
				}
			}
		}
	}
	return out
}

func orZero(v []float64) []float64 {
	if len(v) == 0 {
		return []float64{0}
	}
	return v
}

// Builder turns a case into a ready simulator.
type Builder func(Case) (*sim.Simulator, error)

type Outcome struct {
	Case   Case
	Result *sim.Result
	Err    error
}

// Run simulates every case against the shared view with at most workers
// concurrent runs. Outcomes are returned in case order. A failing case is
// reported in its Outcome and does not stop the sweep; only cancellation of
// ctx does.
func Run(ctx context.Context, view sim.MarketView, cases []Case, workers int, build Builder) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outcomes := make([]Outcome, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cases {
		i, c := i, c
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = runCase(view, c, build)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func runCase(view sim.MarketView, c Case, build Builder) Outcome {
	out := Outcome{Case: c}
	s, err := build(c)
	if err != nil {
		out.Err = fmt.Errorf("case %d (%s): %w", c.Index, c.Label(), err)
		return out
	}
	res, err := s.Run(view)
	if err != nil {
		out.Err = fmt.Errorf("case %d (%s): %w", c.Index, c.Label(), err)
		return out
	}
	out.Result = res
	return out
}
