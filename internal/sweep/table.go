package sweep

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"carry-backtest/internal/report"
)

// Ranked returns the successful outcomes ordered by annualized return,
// best first. Ties keep case order.
func Ranked(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Summary.AnnualizedReturnPct > out[j].Result.Summary.AnnualizedReturnPct
	})
	return out
}

func WriteTable(w io.Writer, outcomes []Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "venue\tcapital\tlev\tthreshold\ttrigger\tfinal\tann\tmax dd\tfees\tliqs\trebal\tdeployed")
	for _, o := range outcomes {
		c := o.Case
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%.1fx\t%s\t%.1f\terror: %v\n", c.Venue, report.USD(c.Capital), c.Leverage, report.Pct(c.Threshold), c.Trigger, o.Err)
			continue
		}
		s := o.Result.Summary
		fmt.Fprintf(tw, "%s\t%s\t%.1fx\t%s\t%.1f\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			o.Result.Venue,
			report.USD(s.InitialCapital),
			o.Result.Params.Leverage,
			report.Pct(o.Result.Params.Policy.APYThreshold),
			o.Result.Params.RebalanceTrigger,
			report.USD(s.FinalCapital),
			report.Pct(s.AnnualizedReturnPct),
			report.Pct(s.MaxDrawdownPct),
			report.USD(s.Fees),
			s.Liquidations,
			s.Rebalances,
			report.Pct(s.DeployedPct),
		)
	}
	return tw.Flush()
}
