package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"carry-backtest/internal/strategy"

	"github.com/shopspring/decimal"
)

func fixed(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// USD formats v as dollars with two decimals.
func USD(v float64) string {
	return "$" + fixed(v)
}

func Pct(v float64) string {
	return fixed(v) + "%"
}

// WriteSummary renders s as an aligned two-column table.
func WriteSummary(w io.Writer, label string, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if label != "" {
		fmt.Fprintf(tw, "%s\n", label)
	}
	rows := [][2]string{
		{"initial capital", USD(s.InitialCapital)},
		{"final capital", USD(s.FinalCapital)},
		{"total return", fmt.Sprintf("%s (%s)", USD(s.TotalReturn), Pct(s.ReturnPct))},
		{"annualized return", Pct(s.AnnualizedReturnPct)},
		{"max drawdown", Pct(s.MaxDrawdownPct)},
		{"days", fmt.Sprintf("%d (deployed %d, idle %d, %s deployed)", s.Days, s.DeployedDays, s.IdleDays, Pct(s.DeployedPct))},
		{"carry", USD(s.Carry)},
		{"funding", USD(s.Funding)},
		{"gross", USD(s.Gross)},
		{"fees", fmt.Sprintf("%s (%s of gross, transfers %s)", USD(s.Fees), Pct(s.FeesPctGross), USD(s.TransferCosts))},
		{"liquidation penalties", USD(s.Penalties)},
		{"mark-to-market drag", USD(s.MTMDrag)},
		{"opens / closes", fmt.Sprintf("%d / %d", s.Opens, s.Closes)},
		{"liquidations", fmt.Sprintf("%d (reopened %d)", s.Liquidations, s.Reopens)},
		{"rebalances", fmt.Sprintf("%d", s.Rebalances)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", row[0], row[1])
	}
	for _, reason := range sortedReasons(s.CloseReasons) {
		fmt.Fprintf(tw, "  close reason %s\t%d\n", reason, s.CloseReasons[reason])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return WriteHolds(w, s.Holds, s.SmartEntry)
}

// WriteHolds renders the fixed-hold table. Nothing is written when there are
// no windows.
func WriteHolds(w io.Writer, holds []HoldWindow, smart HoldWindow) error {
	if len(holds) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  hold\tstarts\twin rate\tavg\tmedian\tbest\tworst")
	for _, h := range holds {
		writeHoldRow(tw, fmt.Sprintf("%dd", h.Days), h)
	}
	if smart.Samples > 0 {
		writeHoldRow(tw, fmt.Sprintf("%dd smart entry", smart.Days), smart)
	}
	return tw.Flush()
}

func writeHoldRow(w io.Writer, name string, h HoldWindow) {
	if h.Samples == 0 {
		fmt.Fprintf(w, "  %s\t0\t-\t-\t-\t-\t-\n", name)
		return
	}
	fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%s\t%s\t%s\n",
		name, h.Samples, Pct(h.WinRatePct), USD(h.Avg), USD(h.Median), USD(h.Best), USD(h.Worst))
}

func sortedReasons(m map[strategy.CloseReason]int) []strategy.CloseReason {
	out := make([]strategy.CloseReason, 0, len(m))
	for reason := range m {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WriteEvents renders the event log one line per event.
func WriteEvents(w io.Writer, events []strategy.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "date\ttype\tprice\tlong eq\tshort eq\tdetail")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Date.Format(time.DateOnly),
			ev.Type,
			fixed(ev.Price),
			USD(ev.LongEquity),
			USD(ev.ShortEquity),
			eventDetail(ev),
		)
	}
	return tw.Flush()
}

func eventDetail(ev strategy.Event) string {
	switch ev.Type {
	case strategy.EventOpen:
		return fmt.Sprintf("notional %s fees %s signal %s", USD(ev.Notional), USD(ev.Fees), Pct(ev.NetAPY))
	case strategy.EventClose:
		return fmt.Sprintf("reason %s fees %s cash %s", ev.Reason, USD(ev.Fees), USD(ev.CashAfter))
	case strategy.EventRebalance:
		return fmt.Sprintf("transfer %s cost %s lev %sx", USD(ev.Transfer), USD(ev.TransferCost), fixed(ev.EffectiveLeverage))
	case strategy.EventLiquidation:
		return fmt.Sprintf("leg %s penalty %s", ev.Leg, USD(ev.Penalty))
	case strategy.EventReopen:
		return fmt.Sprintf("pooled %s notional %s fees %s", USD(ev.PooledEquity), USD(ev.Notional), USD(ev.Fees))
	}
	return ""
}
