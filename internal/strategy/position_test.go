package strategy

import (
	"errors"
	"math"
	"testing"
)

func closeEnough(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func openTestPosition(t *testing.T, leverage float64) *Position {
	t.Helper()
	pos, _, err := OpenPosition(10_000, leverage, 100, Hyperliquid(), DefaultFeeSchedule())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return pos
}

func TestOpenPositionSplitsCapital(t *testing.T) {
	pos, res, err := OpenPosition(10_000, 3, 100, Hyperliquid(), DefaultFeeSchedule())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if res.Notional != 15_000 {
		t.Fatalf("expected notional 15000, got %f", res.Notional)
	}
	if !closeEnough(res.Fees, 29.75, 1e-9) {
		t.Fatalf("expected fees 29.75, got %f", res.Fees)
	}
	if pos.AssetQty != 150 || pos.Contracts != 150 {
		t.Fatalf("expected 150 units per leg, got qty=%f contracts=%f", pos.AssetQty, pos.Contracts)
	}
	if !closeEnough(pos.Debt, 10_014.875, 1e-9) {
		t.Fatalf("expected debt 10014.875, got %f", pos.Debt)
	}
	if !closeEnough(pos.Margin, 4_985.125, 1e-9) {
		t.Fatalf("expected margin 4985.125, got %f", pos.Margin)
	}
	if !closeEnough(pos.Equity(100), 10_000-res.Fees, 1e-9) {
		t.Fatalf("expected equity %f, got %f", 10_000-res.Fees, pos.Equity(100))
	}
	if !closeEnough(pos.LongEquity(100), pos.ShortEquity(100), 1e-9) {
		t.Fatalf("expected balanced legs, got long=%f short=%f", pos.LongEquity(100), pos.ShortEquity(100))
	}
}

func TestOpenPositionConservesEquity(t *testing.T) {
	slippage := DefaultFeeSchedule()
	slippage.SlippageMultiplier = 1
	cases := []struct {
		capital, leverage, price float64
		fees                     FeeSchedule
	}{
		{100, 2, 100, DefaultFeeSchedule()},
		{1_000, 3, 37.5, DefaultFeeSchedule()},
		{10_000, 1.5, 100, DefaultFeeSchedule()},
		{25_000, 5, 212.4, DefaultFeeSchedule()},
		{1_000_000, 3, 150, DefaultFeeSchedule()},
		{10_000, 3, 100, slippage},
		{1_000_000, 4, 80, slippage},
		{5_000_000, 2.5, 19.9, slippage},
	}
	for _, c := range cases {
		for _, venue := range []Venue{Hyperliquid(), Drift()} {
			pos, res, err := OpenPosition(c.capital, c.leverage, c.price, venue, c.fees)
			if err != nil {
				t.Fatalf("open %+v on %s: %v", c, venue.Name, err)
			}
			tol := c.capital * 1e-12
			if !closeEnough(res.Notional, c.capital/2*c.leverage, tol) {
				t.Fatalf("%+v: unexpected notional %f", c, res.Notional)
			}
			if !closeEnough(res.Fees, OpenCostFor(c.capital, c.leverage, venue, c.fees), tol) {
				t.Fatalf("%+v: unexpected fees %f", c, res.Fees)
			}
			if !closeEnough(pos.Equity(c.price), c.capital-res.Fees, tol) {
				t.Fatalf("%+v on %s: expected equity %f, got %f", c, venue.Name, c.capital-res.Fees, pos.Equity(c.price))
			}
			if !closeEnough(pos.LongEquity(c.price), pos.ShortEquity(c.price), tol) {
				t.Fatalf("%+v: unbalanced legs long=%f short=%f", c, pos.LongEquity(c.price), pos.ShortEquity(c.price))
			}
			if pos.AssetQty != pos.Contracts {
				t.Fatalf("%+v: legs sized differently", c)
			}
		}
	}
}

func TestOpenPositionRejectsCapitalBelowFees(t *testing.T) {
	for _, capital := range []float64{0.5, 1, 2} {
		_, _, err := OpenPosition(capital, 3, 100, Hyperliquid(), DefaultFeeSchedule())
		if !errors.Is(err, ErrCapitalBelowFees) {
			t.Fatalf("capital %f: expected ErrCapitalBelowFees, got %v", capital, err)
		}
	}
	if _, _, err := OpenPosition(2.5, 3, 100, Hyperliquid(), DefaultFeeSchedule()); err != nil {
		t.Fatalf("capital above fees should open: %v", err)
	}
}

func TestOpenPositionRejectsBadInput(t *testing.T) {
	cases := []struct {
		capital, leverage, price float64
	}{
		{0, 3, 100},
		{-5, 3, 100},
		{1000, 1, 100},
		{1000, 3, 0},
	}
	for _, c := range cases {
		_, _, err := OpenPosition(c.capital, c.leverage, c.price, Hyperliquid(), DefaultFeeSchedule())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig for %+v, got %v", c, err)
		}
	}
}

func TestEquityIsHedgedAgainstPrice(t *testing.T) {
	pos := openTestPosition(t, 3)
	base := pos.Equity(100)
	for _, price := range []float64{50, 80, 120, 200} {
		if !closeEnough(pos.Equity(price), base, 1e-9) {
			t.Fatalf("expected equity %f at price %f, got %f", base, price, pos.Equity(price))
		}
	}
}

func TestEffectiveLeverageInfiniteWithoutEquity(t *testing.T) {
	pos := openTestPosition(t, 3)
	long, short := pos.EffectiveLeverage(100)
	if !closeEnough(long, 15_000/4_985.125, 1e-9) || !closeEnough(short, long, 1e-9) {
		t.Fatalf("unexpected leverage long=%f short=%f", long, short)
	}
	_, short = pos.EffectiveLeverage(200)
	if !math.IsInf(short, 1) {
		t.Fatalf("expected +Inf short leverage once margin is gone, got %f", short)
	}
}

func TestAccrueCompoundsBalances(t *testing.T) {
	pos := openTestPosition(t, 3)
	debt := pos.Debt
	acc := Accrue(pos, DayRates{LendAPY: 10, BorrowAPY: 5, Funding: 0.0001}, 100)

	wantEarned := 150 * 0.10 / 365
	wantInterest := debt * 0.05 / 365
	if !closeEnough(acc.AssetEarned, wantEarned, 1e-12) {
		t.Fatalf("expected earned %f, got %f", wantEarned, acc.AssetEarned)
	}
	if !closeEnough(acc.Carry, wantEarned*100-wantInterest, 1e-9) {
		t.Fatalf("expected carry %f, got %f", wantEarned*100-wantInterest, acc.Carry)
	}
	if !closeEnough(acc.Funding, 1.5, 1e-12) {
		t.Fatalf("expected funding 1.5, got %f", acc.Funding)
	}
	if !closeEnough(pos.AssetQty, 150+wantEarned, 1e-12) {
		t.Fatalf("expected qty to compound, got %f", pos.AssetQty)
	}
	if !closeEnough(pos.Debt, debt+wantInterest, 1e-9) {
		t.Fatalf("expected debt to compound, got %f", pos.Debt)
	}
	if !closeEnough(pos.Margin, 4_985.125+1.5, 1e-9) {
		t.Fatalf("expected funding in margin, got %f", pos.Margin)
	}
	if pos.Contracts != 150 || pos.EntryPrice != 100 {
		t.Fatalf("accrual must not touch the short leg size")
	}
}

func TestAccrueNilPosition(t *testing.T) {
	if acc := Accrue(nil, DayRates{LendAPY: 10}, 100); acc != (Accrual{}) {
		t.Fatalf("expected zero accrual, got %+v", acc)
	}
}
