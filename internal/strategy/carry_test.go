package strategy

import "testing"

func TestEstimateSlippageBps(t *testing.T) {
	if got := EstimateSlippageBps(10_000, 1); got != 0.1 {
		t.Fatalf("expected 0.1 bps, got %f", got)
	}
	if got := EstimateSlippageBps(30_000, 1); !closeEnough(got, 0.19, 1e-12) {
		t.Fatalf("expected 0.19 bps, got %f", got)
	}
	if got := EstimateSlippageBps(30_000, 2); !closeEnough(got, 0.38, 1e-12) {
		t.Fatalf("expected 0.38 bps, got %f", got)
	}
}

func TestSlippageAddsToOpenCost(t *testing.T) {
	fees := DefaultFeeSchedule()
	base := fees.OpenCost(15_000, Hyperliquid())
	fees.SlippageMultiplier = 1
	withSlip := fees.OpenCost(15_000, Hyperliquid())
	if !closeEnough(withSlip-base, 15_000*0.1/10000, 1e-9) {
		t.Fatalf("expected slippage 0.15, got %f", withSlip-base)
	}
}

func TestRoundTripCostUSD(t *testing.T) {
	cost := RoundTripCostUSD(10_000, 3, Hyperliquid(), DefaultFeeSchedule())
	if !closeEnough(cost, 35, 1e-9) {
		t.Fatalf("expected cost 35, got %f", cost)
	}
}

func TestAnalyzeBreakeven(t *testing.T) {
	be := AnalyzeBreakeven(BreakevenInput{Capital: 10_000, Leverage: 3, HoldingDays: 365, RebalancesPerYear: 6}, Hyperliquid(), DefaultFeeSchedule())
	if !closeEnough(be.RoundTripFeePct, 0.35, 1e-9) {
		t.Fatalf("expected round trip 0.35%%, got %f", be.RoundTripFeePct)
	}
	if !closeEnough(be.TransferDragPct, 0.18, 1e-9) {
		t.Fatalf("expected transfer drag 0.18%%, got %f", be.TransferDragPct)
	}
	want := 2.0 / 3 * (0.35 + 0.18) / 100
	if !closeEnough(be.BreakevenSpread, want, 1e-12) {
		t.Fatalf("expected spread %f, got %f", want, be.BreakevenSpread)
	}
	if !closeEnough(be.BreakevenFunding(0.07, 0.09), want+0.02, 1e-12) {
		t.Fatalf("unexpected breakeven funding %f", be.BreakevenFunding(0.07, 0.09))
	}
	if be.GrossAPYPerSpread != 1.5 {
		t.Fatalf("expected gross multiplier 1.5, got %f", be.GrossAPYPerSpread)
	}
}

func TestAnalyzeBreakevenShortHold(t *testing.T) {
	be := AnalyzeBreakeven(BreakevenInput{Capital: 10_000, Leverage: 3, HoldingDays: 73}, Hyperliquid(), DefaultFeeSchedule())
	if !closeEnough(be.AnnualFeeDragPct, 0.35*5, 1e-9) {
		t.Fatalf("expected fee drag 1.75%%, got %f", be.AnnualFeeDragPct)
	}
	if be.TransferDragPct != 0 {
		t.Fatalf("expected no transfer drag, got %f", be.TransferDragPct)
	}
}
