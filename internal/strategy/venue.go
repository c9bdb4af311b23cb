package strategy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidConfig       = errors.New("invalid simulation config")
	ErrUnknownPenaltyModel = errors.New("unknown liquidation penalty model")
	ErrUnknownVenue        = errors.New("unknown venue")
	ErrCapitalBelowFees    = errors.New("capital does not cover open fees")
)

// PenaltyModel is closed over EquityFraction and NotionalFraction.
type PenaltyModel interface {
	Tag() string
	penaltyModel()
}

// EquityFraction forfeits Fraction of the breached leg's equity.
type EquityFraction struct {
	Fraction float64
}

// NotionalFraction forfeits Fraction of the breached leg's notional at the
// close price, capped at that leg's remaining equity.
type NotionalFraction struct {
	Fraction float64
}

func (EquityFraction) Tag() string   { return "equity-fraction" }
func (NotionalFraction) Tag() string { return "notional-fraction" }

func (EquityFraction) penaltyModel()   {}
func (NotionalFraction) penaltyModel() {}

func ParsePenaltyModel(tag string, fraction float64) (PenaltyModel, error) {
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("penalty fraction %.4f outside [0,1]: %w", fraction, ErrInvalidConfig)
	}
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "equity-fraction", "equity":
		return EquityFraction{Fraction: fraction}, nil
	case "notional-fraction", "notional":
		return NotionalFraction{Fraction: fraction}, nil
	default:
		return nil, fmt.Errorf("%q: %w", tag, ErrUnknownPenaltyModel)
	}
}

// Venue describes the perp venue hosting the short leg.
type Venue struct {
	Name              string
	TakerFeeBps       float64
	MaintenanceMargin float64
	Penalty           PenaltyModel
	TransferCostUSD   float64
}

func Hyperliquid() Venue {
	return Venue{
		Name:              "hyperliquid",
		TakerFeeBps:       3.5,
		MaintenanceMargin: 0.05,
		Penalty:           EquityFraction{Fraction: 0.5},
		TransferCostUSD:   3,
	}
}

func Drift() Venue {
	return Venue{
		Name:              "drift",
		TakerFeeBps:       3.5,
		MaintenanceMargin: 0.03,
		Penalty:           NotionalFraction{Fraction: 0.025},
		TransferCostUSD:   0.001,
	}
}

func VenueByName(name string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hyperliquid", "hl":
		return Hyperliquid(), nil
	case "drift":
		return Drift(), nil
	default:
		return Venue{}, fmt.Errorf("%q: %w", name, ErrUnknownVenue)
	}
}

func (v Venue) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("venue name is required: %w", ErrInvalidConfig)
	}
	if v.TakerFeeBps < 0 {
		return fmt.Errorf("venue %s taker fee must be >= 0: %w", v.Name, ErrInvalidConfig)
	}
	if v.MaintenanceMargin < 0 || v.MaintenanceMargin >= 1 {
		return fmt.Errorf("venue %s maintenance margin %.4f outside [0,1): %w", v.Name, v.MaintenanceMargin, ErrInvalidConfig)
	}
	if v.Penalty == nil {
		return fmt.Errorf("venue %s: %w", v.Name, ErrUnknownPenaltyModel)
	}
	if v.TransferCostUSD < 0 {
		return fmt.Errorf("venue %s transfer cost must be >= 0: %w", v.Name, ErrInvalidConfig)
	}
	return nil
}

func (v Venue) takerRate() float64 {
	return v.TakerFeeBps / 10000
}

// FeeSchedule carries the costs charged outside the perp venue.
type FeeSchedule struct {
	OriginationBps     float64
	GasUSD             float64
	SlippageMultiplier float64
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{OriginationBps: 15, GasUSD: 2}
}

// OpenCost is the fee for opening both legs at the given notional.
func (f FeeSchedule) OpenCost(notional float64, venue Venue) float64 {
	rate := (f.OriginationBps+venue.TakerFeeBps)/10000 + f.slippageRate(notional)
	return notional*rate + f.GasUSD
}

// PerpCloseCost is the taker fee for unwinding the short leg, without gas.
func (f FeeSchedule) PerpCloseCost(notional float64, venue Venue) float64 {
	return notional * (venue.takerRate() + f.slippageRate(notional))
}

func (f FeeSchedule) slippageRate(notional float64) float64 {
	if f.SlippageMultiplier <= 0 {
		return 0
	}
	return EstimateSlippageBps(notional, f.SlippageMultiplier) / 10000
}
