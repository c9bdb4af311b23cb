package strategy

import "time"

type State string

type Transition string

const (
	StateIdle     State = "IDLE"
	StateDeployed State = "DEPLOYED"
)

const (
	TransitionOpen  Transition = "OPEN"
	TransitionClose Transition = "CLOSE"
)

type EventType string

const (
	EventOpen        EventType = "OPEN"
	EventClose       EventType = "CLOSE"
	EventRebalance   EventType = "CAPITAL_REBALANCE"
	EventLiquidation EventType = "LIQUIDATION"
	EventReopen      EventType = "REOPEN_AFTER_LIQ"
)

// Leg names which side of the position breached its maintenance requirement.
type Leg string

const (
	LegNone  Leg = ""
	LegLong  Leg = "LONG"
	LegShort Leg = "SHORT"
	LegBoth  Leg = "BOTH"
)

type CloseReason string

const (
	ReasonAPY          CloseReason = "apy"
	ReasonLiqProximity CloseReason = "liq_proximity"
	ReasonEndOfData    CloseReason = "end_of_data"
	ReasonWipedOut     CloseReason = "wiped_out"
)

// DayRates holds one day's rates. LendAPY and BorrowAPY are annual
// percentages; Funding is the fraction of notional paid to shorts that day.
type DayRates struct {
	LendAPY   float64
	BorrowAPY float64
	Funding   float64
}

type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Event is a tagged record; fields not relevant to Type are zero.
type Event struct {
	Date              time.Time
	Type              EventType
	Price             float64
	Notional          float64
	Fees              float64
	LongEquity        float64
	ShortEquity       float64
	NetAPY            float64
	Reason            CloseReason
	Leg               Leg
	Penalty           float64
	PooledEquity      float64
	Transfer          float64
	TransferCost      float64
	EffectiveLeverage float64
	LongBufferPct     float64
	ShortBufferPct    float64
	CashAfter         float64
}

type DailyEquity struct {
	Date   time.Time
	State  State
	Equity float64
}

// DailySignal is the raw and smoothed net APY seen on a date, with the
// funding rate that fed it.
type DailySignal struct {
	Date     time.Time
	Raw      float64
	Smoothed float64
	Funding  float64
	Deployed bool
}
