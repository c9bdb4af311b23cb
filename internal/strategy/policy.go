package strategy

// Policy gates entries and exits. With Gated false the policy deploys
// whenever it is idle and holds until a configured exit fires.
type Policy struct {
	Gated         bool
	APYExit       bool
	ProximityExit bool
	APYThreshold  float64
	LiqBufferPct  float64
}

type Action int

const (
	ActionHold Action = iota
	ActionOpen
	ActionClose
)

type Decision struct {
	Action Action
	Reason CloseReason
}

// DecideEntry is evaluated on idle days.
func (p Policy) DecideEntry(smoothedAPY, cash float64) Decision {
	if cash <= 0 {
		return Decision{}
	}
	if !p.Gated || smoothedAPY > p.APYThreshold {
		return Decision{Action: ActionOpen}
	}
	return Decision{}
}

// DecideExit is evaluated on deployed days that were not liquidated.
// Liquidation proximity takes priority over a weak signal.
func (p Policy) DecideExit(smoothedAPY float64, prox Proximity) Decision {
	if p.ProximityExit && prox.Within(p.LiqBufferPct) {
		return Decision{Action: ActionClose, Reason: ReasonLiqProximity}
	}
	if p.APYExit && smoothedAPY < p.APYThreshold {
		return Decision{Action: ActionClose, Reason: ReasonAPY}
	}
	return Decision{}
}
