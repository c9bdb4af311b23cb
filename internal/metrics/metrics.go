package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	RunsCompleted Counter
	RunsFailed    Counter
	Opens         Counter
	Closes        Counter
	Liquidations  Counter
	Rebalances    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		RunsCompleted: n,
		RunsFailed:    n,
		Opens:         n,
		Closes:        n,
		Liquidations:  n,
		Rebalances:    n,
	}
}
