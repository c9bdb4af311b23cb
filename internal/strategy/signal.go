package strategy

const DefaultLookbackDays = 7

// NetAPY is the annualized percent return on capital of a position at
// leverage L with the given rates, before fees.
func NetAPY(rates DayRates, leverage float64) float64 {
	fundingAPY := rates.Funding * 365 * 100
	return leverage/2*(rates.LendAPY+fundingAPY) - (leverage-1)/2*rates.BorrowAPY
}

// Smoother is a trailing simple moving average. Until the window fills it
// averages what it has seen.
type Smoother struct {
	window []float64
	next   int
	filled int
	sum    float64
}

func NewSmoother(lookback int) *Smoother {
	if lookback < 1 {
		lookback = 1
	}
	return &Smoother{window: make([]float64, lookback)}
}

// Push adds v and returns the updated average.
func (s *Smoother) Push(v float64) float64 {
	if s.filled == len(s.window) {
		s.sum -= s.window[s.next]
	} else {
		s.filled++
	}
	s.window[s.next] = v
	s.sum += v
	s.next = (s.next + 1) % len(s.window)
	return s.sum / float64(s.filled)
}
