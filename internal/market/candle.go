package market

import (
	"fmt"
	"math"

	"carry-backtest/internal/strategy"
)

// normalizeCandle fills a missing high, low or open from the close and widens
// the range to contain the close.
func normalizeCandle(c strategy.Candle) (strategy.Candle, error) {
	if c.Close <= 0 || math.IsNaN(c.Close) || math.IsInf(c.Close, 0) {
		return c, fmt.Errorf("close %.6f: %w", c.Close, ErrInvalidCandle)
	}
	if c.Open <= 0 {
		c.Open = c.Close
	}
	if c.High <= 0 {
		c.High = c.Close
	}
	if c.Low <= 0 {
		c.Low = c.Close
	}
	if c.Low > c.High {
		return c, fmt.Errorf("low %.6f above high %.6f: %w", c.Low, c.High, ErrInvalidCandle)
	}
	c.High = math.Max(c.High, c.Close)
	c.Low = math.Min(c.Low, c.Close)
	return c, nil
}
