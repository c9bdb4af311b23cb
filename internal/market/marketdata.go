package market

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"carry-backtest/internal/strategy"
)

var (
	ErrMissingDate          = errors.New("market data missing for date")
	ErrUnknownFundingSource = errors.New("no funding series for venue")
	ErrInvalidCandle        = errors.New("invalid candle")
	ErrNoOverlap            = errors.New("market series share no dates")
)

// Series is raw per-date market data keyed by DateKey. Funding maps a venue
// name to that venue's daily funding rates.
type Series struct {
	Lend    map[string]float64
	Borrow  map[string]float64
	Candles map[string]strategy.Candle
	Funding map[string]map[string]float64
}

type Day struct {
	Date   time.Time
	Rates  strategy.DayRates
	Candle strategy.Candle
}

// View is an aligned, read-only daily market history. It is safe for
// concurrent use once built.
type View struct {
	dates   []time.Time
	lend    map[string]float64
	borrow  map[string]float64
	candles map[string]strategy.Candle
	funding map[string]map[string]float64
}

// NewView keeps only the dates present in every series and validates the
// candles on those dates.
func NewView(s Series) (*View, error) {
	keys := intersectKeys(s)
	if len(keys) == 0 {
		return nil, ErrNoOverlap
	}
	v := &View{
		dates:   make([]time.Time, 0, len(keys)),
		lend:    make(map[string]float64, len(keys)),
		borrow:  make(map[string]float64, len(keys)),
		candles: make(map[string]strategy.Candle, len(keys)),
		funding: make(map[string]map[string]float64, len(s.Funding)),
	}
	for venue := range s.Funding {
		v.funding[venue] = make(map[string]float64, len(keys))
	}
	for _, key := range keys {
		date, err := ParseDate(key)
		if err != nil {
			return nil, err
		}
		candle, err := normalizeCandle(s.Candles[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		v.dates = append(v.dates, date)
		v.lend[key] = s.Lend[key]
		v.borrow[key] = s.Borrow[key]
		v.candles[key] = candle
		for venue, rates := range s.Funding {
			v.funding[venue][key] = rates[key]
		}
	}
	return v, nil
}

func intersectKeys(s Series) []string {
	var keys []string
	for key := range s.Candles {
		if _, ok := s.Lend[key]; !ok {
			continue
		}
		if _, ok := s.Borrow[key]; !ok {
			continue
		}
		missing := false
		for _, rates := range s.Funding {
			if _, ok := rates[key]; !ok {
				missing = true
				break
			}
		}
		if !missing {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (v *View) Dates() []time.Time {
	out := make([]time.Time, len(v.dates))
	copy(out, v.dates)
	return out
}

func (v *View) Len() int {
	return len(v.dates)
}

func (v *View) Venues() []string {
	out := make([]string, 0, len(v.funding))
	for venue := range v.funding {
		out = append(out, venue)
	}
	sort.Strings(out)
	return out
}

// Day returns the rates and candle for date with venue's funding. A date
// outside the view is an error, never a zero-rate day.
func (v *View) Day(date time.Time, venue string) (Day, error) {
	rates, ok := v.funding[venue]
	if !ok {
		return Day{}, fmt.Errorf("%s: %w", venue, ErrUnknownFundingSource)
	}
	key := DateKey(date)
	candle, ok := v.candles[key]
	if !ok {
		return Day{}, fmt.Errorf("%s: %w", key, ErrMissingDate)
	}
	day, _ := ParseDate(key)
	return Day{
		Date: day,
		Rates: strategy.DayRates{
			LendAPY:   v.lend[key],
			BorrowAPY: v.borrow[key],
			Funding:   rates[key],
		},
		Candle: candle,
	}, nil
}

// Slice returns the sub-view between from and to inclusive. Zero bounds are
// open.
func (v *View) Slice(from, to time.Time) (*View, error) {
	out := &View{
		lend:    make(map[string]float64),
		borrow:  make(map[string]float64),
		candles: make(map[string]strategy.Candle),
		funding: make(map[string]map[string]float64, len(v.funding)),
	}
	for venue := range v.funding {
		out.funding[venue] = make(map[string]float64)
	}
	for _, d := range v.dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		key := DateKey(d)
		out.dates = append(out.dates, d)
		out.lend[key] = v.lend[key]
		out.borrow[key] = v.borrow[key]
		out.candles[key] = v.candles[key]
		for venue, rates := range v.funding {
			out.funding[venue][key] = rates[key]
		}
	}
	if len(out.dates) == 0 {
		return nil, ErrNoOverlap
	}
	return out, nil
}

// Series exports the aligned data back into raw form.
func (v *View) Series() Series {
	s := Series{
		Lend:    make(map[string]float64, len(v.dates)),
		Borrow:  make(map[string]float64, len(v.dates)),
		Candles: make(map[string]strategy.Candle, len(v.dates)),
		Funding: make(map[string]map[string]float64, len(v.funding)),
	}
	for venue := range v.funding {
		s.Funding[venue] = make(map[string]float64, len(v.dates))
	}
	for _, d := range v.dates {
		key := DateKey(d)
		s.Lend[key] = v.lend[key]
		s.Borrow[key] = v.borrow[key]
		s.Candles[key] = v.candles[key]
		for venue, rates := range v.funding {
			s.Funding[venue][key] = rates[key]
		}
	}
	return s
}

func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
