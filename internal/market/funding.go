package market

import (
	"errors"
	"fmt"

	"carry-backtest/internal/strategy"
)

const (
	GranularityHourly = "hourly"
	GranularityDaily  = "daily"
)

// parseFundingRecords turns a list of funding records into daily rates.
// Hourly records are summed per UTC day; daily records are taken as is.
func parseFundingRecords(payload any, granularity string) (map[string]float64, error) {
	records, ok := toSlice(payload)
	if !ok {
		return nil, errors.New("funding payload is not a list")
	}
	out := make(map[string]float64)
	for i, item := range records {
		rec, ok := toMap(item)
		if !ok {
			continue
		}
		key, ok := dateKeyFromMap(rec, "date", "time", "timestamp", "t")
		if !ok {
			return nil, fmt.Errorf("funding record %d has no timestamp", i)
		}
		rate, ok := lookupFloat(rec, "rate", "fundingRate", "funding")
		if !ok {
			continue
		}
		switch granularity {
		case GranularityHourly:
			out[key] += rate
		case GranularityDaily:
			out[key] = rate
		default:
			return nil, fmt.Errorf("unknown funding granularity %q", granularity)
		}
	}
	return out, nil
}

// parseRateRecords reads daily APY records such as DefiLlama pool history.
// A null rate counts as zero.
func parseRateRecords(payload any, rateKeys ...string) (map[string]float64, error) {
	records, ok := toSlice(payload)
	if !ok {
		return nil, errors.New("rate payload is not a list")
	}
	out := make(map[string]float64, len(records))
	for i, item := range records {
		rec, ok := toMap(item)
		if !ok {
			continue
		}
		key, ok := dateKeyFromMap(rec, "timestamp", "date", "time")
		if !ok {
			return nil, fmt.Errorf("rate record %d has no timestamp", i)
		}
		out[key] = floatFromMap(rec, rateKeys...)
	}
	return out, nil
}

// parseHourlyRateRecords averages hourly rate buckets into daily values.
func parseHourlyRateRecords(payload any, rateKey string) (map[string]float64, error) {
	records, ok := toSlice(payload)
	if !ok {
		return nil, errors.New("hourly rate payload is not a list")
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, item := range records {
		rec, ok := toMap(item)
		if !ok {
			continue
		}
		key, ok := dateKeyFromMap(rec, "hourBucket", "timestamp", "time")
		if !ok {
			return nil, fmt.Errorf("hourly rate record %d has no timestamp", i)
		}
		sums[key] += floatFromMap(rec, rateKey)
		counts[key]++
	}
	out := make(map[string]float64, len(sums))
	for key, sum := range sums {
		out[key] = sum / float64(counts[key])
	}
	return out, nil
}

func parseCandleRecords(payload any) (map[string]strategy.Candle, error) {
	records, ok := toSlice(payload)
	if !ok {
		return nil, errors.New("candle payload is not a list")
	}
	out := make(map[string]strategy.Candle, len(records))
	for i, item := range records {
		rec, ok := toMap(item)
		if !ok {
			continue
		}
		key, ok := dateKeyFromMap(rec, "t", "time", "timestamp", "date")
		if !ok {
			return nil, fmt.Errorf("candle record %d has no timestamp", i)
		}
		out[key] = strategy.Candle{
			Open:  floatFromMap(rec, "o", "open"),
			High:  floatFromMap(rec, "h", "high"),
			Low:   floatFromMap(rec, "l", "low"),
			Close: floatFromMap(rec, "c", "close"),
		}
	}
	return out, nil
}
