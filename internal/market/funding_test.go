package market

import (
	"encoding/json"
	"testing"
)

func TestParseFundingRecordsHourlySumsByDay(t *testing.T) {
	payload := []any{
		map[string]any{"time": json.Number("1709251200000"), "fundingRate": "0.0000125"},
		map[string]any{"time": json.Number("1709254800000"), "fundingRate": "0.0000125"},
		map[string]any{"time": "2024-03-02T00:00:00Z", "fundingRate": "-0.00001"},
	}
	out, err := parseFundingRecords(payload, GranularityHourly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(out["2024-03-01"], 0.000025) {
		t.Fatalf("expected 0.000025 for 2024-03-01, got %g", out["2024-03-01"])
	}
	if !closeEnough(out["2024-03-02"], -0.00001) {
		t.Fatalf("expected -0.00001 for 2024-03-02, got %g", out["2024-03-02"])
	}
}

func TestParseFundingRecordsDaily(t *testing.T) {
	payload := []any{
		map[string]any{"date": "2024-03-01", "rate": json.Number("0.0003")},
		map[string]any{"date": "2024-03-02", "rate": 0.0001},
	}
	out, err := parseFundingRecords(payload, GranularityDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || !closeEnough(out["2024-03-01"], 0.0003) {
		t.Fatalf("unexpected daily funding %v", out)
	}
}

func TestParseFundingRecordsErrors(t *testing.T) {
	if _, err := parseFundingRecords(map[string]any{}, GranularityDaily); err == nil {
		t.Fatalf("expected error for non-list payload")
	}
	if _, err := parseFundingRecords([]any{map[string]any{"rate": 1.0}}, GranularityDaily); err == nil {
		t.Fatalf("expected error for missing timestamp")
	}
	payload := []any{map[string]any{"date": "2024-03-01", "rate": 1.0}}
	if _, err := parseFundingRecords(payload, "weekly"); err == nil {
		t.Fatalf("expected error for unknown granularity")
	}
}

func TestParseRateRecordsNullIsZero(t *testing.T) {
	payload := []any{
		map[string]any{"timestamp": "2024-03-01T00:00:00.000Z", "apyBase": json.Number("6.5")},
		map[string]any{"timestamp": "2024-03-02T00:00:00.000Z", "apyBase": nil},
	}
	out, err := parseRateRecords(payload, "apyBase")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["2024-03-01"] != 6.5 {
		t.Fatalf("expected 6.5, got %f", out["2024-03-01"])
	}
	if v, ok := out["2024-03-02"]; !ok || v != 0 {
		t.Fatalf("expected null rate as 0, got %f (ok=%v)", v, ok)
	}
}

func TestParseHourlyRateRecordsAverages(t *testing.T) {
	payload := []any{
		map[string]any{"hourBucket": "2024-03-01T00:00:00Z", "avgLendingRate": 6.0},
		map[string]any{"hourBucket": "2024-03-01T01:00:00Z", "avgLendingRate": 8.0},
		map[string]any{"hourBucket": "2024-03-02T00:00:00Z", "avgLendingRate": 5.0},
	}
	out, err := parseHourlyRateRecords(payload, "avgLendingRate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["2024-03-01"] != 7 || out["2024-03-02"] != 5 {
		t.Fatalf("unexpected daily averages %v", out)
	}
}

func TestParseCandleRecords(t *testing.T) {
	payload := []any{
		map[string]any{"t": json.Number("1709251200000"), "o": "100", "h": "110", "l": "95", "c": "105"},
	}
	out, err := parseCandleRecords(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := out["2024-03-01"]
	if c.Open != 100 || c.High != 110 || c.Low != 95 || c.Close != 105 {
		t.Fatalf("unexpected candle %+v", c)
	}
}
