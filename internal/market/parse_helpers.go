package market

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	f, _ := lookupFloat(m, keys...)
	return f
}

func lookupFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timeFromAny accepts epoch seconds, milliseconds or nanoseconds.
func timeFromAny(v any) (time.Time, bool) {
	f, ok := floatFromAny(v)
	if !ok {
		return time.Time{}, false
	}
	if f <= 0 {
		return time.Time{}, false
	}
	ts := int64(f)
	switch {
	case ts > 1e15:
		return time.Unix(0, ts).UTC(), true
	case ts > 1e12:
		return time.UnixMilli(ts).UTC(), true
	default:
		return time.Unix(ts, 0).UTC(), true
	}
}

// dateKeyFromMap reads the first usable timestamp under keys and returns
// its UTC date key. Strings are taken to start with an ISO date.
func dateKeyFromMap(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if s := stringFromAny(v); s != "" {
			if len(s) >= 10 {
				if _, err := ParseDate(s[:10]); err == nil {
					return s[:10], true
				}
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				continue
			}
		}
		if t, ok := timeFromAny(v); ok {
			return DateKey(t), true
		}
	}
	return "", false
}
