package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"carry-backtest/internal/config"
)

// Load builds a view from cfg.Dir in the configured format and trims it to
// the configured date range.
func Load(cfg config.DataConfig) (*View, error) {
	var (
		view *View
		err  error
	)
	switch cfg.Format {
	case "parquet":
		view, err = LoadParquet(cfg.Dir)
	default:
		view, err = LoadJSON(cfg)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Start == "" && cfg.End == "" {
		return view, nil
	}
	var from, to time.Time
	if cfg.Start != "" {
		if from, err = ParseDate(cfg.Start); err != nil {
			return nil, err
		}
	}
	if cfg.End != "" {
		if to, err = ParseDate(cfg.End); err != nil {
			return nil, err
		}
	}
	return view.Slice(from, to)
}

// LoadJSON reads the lending, borrowing, candle and funding exports named in
// cfg. Hourly overlay files, when present, replace the base lending and
// borrowing rates on the days they cover.
func LoadJSON(cfg config.DataConfig) (*View, error) {
	lend, err := loadRates(cfg.Dir, cfg.LendingFile, "apyBase", "apy", "rate")
	if err != nil {
		return nil, err
	}
	borrow, err := loadRates(cfg.Dir, cfg.BorrowingFile, "apyBaseBorrow", "apyBorrow", "rate")
	if err != nil {
		return nil, err
	}
	if err := overlayHourly(lend, cfg.Dir, cfg.LendingOverlayFile, "avgLendingRate"); err != nil {
		return nil, err
	}
	if err := overlayHourly(borrow, cfg.Dir, cfg.BorrowingOverlayFile, "avgBorrowingRate"); err != nil {
		return nil, err
	}

	payload, err := readJSON(filepath.Join(cfg.Dir, cfg.CandlesFile))
	if err != nil {
		return nil, err
	}
	candles, err := parseCandleRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.CandlesFile, err)
	}

	funding := make(map[string]map[string]float64, len(cfg.Funding))
	for _, src := range cfg.Funding {
		payload, err := readJSON(filepath.Join(cfg.Dir, src.File))
		if err != nil {
			return nil, err
		}
		rates, err := parseFundingRecords(payload, src.Granularity)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.File, err)
		}
		funding[src.Venue] = rates
	}

	return NewView(Series{Lend: lend, Borrow: borrow, Candles: candles, Funding: funding})
}

func loadRates(dir, file string, keys ...string) (map[string]float64, error) {
	payload, err := readJSON(filepath.Join(dir, file))
	if err != nil {
		return nil, err
	}
	rates, err := parseRateRecords(unwrapData(payload), keys...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return rates, nil
}

func overlayHourly(base map[string]float64, dir, file, key string) error {
	if file == "" {
		return nil
	}
	payload, err := readJSON(filepath.Join(dir, file))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	daily, err := parseHourlyRateRecords(unwrapData(payload), key)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	for day, rate := range daily {
		base[day] = rate
	}
	return nil
}

// unwrapData accepts both a bare list and a {"data": [...]} envelope.
func unwrapData(payload any) any {
	if m, ok := toMap(payload); ok {
		if data, ok := m["data"]; ok {
			return data
		}
	}
	return payload
}

func readJSON(path string) (any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	dec := json.NewDecoder(file)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return payload, nil
}
