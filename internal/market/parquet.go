package market

import (
	"fmt"
	"os"
	"path/filepath"

	"carry-backtest/internal/strategy"

	"github.com/parquet-go/parquet-go"
)

const (
	daysParquetFile    = "days.parquet"
	fundingParquetFile = "funding.parquet"
)

type DayRecord struct {
	Date      string  `parquet:"date"`
	LendAPY   float64 `parquet:"lend_apy"`
	BorrowAPY float64 `parquet:"borrow_apy"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
}

type FundingRecord struct {
	Date  string  `parquet:"date"`
	Venue string  `parquet:"venue"`
	Rate  float64 `parquet:"rate"`
}

// WriteParquet stores an aligned view as two files under dir.
func WriteParquet(dir string, v *View) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	days := make([]DayRecord, 0, len(v.dates))
	var funding []FundingRecord
	venues := v.Venues()
	for _, d := range v.dates {
		key := DateKey(d)
		c := v.candles[key]
		days = append(days, DayRecord{
			Date:      key,
			LendAPY:   v.lend[key],
			BorrowAPY: v.borrow[key],
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
		})
		for _, venue := range venues {
			funding = append(funding, FundingRecord{Date: key, Venue: venue, Rate: v.funding[venue][key]})
		}
	}
	if err := parquet.WriteFile(filepath.Join(dir, daysParquetFile), days); err != nil {
		return fmt.Errorf("write %s: %w", daysParquetFile, err)
	}
	if err := parquet.WriteFile(filepath.Join(dir, fundingParquetFile), funding); err != nil {
		return fmt.Errorf("write %s: %w", fundingParquetFile, err)
	}
	return nil
}

// LoadParquet reads files written by WriteParquet.
func LoadParquet(dir string) (*View, error) {
	days, err := parquet.ReadFile[DayRecord](filepath.Join(dir, daysParquetFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", daysParquetFile, err)
	}
	funding, err := parquet.ReadFile[FundingRecord](filepath.Join(dir, fundingParquetFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fundingParquetFile, err)
	}
	s := Series{
		Lend:    make(map[string]float64, len(days)),
		Borrow:  make(map[string]float64, len(days)),
		Candles: make(map[string]strategy.Candle, len(days)),
		Funding: make(map[string]map[string]float64),
	}
	for _, d := range days {
		s.Lend[d.Date] = d.LendAPY
		s.Borrow[d.Date] = d.BorrowAPY
		s.Candles[d.Date] = strategy.Candle{Open: d.Open, High: d.High, Low: d.Low, Close: d.Close}
	}
	for _, f := range funding {
		rates, ok := s.Funding[f.Venue]
		if !ok {
			rates = make(map[string]float64)
			s.Funding[f.Venue] = rates
		}
		rates[f.Date] = f.Rate
	}
	return NewView(s)
}
