package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig          `yaml:"log"`
	Data      DataConfig             `yaml:"data"`
	Run       RunConfig              `yaml:"run"`
	Fees      FeesConfig             `yaml:"fees"`
	Venues    map[string]VenueConfig `yaml:"venues"`
	Sweep     SweepConfig            `yaml:"sweep"`
	State     StateConfig            `yaml:"state"`
	Timescale TimescaleConfig        `yaml:"timescale"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Telegram  TelegramConfig         `yaml:"telegram"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DataConfig struct {
	Dir                  string                `yaml:"dir"`
	Format               string                `yaml:"format"`
	LendingFile          string                `yaml:"lending_file"`
	BorrowingFile        string                `yaml:"borrowing_file"`
	LendingOverlayFile   string                `yaml:"lending_overlay_file"`
	BorrowingOverlayFile string                `yaml:"borrowing_overlay_file"`
	CandlesFile          string                `yaml:"candles_file"`
	Funding              []FundingSourceConfig `yaml:"funding"`
	Start                string                `yaml:"start"`
	End                  string                `yaml:"end"`
}

type FundingSourceConfig struct {
	Venue       string `yaml:"venue"`
	File        string `yaml:"file"`
	Granularity string `yaml:"granularity"`
}

type RunConfig struct {
	Venue            string  `yaml:"venue"`
	InitialCapital   float64 `yaml:"initial_capital"`
	Leverage         float64 `yaml:"leverage"`
	RebalanceTrigger float64 `yaml:"rebalance_trigger"`
	MinTransferUSD   float64 `yaml:"min_transfer_usd"`
	APYThreshold     float64 `yaml:"apy_threshold"`
	LiqBufferPct     float64 `yaml:"liq_buffer_pct"`
	LookbackDays     int     `yaml:"lookback_days"`
	Gated            *bool   `yaml:"gated"`
	APYExit          *bool   `yaml:"apy_exit"`
	ProximityExit    *bool   `yaml:"proximity_exit"`
	Rebalance        *bool   `yaml:"rebalance"`

	// TriggerDefaulted is set when rebalance_trigger was left unset and
	// derived from leverage.
	TriggerDefaulted bool `yaml:"-"`
}

type FeesConfig struct {
	OriginationBps     float64 `yaml:"origination_bps"`
	GasUSD             float64 `yaml:"gas_usd"`
	SlippageMultiplier float64 `yaml:"slippage_multiplier"`
}

// VenueConfig overrides a built-in venue or defines a new one. Unset fields
// keep the built-in value; an explicit 0 is applied.
type VenueConfig struct {
	TakerFeeBps       *float64 `yaml:"taker_fee_bps"`
	MaintenanceMargin *float64 `yaml:"maintenance_margin"`
	PenaltyModel      string   `yaml:"penalty_model"`
	PenaltyFraction   *float64 `yaml:"penalty_fraction"`
	TransferCostUSD   *float64 `yaml:"transfer_cost_usd"`
}

type SweepConfig struct {
	Workers    int       `yaml:"workers"`
	Capitals   []float64 `yaml:"capitals"`
	Leverages  []float64 `yaml:"leverages"`
	Venues     []string  `yaml:"venues"`
	Thresholds []float64 `yaml:"thresholds"`
	Triggers   []float64 `yaml:"triggers"`
}

type StateConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func boolPtr(v bool) *bool {
	return &v
}

func BoolValue(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func FloatValue(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.Format == "" {
		cfg.Data.Format = "json"
	}
	if cfg.Data.LendingFile == "" {
		cfg.Data.LendingFile = "kamino_sol_lending_rates.json"
	}
	if cfg.Data.BorrowingFile == "" {
		cfg.Data.BorrowingFile = "kamino_usdc_borrowing_rates.json"
	}
	if cfg.Data.CandlesFile == "" {
		cfg.Data.CandlesFile = "sol_daily_candles.json"
	}
	if len(cfg.Data.Funding) == 0 {
		cfg.Data.Funding = []FundingSourceConfig{
			{Venue: "hyperliquid", File: "sol_funding_history.json", Granularity: "hourly"},
			{Venue: "drift", File: "drift_sol_funding_history.json", Granularity: "daily"},
		}
	}
	for i := range cfg.Data.Funding {
		if cfg.Data.Funding[i].Granularity == "" {
			cfg.Data.Funding[i].Granularity = "daily"
		}
	}
	if cfg.Run.Venue == "" {
		cfg.Run.Venue = "hyperliquid"
	}
	if cfg.Run.InitialCapital == 0 {
		cfg.Run.InitialCapital = 10_000
	}
	if cfg.Run.Leverage == 0 {
		cfg.Run.Leverage = 3
	}
	if cfg.Run.RebalanceTrigger == 0 {
		cfg.Run.RebalanceTrigger = 2 * cfg.Run.Leverage
		cfg.Run.TriggerDefaulted = true
	}
	if cfg.Run.MinTransferUSD == 0 {
		cfg.Run.MinTransferUSD = 5
	}
	if cfg.Run.APYThreshold == 0 {
		cfg.Run.APYThreshold = 10
	}
	if cfg.Run.LiqBufferPct == 0 {
		cfg.Run.LiqBufferPct = 10
	}
	if cfg.Run.LookbackDays == 0 {
		cfg.Run.LookbackDays = 7
	}
	if cfg.Run.Gated == nil {
		cfg.Run.Gated = boolPtr(true)
	}
	if cfg.Run.APYExit == nil {
		cfg.Run.APYExit = boolPtr(true)
	}
	if cfg.Run.ProximityExit == nil {
		cfg.Run.ProximityExit = boolPtr(true)
	}
	if cfg.Run.Rebalance == nil {
		cfg.Run.Rebalance = boolPtr(true)
	}
	if cfg.Fees.OriginationBps == 0 {
		cfg.Fees.OriginationBps = 15
	}
	if cfg.Fees.GasUSD == 0 {
		cfg.Fees.GasUSD = 2
	}
	if cfg.Sweep.Workers <= 0 {
		cfg.Sweep.Workers = 4
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/carry-backtest.db"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Metrics.Enabled == nil {
		cfg.Metrics.Enabled = boolPtr(false)
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CARRY_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CARRY_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CARRY_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("CARRY_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Data.Format {
	case "json", "parquet":
	default:
		return fmt.Errorf("data.format %q must be json or parquet", cfg.Data.Format)
	}
	for _, src := range cfg.Data.Funding {
		if strings.TrimSpace(src.Venue) == "" || strings.TrimSpace(src.File) == "" {
			return errors.New("data.funding entries need venue and file")
		}
		if src.Granularity != "hourly" && src.Granularity != "daily" {
			return fmt.Errorf("data.funding %s granularity %q must be hourly or daily", src.Venue, src.Granularity)
		}
	}
	if err := validateDates(cfg.Data.Start, cfg.Data.End); err != nil {
		return err
	}
	if cfg.Run.InitialCapital <= 0 {
		return errors.New("run.initial_capital must be > 0")
	}
	if cfg.Run.Leverage <= 1 {
		return errors.New("run.leverage must be > 1")
	}
	if cfg.Run.LookbackDays < 1 {
		return errors.New("run.lookback_days must be >= 1")
	}
	if cfg.Run.LiqBufferPct < 0 {
		return errors.New("run.liq_buffer_pct must be >= 0")
	}
	if cfg.Fees.OriginationBps < 0 || cfg.Fees.GasUSD < 0 || cfg.Fees.SlippageMultiplier < 0 {
		return errors.New("fees must be >= 0")
	}
	for _, c := range cfg.Sweep.Capitals {
		if c <= 0 {
			return errors.New("sweep.capitals must be > 0")
		}
	}
	for _, l := range cfg.Sweep.Leverages {
		if l <= 1 {
			return errors.New("sweep.leverages must be > 1")
		}
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

func validateDates(start, end string) error {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = time.Parse(time.DateOnly, start); err != nil {
			return fmt.Errorf("data.start: %w", err)
		}
	}
	if end != "" {
		if to, err = time.Parse(time.DateOnly, end); err != nil {
			return fmt.Errorf("data.end: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return errors.New("data.end is before data.start")
	}
	return nil
}
