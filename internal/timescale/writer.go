package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carry-backtest/internal/config"
	"carry-backtest/internal/state"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 30 * time.Second
	ddlTimeout   = 5 * time.Second
)

// Writer exports finished runs to TimescaleDB. A nil *Writer is valid and
// writes nothing.
type Writer struct {
	db     *sql.DB
	log    *zap.Logger
	schema string
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), ddlTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	writer := &Writer{db: db, log: log, schema: schema}
	if err := writer.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	for _, stmt := range schemaStatements(w.schema) {
		if err := w.exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"daily_equity", "run_events"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", table(w.schema, name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func schemaStatements(schema string) []string {
	var stmts []string
	if schema != "public" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		label TEXT NOT NULL,
		venue TEXT NOT NULL,
		initial_capital DOUBLE PRECISION NOT NULL,
		leverage DOUBLE PRECISION NOT NULL,
		apy_threshold DOUBLE PRECISION NOT NULL,
		final_capital DOUBLE PRECISION NOT NULL,
		annualized_return_pct DOUBLE PRECISION NOT NULL,
		max_drawdown_pct DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		carry DOUBLE PRECISION NOT NULL,
		funding DOUBLE PRECISION NOT NULL,
		penalties DOUBLE PRECISION NOT NULL,
		liquidations INTEGER NOT NULL,
		rebalances INTEGER NOT NULL
	)`, table(schema, "run_summaries")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		state TEXT NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, run_id)
	)`, table(schema, "daily_equity")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		leg TEXT NOT NULL,
		reason TEXT NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		penalty DOUBLE PRECISION NOT NULL,
		transfer DOUBLE PRECISION NOT NULL,
		notional DOUBLE PRECISION NOT NULL,
		long_equity DOUBLE PRECISION NOT NULL,
		short_equity DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, run_id, seq)
	)`, table(schema, "run_events")),
	)
	return stmts
}

// WriteRun stores a run's summary, equity curve and events in one
// transaction.
func (w *Writer) WriteRun(ctx context.Context, rec state.RunRecord) error {
	if w == nil || w.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	s := rec.Summary
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (
		run_id, created_at, label, venue, initial_capital, leverage, apy_threshold, final_capital,
		annualized_return_pct, max_drawdown_pct, fees, carry, funding, penalties, liquidations, rebalances
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
	)`, table(w.schema, "run_summaries")),
		rec.ID,
		time.UnixMilli(rec.CreatedAtMS).UTC(),
		rec.Label,
		rec.Venue,
		rec.InitialCapital,
		rec.Leverage,
		rec.APYThreshold,
		s.FinalCapital,
		s.AnnualizedReturnPct,
		s.MaxDrawdownPct,
		s.Fees,
		s.Carry,
		s.Funding,
		s.Penalties,
		s.Liquidations,
		s.Rebalances,
	); err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}

	dailyQuery := fmt.Sprintf(`INSERT INTO %s (ts, run_id, state, equity) VALUES ($1,$2,$3,$4)`, table(w.schema, "daily_equity"))
	for _, d := range rec.Daily {
		if _, err := tx.ExecContext(ctx, dailyQuery, d.Date.UTC(), rec.ID, string(d.State), d.Equity); err != nil {
			return fmt.Errorf("insert daily equity: %w", err)
		}
	}

	eventQuery := fmt.Sprintf(`INSERT INTO %s (
		ts, run_id, seq, type, price, leg, reason, fees, penalty, transfer, notional, long_equity, short_equity
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)`, table(w.schema, "run_events"))
	for i, ev := range rec.Events {
		if _, err := tx.ExecContext(ctx, eventQuery,
			ev.Date.UTC(),
			rec.ID,
			i,
			string(ev.Type),
			ev.Price,
			string(ev.Leg),
			string(ev.Reason),
			ev.Fees,
			ev.Penalty,
			ev.Transfer,
			ev.Notional,
			ev.LongEquity,
			ev.ShortEquity,
		); err != nil {
			return fmt.Errorf("insert run event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.log.Debug("run exported to timescale",
		zap.String("run_id", rec.ID),
		zap.Int("days", len(rec.Daily)),
		zap.Int("events", len(rec.Events)),
	)
	return nil
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, ddlTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func table(schema, name string) string {
	return schema + "." + name
}
