package timescale

import (
	"context"
	"strings"
	"testing"

	"carry-backtest/internal/config"
	"carry-backtest/internal/state"

	"go.uber.org/zap"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil writer when disabled")
	}
	if err := w.WriteRun(context.Background(), state.RunRecord{ID: "x"}); err != nil {
		t.Fatalf("nil writer must be a no-op, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil writer close failed: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true, DSN: "  "}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("public")
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements for public schema, got %d", len(stmts))
	}
	for _, name := range []string{"public.run_summaries", "public.daily_equity", "public.run_events"} {
		found := false
		for _, stmt := range stmts {
			if strings.Contains(stmt, name) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a statement for %s", name)
		}
	}

	stmts = schemaStatements("carry")
	if len(stmts) != 4 || !strings.HasPrefix(stmts[0], "CREATE SCHEMA IF NOT EXISTS carry") {
		t.Fatalf("expected schema creation first, got %q", stmts[0])
	}
	if !strings.Contains(stmts[2], "carry.daily_equity") {
		t.Fatalf("expected schema-qualified tables, got %q", stmts[2])
	}
}
