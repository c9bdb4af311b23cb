package state

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"carry-backtest/internal/report"
	"carry-backtest/internal/sim"
	"carry-backtest/internal/strategy"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const runKeyPrefix = "run:"

var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted form of a finished simulation.
type RunRecord struct {
	ID               string                 `msgpack:"id"`
	Label            string                 `msgpack:"label"`
	Venue            string                 `msgpack:"venue"`
	CreatedAtMS      int64                  `msgpack:"created_at_ms"`
	InitialCapital   float64                `msgpack:"initial_capital"`
	Leverage         float64                `msgpack:"leverage"`
	RebalanceTrigger float64                `msgpack:"rebalance_trigger"`
	Rebalance        bool                   `msgpack:"rebalance"`
	APYThreshold     float64                `msgpack:"apy_threshold"`
	LiqBufferPct     float64                `msgpack:"liq_buffer_pct"`
	Gated            bool                   `msgpack:"gated"`
	Summary          report.Summary         `msgpack:"summary"`
	Events           []strategy.Event       `msgpack:"events"`
	Daily            []strategy.DailyEquity `msgpack:"daily"`
}

// NewRunRecord assigns a fresh ID to res.
func NewRunRecord(label string, res *sim.Result, now time.Time) RunRecord {
	p := res.Params
	return RunRecord{
		ID:               uuid.NewString(),
		Label:            label,
		Venue:            res.Venue,
		CreatedAtMS:      now.UnixMilli(),
		InitialCapital:   p.InitialCapital,
		Leverage:         p.Leverage,
		RebalanceTrigger: p.RebalanceTrigger,
		Rebalance:        p.Rebalance,
		APYThreshold:     p.Policy.APYThreshold,
		LiqBufferPct:     p.Policy.LiqBufferPct,
		Gated:            p.Policy.Gated,
		Summary:          res.Summary,
		Events:           res.Events,
		Daily:            res.Daily,
	}
}

func runKey(id string) string {
	return runKeyPrefix + id
}

func SaveRun(ctx context.Context, store Store, rec RunRecord) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&rec); err != nil {
		return err
	}
	return store.Set(ctx, runKey(rec.ID), buf.Bytes())
}

func LoadRun(ctx context.Context, store Store, id string) (RunRecord, error) {
	if store == nil {
		return RunRecord{}, ErrRunNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, runKey(id))
	if err != nil {
		return RunRecord{}, err
	}
	if !ok || len(raw) == 0 {
		return RunRecord{}, ErrRunNotFound
	}
	var rec RunRecord
	if err := msgpack.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// ListRuns returns stored run IDs in key order.
func ListRuns(ctx context.Context, store Store) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	keys, err := store.Keys(ctx, runKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, runKeyPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

func DeleteRun(ctx context.Context, store Store, id string) error {
	if store == nil {
		return nil
	}
	return store.Delete(ctx, runKey(id))
}
