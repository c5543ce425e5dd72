package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/velmie/softtx"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     benchConfig
		wantErr error
	}{
		{name: "ok", cfg: benchConfig{records: 1, failRatio: 0.5}},
		{name: "no records", cfg: benchConfig{records: 0}, wantErr: errRecordsInvalid},
		{name: "negative ratio", cfg: benchConfig{records: 1, failRatio: -0.1}, wantErr: errFailRatioInvalid},
		{name: "ratio above one", cfg: benchConfig{records: 1, failRatio: 1.5}, wantErr: errFailRatioInvalid},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := validate(test.cfg)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, percentileP50); got != 5 {
		t.Fatalf("p50: got %d", got)
	}
	if got := percentile(samples, percentileP99); got != 10 {
		t.Fatalf("p99: got %d", got)
	}
	if got := percentile(nil, percentileP50); got != 0 {
		t.Fatalf("empty: got %d", got)
	}
}

func TestFlakyTargetStableVerdict(t *testing.T) {
	target := newFlakyTarget(0.5, 7)
	log := softtx.TransactionLog{ID: "a"}

	first := target.Replay(context.Background(), log)
	for i := 0; i < 10; i++ {
		if got := target.Replay(context.Background(), log); (got == nil) != (first == nil) {
			t.Fatalf("verdict changed on attempt %d", i)
		}
	}
}

func TestRunStores(t *testing.T) {
	stores := []benchConfig{
		{store: storeMemory},
		{store: storePebble},
		{store: storePebble, dir: filepath.Join(t.TempDir(), "pebble")},
	}
	stores = append(stores, benchConfig{store: "rdb"}, benchConfig{store: "gorm"})
	stores[3].sqlStore.Driver, stores[3].sqlStore.DSN = "sqlite3", filepath.Join(t.TempDir(), "rdb.db")
	stores[4].sqlStore.Driver, stores[4].sqlStore.DSN = "sqlite3", filepath.Join(t.TempDir(), "gorm.db")

	for _, cfg := range stores {
		cfg.records = 40
		cfg.batchSize = 7
		cfg.parallelism = 3
		if cfg.sqlStore.DSN != "" {
			cfg.parallelism = 1
		}
		cfg.maxTries = 2
		cfg.failRatio = 0.25
		cfg.seed = 3
		t.Run(cfg.store, func(t *testing.T) {
			res, err := run(context.Background(), cfg, softtx.NopLogger{})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Delivered+res.Exhausted != int64(cfg.records) {
				t.Fatalf("delivered %d + exhausted %d != %d", res.Delivered, res.Exhausted, cfg.records)
			}
			if res.Failed != res.Exhausted*int64(cfg.maxTries) {
				t.Fatalf("failed %d, want %d", res.Failed, res.Exhausted*int64(cfg.maxTries))
			}
			if res.Cycles == 0 || res.CycleErrors != 0 {
				t.Fatalf("unexpected cycles: %+v", res)
			}
		})
	}
}

func TestUnknownStore(t *testing.T) {
	_, err := run(context.Background(), benchConfig{store: "redis", records: 1}, softtx.NopLogger{})
	if !errors.Is(err, errUnknownStore) {
		t.Fatalf("expected unknown store, got %v", err)
	}
}
