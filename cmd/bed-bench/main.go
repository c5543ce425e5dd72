// Command bed-bench measures delivery executor throughput against a chosen
// store backend. Replays go to a fake target that fails a configurable share
// of statements, so the numbers reflect store and executor cost only.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/cmd/internal/backend"
	"github.com/velmie/softtx/logging"
	"github.com/velmie/softtx/memory"
	"github.com/velmie/softtx/pebblestore"
)

const (
	storeMemory = "memory"
	storePebble = "pebble"

	defaultRecords     = 10000
	defaultBatchSize   = 100
	defaultParallelism = 4
	defaultMaxTries    = 3
	percentileP50      = 0.50
	percentileP95      = 0.95
	percentileP99      = 0.99
)

var (
	errRecordsInvalid   = errors.New("bed-bench: records must be positive")
	errFailRatioInvalid = errors.New("bed-bench: fail-ratio must be within [0, 1]")
	errUnknownStore     = errors.New("bed-bench: unknown store")
	errReplayFailed     = errors.New("bed-bench: simulated replay failure")
	errLeftover         = errors.New("bed-bench: logs left eligible after drain")
)

type benchConfig struct {
	store       string
	sqlStore    backend.Options
	dir         string
	records     int
	batchSize   int
	parallelism int
	maxTries    int
	failRatio   float64
	seed        int64
	jsonOut     bool
}

type result struct {
	Store         string        `json:"store"`
	Records       int           `json:"records"`
	Parallelism   int           `json:"parallelism"`
	BatchSize     int           `json:"batch_size"`
	FailRatio     float64       `json:"fail_ratio"`
	SeedDuration  time.Duration `json:"seed_duration"`
	RunDuration   time.Duration `json:"run_duration"`
	Throughput    float64       `json:"throughput_logs_per_sec"`
	Cycles        int64         `json:"cycles"`
	Delivered     int64         `json:"delivered"`
	Failed        int64         `json:"failed"`
	Exhausted     int64         `json:"exhausted"`
	CycleP50Ms    float64       `json:"cycle_p50_ms"`
	CycleP95Ms    float64       `json:"cycle_p95_ms"`
	CycleP99Ms    float64       `json:"cycle_p99_ms"`
	CycleMaxMs    float64       `json:"cycle_max_ms"`
	GoHeapAlloc   uint64        `json:"go_heap_alloc_bytes"`
	GoTotalAlloc  uint64        `json:"go_total_alloc_bytes"`
	GoNumGC       uint32        `json:"go_num_gc"`
	GoMaxProcs    int           `json:"go_max_procs"`
	CycleErrors   int64         `json:"cycle_errors"`
	PendingAtExit int64         `json:"pending_at_exit"`
}

func main() {
	var cfg benchConfig
	flag.StringVar(&cfg.store, "store", storeMemory, "Store under test: memory, pebble, rdb or gorm")
	flag.StringVar(&cfg.sqlStore.Driver, "driver", "sqlite3", "Database driver for rdb and gorm stores: mysql or sqlite3")
	flag.StringVar(&cfg.sqlStore.DSN, "dsn", "file:bench.db", "Database DSN for rdb and gorm stores")
	flag.StringVar(&cfg.sqlStore.Table, "table", "transaction_log_bench", "Table for rdb and gorm stores")
	flag.StringVar(&cfg.dir, "dir", "", "Pebble directory (in-memory filesystem when empty)")
	flag.IntVar(&cfg.records, "records", defaultRecords, "Logs to seed")
	flag.IntVar(&cfg.batchSize, "batch", defaultBatchSize, "Logs selected per cycle")
	flag.IntVar(&cfg.parallelism, "parallelism", defaultParallelism, "Concurrent replays per cycle")
	flag.IntVar(&cfg.maxTries, "max-tries", defaultMaxTries, "Retry ceiling per log")
	flag.Float64Var(&cfg.failRatio, "fail-ratio", 0, "Share of replays that fail")
	flag.Int64Var(&cfg.seed, "seed", 1, "Random seed for failure injection")
	flag.BoolVar(&cfg.jsonOut, "json", false, "Print JSON result")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		exitErr(err)
	}
	defer func() { _ = zl.Sync() }()

	res, err := run(context.Background(), cfg, logging.NewZap(zl))
	if err != nil {
		exitErr(err)
	}

	if cfg.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			exitErr(err)
		}

		return
	}
	fmt.Printf("store=%s records=%d delivered=%d exhausted=%d cycles=%d run=%s throughput=%.0f logs/s cycle p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms\n",
		res.Store, res.Records, res.Delivered, res.Exhausted, res.Cycles, res.RunDuration,
		res.Throughput, res.CycleP50Ms, res.CycleP95Ms, res.CycleP99Ms, res.CycleMaxMs)
}

func validate(cfg benchConfig) error {
	if cfg.records <= 0 {
		return errRecordsInvalid
	}
	if cfg.failRatio < 0 || cfg.failRatio > 1 || math.IsNaN(cfg.failRatio) {
		return errFailRatioInvalid
	}

	return nil
}

func run(ctx context.Context, cfg benchConfig, logger softtx.Logger) (result, error) {
	if err := validate(cfg); err != nil {
		return result{}, err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return result{}, err
	}
	defer func() { _ = closeStore() }()

	seedStart := time.Now()
	if err := seed(ctx, store, cfg.records); err != nil {
		return result{}, err
	}
	seedDuration := time.Since(seedStart)

	metrics := newBenchMetrics()
	executor := softtx.NewDeliveryExecutor(store, newFlakyTarget(cfg.failRatio, cfg.seed),
		softtx.WithMaxDeliveryTryTimes(cfg.maxTries),
		softtx.WithBatchSize(cfg.batchSize),
		softtx.WithParallelism(cfg.parallelism),
		softtx.WithMinDelay(0),
		softtx.WithPendingInterval(time.Nanosecond),
		softtx.WithMetrics(metrics),
		softtx.WithLogger(logger),
	)

	runStart := time.Now()
	for {
		cycle, err := executor.RunOnce(ctx)
		if err != nil {
			return result{}, err
		}
		if cycle.Selected == 0 {
			break
		}
	}
	runDuration := time.Since(runStart)

	snap := metrics.Snapshot()
	if snap.Pending != 0 {
		return result{}, fmt.Errorf("%w: %d", errLeftover, snap.Pending)
	}
	samples := metrics.Samples()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return result{
		Store:         cfg.store,
		Records:       cfg.records,
		Parallelism:   cfg.parallelism,
		BatchSize:     cfg.batchSize,
		FailRatio:     cfg.failRatio,
		SeedDuration:  seedDuration,
		RunDuration:   runDuration,
		Throughput:    float64(snap.Delivered+snap.Exhausted) / runDuration.Seconds(),
		Cycles:        snap.Cycles,
		Delivered:     snap.Delivered,
		Failed:        snap.Failed,
		Exhausted:     snap.Exhausted,
		CycleP50Ms:    msFloat(percentile(samples, percentileP50)),
		CycleP95Ms:    msFloat(percentile(samples, percentileP95)),
		CycleP99Ms:    msFloat(percentile(samples, percentileP99)),
		CycleMaxMs:    msFloat(percentile(samples, 1)),
		GoHeapAlloc:   ms.HeapAlloc,
		GoTotalAlloc:  ms.TotalAlloc,
		GoNumGC:       ms.NumGC,
		GoMaxProcs:    runtime.GOMAXPROCS(0),
		CycleErrors:   snap.CycleErrors,
		PendingAtExit: snap.Pending,
	}, nil
}

func openStore(ctx context.Context, cfg benchConfig, logger softtx.Logger) (softtx.Store, func() error, error) {
	switch cfg.store {
	case storeMemory:
		return memory.NewStore(), func() error { return nil }, nil
	case storePebble:
		dir := cfg.dir
		opts := []pebblestore.Option{pebblestore.WithLogger(logger)}
		if dir == "" {
			dir = "bench"
			opts = append(opts, pebblestore.WithFS(vfs.NewMem()))
		}
		store, err := pebblestore.Open(dir, opts...)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	case backend.KindSQL, backend.KindGorm:
		opts := cfg.sqlStore
		opts.Kind = cfg.store
		opts.Migrate = true
		b, err := backend.Open(ctx, opts)
		if err != nil {
			return nil, nil, err
		}

		return b.Store, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownStore, cfg.store)
	}
}

func seed(ctx context.Context, store softtx.Store, records int) error {
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(softtx.ClockFunc(func() time.Time {
		return time.Now().Add(-time.Hour)
	})))
	for i := 0; i < records; i++ {
		_, err := recorder.Record(ctx, softtx.Operation{
			Type:           softtx.TypeBestEffortsDelivery,
			DataSourceName: fmt.Sprintf("ds_%d", i%2),
			Statement:      "INSERT INTO t_order (order_id, user_id, status) VALUES (?, ?, ?)",
			Parameters:     []any{int64(i), int64(i % 10), "INIT"},
		})
		if err != nil {
			return fmt.Errorf("seed log %d: %w", i, err)
		}
	}

	return nil
}

// flakyTarget fails a fixed share of replays. The same log id always gets the
// same verdict so failing logs run to exhaustion.
type flakyTarget struct {
	mu      sync.Mutex
	rng     *rand.Rand
	ratio   float64
	verdict map[string]bool
}

func newFlakyTarget(ratio float64, seed int64) *flakyTarget {
	return &flakyTarget{
		rng:     rand.New(rand.NewSource(seed)),
		ratio:   ratio,
		verdict: make(map[string]bool),
	}
}

func (f *flakyTarget) Replay(_ context.Context, log softtx.TransactionLog) error {
	f.mu.Lock()
	fail, ok := f.verdict[log.ID]
	if !ok {
		fail = f.rng.Float64() < f.ratio
		f.verdict[log.ID] = fail
	}
	f.mu.Unlock()

	if fail {
		return &softtx.ReplayExecutionError{LogID: log.ID, DataSourceName: log.DataSourceName, Err: errReplayFailed}
	}

	return nil
}

type benchMetrics struct {
	*softtx.CounterMetrics

	mu      sync.Mutex
	samples []time.Duration
}

func newBenchMetrics() *benchMetrics {
	return &benchMetrics{CounterMetrics: softtx.NewCounterMetrics()}
}

func (m *benchMetrics) ObserveCycleDuration(d time.Duration) {
	m.CounterMetrics.ObserveCycleDuration(d)
	m.mu.Lock()
	m.samples = append(m.samples, d)
	m.mu.Unlock()
}

// Samples returns the cycle durations sorted ascending.
func (m *benchMetrics) Samples() []time.Duration {
	m.mu.Lock()
	out := append([]time.Duration(nil), m.samples...)
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
