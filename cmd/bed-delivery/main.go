// Command bed-delivery replays best-efforts-delivery transaction logs.
//
// It polls the transaction log table, re-executes each eligible statement on
// the data source it was recorded for, removes delivered logs and counts
// failed attempts. Run one instance per table, or several with -lock-name.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/cmd/internal/backend"
	"github.com/velmie/softtx/logging"
	"github.com/velmie/softtx/rdb"
)

const exitUsage = 2

type dataSourceFlag map[string]string

func (f dataSourceFlag) String() string {
	pairs := make([]string, 0, len(f))
	for name, dsn := range f {
		pairs = append(pairs, name+"="+dsn)
	}

	return strings.Join(pairs, ",")
}

func (f dataSourceFlag) Set(value string) error {
	name, dsn, ok := strings.Cut(value, "=")
	if !ok || name == "" || dsn == "" {
		return fmt.Errorf("expected name=dsn, got %q", value)
	}
	if _, dup := f[name]; dup {
		return fmt.Errorf("data source %q given twice", name)
	}
	f[name] = dsn

	return nil
}

type config struct {
	store          backend.Options
	dataSources    dataSourceFlag
	settingsPath   string
	maxTries       int
	batchSize      int
	minDelay       time.Duration
	pollInterval   time.Duration
	parallelism    int
	replayTimeout  time.Duration
	lockName       string
	purgeRetention time.Duration
	purgeEvery     time.Duration
	once           bool
	log            logging.FileConfig
}

func main() {
	cfg := config{dataSources: dataSourceFlag{}}

	flag.StringVar(&cfg.store.Kind, "backend", backend.KindSQL, "Store backend: rdb or gorm")
	flag.StringVar(&cfg.store.Driver, "driver", "mysql", "Database driver of the log store: mysql or sqlite3")
	flag.StringVar(&cfg.store.DSN, "dsn", "", "Log store DSN, e.g. user:pass@tcp(host:3306)/db")
	flag.StringVar(&cfg.store.Table, "table", "transaction_log", "Transaction log table name")
	flag.BoolVar(&cfg.store.Migrate, "migrate", false, "Create the table if missing")
	flag.Var(cfg.dataSources, "datasource", "Replay target as name=dsn (MySQL), repeatable")
	flag.StringVar(&cfg.settingsPath, "settings", "", "JSON file with executor settings; overrides the flags below")
	flag.IntVar(&cfg.maxTries, "max-tries", 3, "Retry ceiling per log")
	flag.IntVar(&cfg.batchSize, "batch", 100, "Logs selected per cycle")
	flag.DurationVar(&cfg.minDelay, "min-delay", time.Minute, "Minimum log age before the first retry")
	flag.DurationVar(&cfg.pollInterval, "poll", 5*time.Second, "Delay between cycles")
	flag.IntVar(&cfg.parallelism, "parallelism", 1, "Concurrent replays per cycle")
	flag.DurationVar(&cfg.replayTimeout, "replay-timeout", 0, "Timeout of a single replay (0 disables)")
	flag.StringVar(&cfg.lockName, "lock-name", "", "MySQL advisory lock guarding each cycle, mysql driver only (optional)")
	flag.DurationVar(&cfg.purgeRetention, "purge-retention", 0, "Delete exhausted logs older than this (0 keeps them)")
	flag.DurationVar(&cfg.purgeEvery, "purge-every", time.Hour, "How often to purge exhausted logs")
	flag.BoolVar(&cfg.once, "once", false, "Run a single cycle and exit")
	flag.StringVar(&cfg.log.Level, "log-level", "info", "Log level")
	flag.StringVar(&cfg.log.Path, "log-file", "", "Rotating log file (stdout when empty)")
	flag.Parse()

	if cfg.store.DSN == "" || len(cfg.dataSources) == 0 {
		fmt.Fprintln(os.Stderr, "dsn and at least one datasource are required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	zl, err := logging.NewZapLogger(cfg.log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewZap(zl)

	store, err := backend.Open(ctx, cfg.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	targets, err := openDataSources(cfg.dataSources)
	if err != nil {
		return err
	}
	defer closeAll(targets)

	opts, err := executorOptions(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.lockName != "" {
		locker, err := rdb.NewAdvisoryLocker(store.DB, cfg.lockName)
		if err != nil {
			return err
		}
		opts = append(opts, softtx.WithLocker(locker))
	}

	metrics := softtx.NewCounterMetrics()
	opts = append(opts, softtx.WithMetrics(metrics))

	resolver := make(softtx.DataSources, len(targets))
	for name, db := range targets {
		resolver[name] = db
	}
	executor := softtx.NewDeliveryExecutor(store.Store, softtx.Strategies{
		softtx.TypeBestEffortsDelivery: softtx.NewBestEffortsDelivery(resolver),
	}, opts...)

	if cfg.once {
		result, err := executor.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("delivery cycle: %w", err)
		}
		zl.Info("delivery cycle done",
			zap.Int("selected", result.Selected),
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", result.Failed),
			zap.Int("exhausted", result.Exhausted),
			zap.Bool("skipped", result.Skipped),
		)

		return nil
	}

	purgeDone := make(chan struct{})
	if cfg.purgeRetention > 0 {
		maintainer, err := purgeMaintainer(cfg, store, executor.Config().MaxDeliveryTryTimes, logger)
		if err != nil {
			return err
		}
		go func() {
			defer close(purgeDone)
			if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("softtx purge stopped", "err", err)
			}
		}()
	} else {
		close(purgeDone)
	}

	err = executor.Run(ctx)
	<-purgeDone
	snap := metrics.Snapshot()
	zl.Info("bed-delivery stopped",
		zap.Int64("cycles", snap.Cycles),
		zap.Int64("delivered", snap.Delivered),
		zap.Int64("failed", snap.Failed),
		zap.Int64("exhausted", snap.Exhausted),
		zap.Int64("cycle_errors", snap.CycleErrors),
	)

	return err
}

func executorOptions(cfg config, logger softtx.Logger) ([]softtx.Option, error) {
	opts := []softtx.Option{
		softtx.WithMaxDeliveryTryTimes(cfg.maxTries),
		softtx.WithBatchSize(cfg.batchSize),
		softtx.WithMinDelay(cfg.minDelay),
		softtx.WithPollInterval(cfg.pollInterval),
		softtx.WithParallelism(cfg.parallelism),
		softtx.WithReplayTimeout(cfg.replayTimeout),
		softtx.WithPendingInterval(time.Minute),
		softtx.WithLogger(logger),
		softtx.WithErrorHandler(func(_ context.Context, log softtx.TransactionLog, err error) {
			logger.Debug("softtx replay error", "id", log.ID, "statement", log.ExecuteStatement, "err", err)
		}),
	}
	if cfg.settingsPath == "" {
		return opts, nil
	}

	settings, err := readSettings(cfg.settingsPath)
	if err != nil {
		return nil, err
	}

	return append(opts, settings.Options()...), nil
}

func readSettings(path string) (softtx.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return softtx.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var settings softtx.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return softtx.Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	return settings, nil
}

func purgeMaintainer(cfg config, store *backend.Backend, maxTries int, logger softtx.Logger) (*rdb.PurgeMaintainer, error) {
	mcfg := rdb.PurgeMaintainerConfig{
		MaxDeliveryTryTimes: maxTries,
		Retention:           cfg.purgeRetention,
		CheckEvery:          cfg.purgeEvery,
		Logger:              logger,
	}
	if cfg.lockName != "" {
		locker, err := rdb.NewAdvisoryLocker(store.DB, cfg.lockName+":purge")
		if err != nil {
			return nil, err
		}
		mcfg.Locker = locker
	}

	return rdb.NewPurgeMaintainer(store.SQL, mcfg)
}

func openDataSources(dsns dataSourceFlag) (map[string]*sql.DB, error) {
	targets := make(map[string]*sql.DB, len(dsns))
	for name, dsn := range dsns {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			closeAll(targets)

			return nil, fmt.Errorf("open data source %s: %w", name, err)
		}
		targets[name] = db
	}

	return targets, nil
}

func closeAll(dbs map[string]*sql.DB) {
	for _, db := range dbs {
		_ = db.Close()
	}
}
