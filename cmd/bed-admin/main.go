// Command bed-admin inspects and repairs the transaction log table.
//
//	bed-admin -dsn ... list                 all logs with their retry state
//	bed-admin -dsn ... exhausted            logs that ran out of retries
//	bed-admin -dsn ... remove <id>...       delete logs after manual repair
//	bed-admin -dsn ... requeue <id>...      retry logs again under new ids
//	bed-admin -dsn ... purge -older-than 720h
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/cmd/internal/backend"
	"github.com/velmie/softtx/logging"
	"github.com/velmie/softtx/rdb"
)

const exitUsage = 2

var errUsage = errors.New("usage")

type config struct {
	store    backend.Options
	maxTries int
	limit    int
	asJSON   bool
	verbose  bool
}

type app struct {
	cfg       config
	backend   *backend.Backend
	inspector *softtx.Inspector
	logger    softtx.Logger
	clock     softtx.Clock
	out       io.Writer
}

func main() {
	var cfg config
	flag.StringVar(&cfg.store.Kind, "backend", backend.KindSQL, "Store backend: rdb or gorm")
	flag.StringVar(&cfg.store.Driver, "driver", "mysql", "Database driver of the log store: mysql or sqlite3")
	flag.StringVar(&cfg.store.DSN, "dsn", "", "Log store DSN, e.g. user:pass@tcp(host:3306)/db")
	flag.StringVar(&cfg.store.Table, "table", "transaction_log", "Transaction log table name")
	flag.IntVar(&cfg.maxTries, "max-tries", 3, "Retry ceiling the delivery executor runs with")
	flag.IntVar(&cfg.limit, "limit", 1000, "Max logs read per command")
	flag.BoolVar(&cfg.asJSON, "json", false, "Print logs as JSON lines")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	if cfg.store.DSN == "" || flag.NArg() == 0 {
		usage()
		os.Exit(exitUsage)
	}

	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()

	err := run(context.Background(), cfg, logging.NewZerolog(zl), os.Stdout, flag.Args())
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(exitUsage)
	}
	if err != nil {
		zl.Error().Err(err).Msg("bed-admin failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(flag.CommandLine.Output(), "usage: bed-admin [flags] list|exhausted|remove <id>...|requeue <id>...|purge [-older-than d] [-limit n]")
	flag.PrintDefaults()
}

func run(ctx context.Context, cfg config, logger softtx.Logger, out io.Writer, args []string) error {
	b, err := backend.Open(ctx, cfg.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer b.Close()

	a := &app{
		cfg:       cfg,
		backend:   b,
		inspector: softtx.NewInspector(b.Store, cfg.maxTries, softtx.SystemClock{}),
		logger:    logger,
		clock:     softtx.SystemClock{},
		out:       out,
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return a.list(ctx)
	case "exhausted":
		return a.exhausted(ctx)
	case "remove":
		return a.remove(ctx, rest)
	case "requeue":
		return a.requeue(ctx, rest)
	case "purge":
		return a.purge(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) list(ctx context.Context) error {
	report, err := a.inspector.List(ctx, a.cfg.limit)
	if err != nil {
		return err
	}
	a.logger.Debug("softtx logs listed", "pending", len(report.Pending), "exhausted", len(report.Exhausted))

	return a.print(append(report.Pending, report.Exhausted...))
}

func (a *app) exhausted(ctx context.Context) error {
	logs, err := a.inspector.Exhausted(ctx, a.cfg.limit)
	if err != nil {
		return err
	}

	return a.print(logs)
}

func (a *app) remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: remove needs at least one id", errUsage)
	}
	for _, id := range ids {
		if err := a.inspector.Remove(ctx, id); err != nil {
			return err
		}
		a.logger.Info("softtx log removed", "id", id)
	}

	return nil
}

func (a *app) requeue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: requeue needs at least one id", errUsage)
	}
	for _, id := range ids {
		log, err := a.inspector.Get(ctx, id)
		if err != nil {
			return err
		}
		fresh, err := a.inspector.Requeue(ctx, log)
		if err != nil {
			return err
		}
		a.logger.Info("softtx log requeued", "id", id, "new_id", fresh.ID)
	}

	return nil
}

func (a *app) purge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Delete exhausted logs created before now minus this")
	limit := fs.Int("limit", 0, "Max rows deleted (0 uses default)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	removed, err := a.backend.SQL.PurgeExhausted(ctx, rdb.PurgeOptions{
		MaxDeliveryTryTimes: a.cfg.maxTries,
		Before:              a.clock.Now().Add(-*olderThan),
		Limit:               *limit,
	})
	if err != nil {
		return err
	}
	a.logger.Info("softtx purged exhausted logs", "count", removed)

	return nil
}

type logView struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	Type          string `json:"transactionType"`
	DataSource    string `json:"dataSource"`
	Statement     string `json:"sql"`
	Parameters    []any  `json:"parameters"`
	CreationTime  int64  `json:"creationTime"`
	TryTimes      int    `json:"asyncDeliveryTryTimes"`
	Exhausted     bool   `json:"exhausted"`
}

func (a *app) view(log softtx.TransactionLog) logView {
	return logView{
		ID:            log.ID,
		TransactionID: log.TransactionID,
		Type:          log.Type.String(),
		DataSource:    log.DataSourceName,
		Statement:     log.ExecuteStatement,
		Parameters:    log.Parameters,
		CreationTime:  log.CreationTimeMillis(),
		TryTimes:      log.AsyncDeliveryTryTimes,
		Exhausted:     softtx.Exhausted(log, a.cfg.maxTries),
	}
}

func (a *app) print(logs []softtx.TransactionLog) error {
	if a.cfg.asJSON {
		enc := json.NewEncoder(a.out)
		for _, log := range logs {
			if err := enc.Encode(a.view(log)); err != nil {
				return err
			}
		}

		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTX\tTYPE\tDATASOURCE\tTRIES\tCREATED\tSQL")
	for _, log := range logs {
		v := a.view(log)
		tries := fmt.Sprintf("%d/%d", v.TryTimes, a.cfg.maxTries)
		if v.Exhausted {
			tries += " exhausted"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.TransactionID, v.Type, v.DataSource, tries,
			log.CreationTime.Format(time.RFC3339), strings.Join(strings.Fields(v.Statement), " "))
	}

	return w.Flush()
}
