// Package backend opens the transaction log store selected on the command line.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/gormstore"
	"github.com/velmie/softtx/rdb"
)

const (
	// KindSQL selects rdb.Store over database/sql.
	KindSQL = "rdb"
	// KindGorm selects gormstore.Store.
	KindGorm = "gorm"
)

// ErrUnknownBackend is returned for an unsupported -backend value.
var ErrUnknownBackend = errors.New("unknown backend")

// Options selects and configures a store.
type Options struct {
	Kind    string
	Driver  string
	DSN     string
	Table   string
	Migrate bool
}

// Backend holds an open store. Purge always goes through database/sql, so SQL
// is set for both kinds.
type Backend struct {
	Store softtx.Store
	SQL   *rdb.Store
	DB    *sql.DB
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}

	return b.DB.Close()
}

// Open connects to the database and builds the requested store.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Driver == "" {
		opts.Driver = "mysql"
	}
	dialect, err := rdb.DialectByName(opts.Driver)
	if err != nil {
		return nil, err
	}

	var (
		store softtx.Store
		db    *sql.DB
	)
	switch opts.Kind {
	case KindSQL, "":
		db, err = sql.Open(dialect.Name(), opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
	case KindGorm:
		gdb, err := gorm.Open(dialector(dialect, opts.DSN), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Discard,
		})
		if err != nil {
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		if db, err = gdb.DB(); err != nil {
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		gs, err := gormstore.NewStore(gdb, gormstore.WithTable(opts.Table))
		if err != nil {
			_ = db.Close()

			return nil, err
		}
		if opts.Migrate {
			if err := gs.Migrate(ctx); err != nil {
				_ = db.Close()

				return nil, err
			}
		}
		store = gs
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Kind)
	}

	sqlStore, err := rdb.NewStore(db, rdb.WithDialect(dialect), rdb.WithTable(opts.Table))
	if err != nil {
		_ = db.Close()

		return nil, err
	}
	if store == nil {
		if opts.Migrate {
			if err := sqlStore.Migrate(ctx); err != nil {
				_ = db.Close()

				return nil, err
			}
		}
		store = sqlStore
	}

	return &Backend{Store: store, SQL: sqlStore, DB: db}, nil
}

func dialector(dialect rdb.Dialect, dsn string) gorm.Dialector {
	if dialect == rdb.SQLite {
		return sqlite.Open(dsn)
	}

	return gormmysql.Open(dsn)
}
