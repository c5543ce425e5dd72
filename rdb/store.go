package rdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/softtx"
)

// Store implements softtx.Store over database/sql.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ softtx.Store = (*Store)(nil)
var _ softtx.PendingCounter = (*Store)(nil)
var _ softtx.Getter = (*Store)(nil)

// NewStore constructs a relational store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table, cfg.Dialect),
		table:   table,
	}, nil
}

// MustNewStore constructs a relational store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Migrate creates the table and its eligibility index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.cfg.Dialect.schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return softtx.Unavailable("migrate", err)
		}
	}

	return nil
}

// Add inserts a new transaction log.
func (s *Store) Add(ctx context.Context, log softtx.TransactionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	params, err := softtx.EncodeParameters(log.Parameters)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		s.queries.insert,
		log.ID,
		log.TransactionID,
		log.Type.String(),
		log.DataSourceName,
		log.ExecuteStatement,
		params,
		log.CreationTimeMillis(),
		log.AsyncDeliveryTryTimes,
	)
	if err != nil {
		if s.cfg.Dialect.IsDuplicate(err) {
			return fmt.Errorf("%w: %s", softtx.ErrDuplicateID, log.ID)
		}

		return softtx.Unavailable("insert", err)
	}

	return nil
}

// Remove deletes a log by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.queries.remove, id); err != nil {
		return softtx.Unavailable("delete", err)
	}

	return nil
}

// IncreaseAsyncDeliveryTryTimes increments the try counter in a single UPDATE.
func (s *Store) IncreaseAsyncDeliveryTryTimes(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.queries.increment, id); err != nil {
		return softtx.Unavailable("increment", err)
	}

	return nil
}

// FindEligibleTransactionLogs runs the eligibility query.
func (s *Store) FindEligibleTransactionLogs(ctx context.Context, criteria softtx.Criteria) ([]softtx.TransactionLog, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	query, args := s.eligibleQuery(criteria, s.queries.selectEligible, s.queries.selectEligibleType)
	args = append(args, criteria.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, softtx.Unavailable("select", err)
	}
	defer rows.Close()

	logs := make([]softtx.TransactionLog, 0, min(criteria.Limit, 64))
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, softtx.Unavailable("rows", err)
	}

	return logs, nil
}

// GetTransactionLog implements softtx.Getter.
func (s *Store) GetTransactionLog(ctx context.Context, id string) (softtx.TransactionLog, error) {
	log, err := scanLog(s.db.QueryRowContext(ctx, s.queries.selectByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return softtx.TransactionLog{}, fmt.Errorf("%w: %s", softtx.ErrLogNotFound, id)
	}

	return log, err
}

// PendingCount returns how many logs match criteria, ignoring its limit.
func (s *Store) PendingCount(ctx context.Context, criteria softtx.Criteria) (int, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}

	query, args := s.eligibleQuery(criteria, s.queries.countEligible, s.queries.countEligibleType)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, softtx.Unavailable("count", err)
	}

	return count, nil
}

func (s *Store) eligibleQuery(criteria softtx.Criteria, untyped, typed string) (string, []any) {
	args := []any{criteria.MinTryTimes, criteria.MaxDeliveryTryTimes, criteria.CutoffMillis()}
	if criteria.Type == 0 {
		return untyped, args
	}

	return typed, append(args, criteria.Type.String())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (softtx.TransactionLog, error) {
	var (
		log      softtx.TransactionLog
		typeName string
		params   []byte
		created  int64
	)
	err := row.Scan(
		&log.ID,
		&log.TransactionID,
		&typeName,
		&log.DataSourceName,
		&log.ExecuteStatement,
		&params,
		&created,
		&log.AsyncDeliveryTryTimes,
	)
	if err != nil {
		return softtx.TransactionLog{}, softtx.Unavailable("scan", err)
	}

	if log.Type, err = softtx.ParseType(typeName); err != nil {
		return softtx.TransactionLog{}, fmt.Errorf("softtx rdb: log %s: %w", log.ID, err)
	}
	if log.Parameters, err = softtx.DecodeParameters(params); err != nil {
		return softtx.TransactionLog{}, fmt.Errorf("softtx rdb: log %s: %w", log.ID, err)
	}
	log.CreationTime = time.UnixMilli(created).UTC()

	return log, nil
}
