// Package gormstore provides a softtx.Store over gorm.
//
// It shares the table layout of package rdb, so both stores can serve the same table.
// The *gorm.DB must be opened with gorm.Config{TranslateError: true}: duplicate ids
// are detected through gorm.ErrDuplicatedKey.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velmie/softtx"
)

const defaultTable = "transaction_log"

var (
	// ErrDBRequired is returned when a nil *gorm.DB is provided.
	ErrDBRequired = errors.New("softtx gorm: db is required")
	// ErrTranslateErrorRequired is returned when the gorm session does not translate driver errors.
	ErrTranslateErrorRequired = errors.New("softtx gorm: gorm.Config.TranslateError must be enabled")
)

type record struct {
	ID                    string `gorm:"column:id;primaryKey;size:40"`
	TransactionID         string `gorm:"column:transaction_id;size:40;not null"`
	TransactionType       string `gorm:"column:transaction_type;size:30;not null;index:idx_eligible,priority:2"`
	DataSource            string `gorm:"column:data_source;size:255;not null"`
	ExecuteStatement      string `gorm:"column:execute_statement;type:text;not null"`
	Parameters            []byte `gorm:"column:parameters;not null"`
	CreationTime          int64  `gorm:"column:creation_time;not null;index:idx_eligible,priority:3"`
	AsyncDeliveryTryTimes int    `gorm:"column:async_delivery_try_times;not null;index:idx_eligible,priority:1"`
}

// Option configures the gorm store.
type Option func(*Store)

// WithTable sets the transaction log table name.
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = name
	}
}

// Store implements softtx.Store with gorm.
type Store struct {
	db    *gorm.DB
	table string
}

var _ softtx.Store = (*Store)(nil)
var _ softtx.PendingCounter = (*Store)(nil)
var _ softtx.Getter = (*Store)(nil)

// NewStore wraps db.
func NewStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if !db.Config.TranslateError {
		return nil, ErrTranslateErrorRequired
	}

	s := &Store{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if s.table == "" {
		s.table = defaultTable
	}

	return s, nil
}

// Migrate creates or updates the table with gorm AutoMigrate.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.session(ctx).AutoMigrate(&record{}); err != nil {
		return softtx.Unavailable("migrate", err)
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

	rec := record{
		ID:                    log.ID,
		TransactionID:         log.TransactionID,
		TransactionType:       log.Type.String(),
		DataSource:            log.DataSourceName,
		ExecuteStatement:      log.ExecuteStatement,
		Parameters:            params,
		CreationTime:          log.CreationTimeMillis(),
		AsyncDeliveryTryTimes: log.AsyncDeliveryTryTimes,
	}
	if err := s.session(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", softtx.ErrDuplicateID, log.ID)
		}

		return softtx.Unavailable("insert", err)
	}

	return nil
}

// Remove deletes a log by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.session(ctx).Where("id = ?", id).Delete(&record{}).Error; err != nil {
		return softtx.Unavailable("delete", err)
	}

	return nil
}

// IncreaseAsyncDeliveryTryTimes increments the try counter in a single UPDATE.
func (s *Store) IncreaseAsyncDeliveryTryTimes(ctx context.Context, id string) error {
	err := s.session(ctx).
		Model(&record{}).
		Where("id = ?", id).
		UpdateColumn("async_delivery_try_times", gorm.Expr("async_delivery_try_times + ?", 1)).
		Error
	if err != nil {
		return softtx.Unavailable("increment", err)
	}

	return nil
}

// FindEligibleTransactionLogs runs the eligibility query.
func (s *Store) FindEligibleTransactionLogs(ctx context.Context, criteria softtx.Criteria) ([]softtx.TransactionLog, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	var rows []record
	err := s.eligible(ctx, criteria).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "creation_time"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Limit(criteria.Limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, softtx.Unavailable("select", err)
	}

	logs := make([]softtx.TransactionLog, 0, len(rows))
	for _, rec := range rows {
		log, err := rec.toLog()
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return logs, nil
}

// GetTransactionLog implements softtx.Getter.
func (s *Store) GetTransactionLog(ctx context.Context, id string) (softtx.TransactionLog, error) {
	var rows []record
	if err := s.session(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return softtx.TransactionLog{}, softtx.Unavailable("get", err)
	}
	if len(rows) == 0 {
		return softtx.TransactionLog{}, fmt.Errorf("%w: %s", softtx.ErrLogNotFound, id)
	}

	return rows[0].toLog()
}

// PendingCount returns how many logs match criteria, ignoring its limit.
func (s *Store) PendingCount(ctx context.Context, criteria softtx.Criteria) (int, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}

	var count int64
	if err := s.eligible(ctx, criteria).Count(&count).Error; err != nil {
		return 0, softtx.Unavailable("count", err)
	}

	return int(count), nil
}

func (s *Store) eligible(ctx context.Context, criteria softtx.Criteria) *gorm.DB {
	q := s.session(ctx).
		Model(&record{}).
		Where("async_delivery_try_times >= ? AND async_delivery_try_times < ? AND creation_time <= ?",
			criteria.MinTryTimes, criteria.MaxDeliveryTryTimes, criteria.CutoffMillis())
	if criteria.Type != 0 {
		q = q.Where("transaction_type = ?", criteria.Type.String())
	}

	return q
}

func (s *Store) session(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (r record) toLog() (softtx.TransactionLog, error) {
	typ, err := softtx.ParseType(r.TransactionType)
	if err != nil {
		return softtx.TransactionLog{}, fmt.Errorf("softtx gorm: log %s: %w", r.ID, err)
	}
	params, err := softtx.DecodeParameters(r.Parameters)
	if err != nil {
		return softtx.TransactionLog{}, fmt.Errorf("softtx gorm: log %s: %w", r.ID, err)
	}

	return softtx.TransactionLog{
		ID:                    r.ID,
		TransactionID:         r.TransactionID,
		Type:                  typ,
		DataSourceName:        r.DataSource,
		ExecuteStatement:      r.ExecuteStatement,
		Parameters:            params,
		CreationTime:          time.UnixMilli(r.CreationTime).UTC(),
		AsyncDeliveryTryTimes: r.AsyncDeliveryTryTimes,
	}, nil
}
