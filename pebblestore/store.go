package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/velmie/softtx"
)

const lockStripes = 256

// ErrClosed is returned, wrapped in softtx.ErrStorageUnavailable, after Close.
var ErrClosed = errors.New("softtx pebble: store closed")

// Config defines how the Pebble database is opened.
type Config struct {
	// FS overrides the filesystem, vfs.NewMem() keeps everything in memory.
	FS     vfs.FS
	Logger softtx.Logger
}

// Option configures the store.
type Option func(*Config)

// WithFS sets the filesystem Pebble runs on.
func WithFS(fs vfs.FS) Option {
	return func(c *Config) {
		c.FS = fs
	}
}

// WithLogger routes Pebble's own logging to logger.
func WithLogger(logger softtx.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Store is a softtx.Store persisted in a Pebble database.
type Store struct {
	db     *pebble.DB
	locks  [lockStripes]sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool
}

var _ softtx.Store = (*Store)(nil)
var _ softtx.PendingCounter = (*Store)(nil)
var _ softtx.Getter = (*Store)(nil)

// Open opens or creates a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = softtx.NopLogger{}
	}

	db, err := pebble.Open(dir, &pebble.Options{
		FS:     cfg.FS,
		Logger: pebbleLogger{logger: cfg.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("softtx pebble: open %s: %w", dir, err)
	}

	s := &Store{db: db}
	last, err := s.lastSeq()
	if err != nil {
		_ = db.Close()

		return nil, err
	}
	s.seq.Store(last)

	return s, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	return s.db.Close()
}

// Add implements softtx.Store.
func (s *Store) Add(_ context.Context, log softtx.TransactionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return softtx.Unavailable("add", ErrClosed)
	}

	mu := s.lock(log.ID)
	mu.Lock()
	defer mu.Unlock()

	_, found, err := s.get(log.ID)
	if err != nil {
		return softtx.Unavailable("add", err)
	}
	if found {
		return fmt.Errorf("%w: %s", softtx.ErrDuplicateID, log.ID)
	}

	rec, err := newRecord(log, s.seq.Add(1))
	if err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(logKey(rec.ID), data, nil); err != nil {
		return softtx.Unavailable("add", err)
	}
	if err := batch.Set(indexKey(rec.CreatedMS, rec.Seq, rec.ID), nil, nil); err != nil {
		return softtx.Unavailable("add", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return softtx.Unavailable("add", err)
	}

	return nil
}

// Remove implements softtx.Store.
func (s *Store) Remove(_ context.Context, id string) error {
	if s.closed.Load() {
		return softtx.Unavailable("remove", ErrClosed)
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, found, err := s.get(id)
	if err != nil {
		return softtx.Unavailable("remove", err)
	}
	if !found {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(logKey(id), nil); err != nil {
		return softtx.Unavailable("remove", err)
	}
	if err := batch.Delete(indexKey(rec.CreatedMS, rec.Seq, id), nil); err != nil {
		return softtx.Unavailable("remove", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return softtx.Unavailable("remove", err)
	}

	return nil
}

// IncreaseAsyncDeliveryTryTimes implements softtx.Store.
func (s *Store) IncreaseAsyncDeliveryTryTimes(_ context.Context, id string) error {
	if s.closed.Load() {
		return softtx.Unavailable("increment", ErrClosed)
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, found, err := s.get(id)
	if err != nil {
		return softtx.Unavailable("increment", err)
	}
	if !found {
		return nil
	}

	rec.TryTimes++
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.Set(logKey(id), data, pebble.Sync); err != nil {
		return softtx.Unavailable("increment", err)
	}

	return nil
}

// FindEligibleTransactionLogs implements softtx.Store.
func (s *Store) FindEligibleTransactionLogs(ctx context.Context, criteria softtx.Criteria) ([]softtx.TransactionLog, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	logs := make([]softtx.TransactionLog, 0, min(criteria.Limit, 64))
	err := s.scan(ctx, criteria, func(log softtx.TransactionLog) bool {
		logs = append(logs, log)

		return len(logs) < criteria.Limit
	})
	if err != nil {
		return nil, err
	}

	return logs, nil
}

// PendingCount implements softtx.PendingCounter.
func (s *Store) PendingCount(ctx context.Context, criteria softtx.Criteria) (int, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}

	count := 0
	err := s.scan(ctx, criteria, func(softtx.TransactionLog) bool {
		count++

		return true
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// scan walks the creation index up to the cutoff and yields matching logs until fn returns false.
// GetTransactionLog implements softtx.Getter.
func (s *Store) GetTransactionLog(_ context.Context, id string) (softtx.TransactionLog, error) {
	if s.closed.Load() {
		return softtx.TransactionLog{}, softtx.Unavailable("get", ErrClosed)
	}

	rec, found, err := s.get(id)
	if err != nil {
		return softtx.TransactionLog{}, softtx.Unavailable("get", err)
	}
	if !found {
		return softtx.TransactionLog{}, fmt.Errorf("%w: %s", softtx.ErrLogNotFound, id)
	}

	return rec.toLog()
}

func (s *Store) scan(ctx context.Context, criteria softtx.Criteria, fn func(softtx.TransactionLog) bool) error {
	if s.closed.Load() {
		return softtx.Unavailable("scan", ErrClosed)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixIndex),
		UpperBound: indexBound(criteria.CutoffMillis()),
	})
	if err != nil {
		return softtx.Unavailable("scan", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, id, ok := parseIndexKey(iter.Key())
		if !ok {
			continue
		}
		rec, found, err := s.get(id)
		if err != nil {
			return softtx.Unavailable("scan", err)
		}
		// Removed between the index read and the record read.
		if !found {
			continue
		}
		log, err := rec.toLog()
		if err != nil {
			return err
		}
		if !criteria.Matches(log) {
			continue
		}
		if !fn(log) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return softtx.Unavailable("scan", err)
	}

	return nil
}

func (s *Store) get(id string) (record, bool, error) {
	value, closer, err := s.db.Get(logKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	defer closer.Close()

	rec, err := decodeRecord(value)
	if err != nil {
		return record{}, false, err
	}

	return rec, true, nil
}

func (s *Store) lastSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixIndex),
		UpperBound: prefixUpperBound([]byte(prefixIndex)),
	})
	if err != nil {
		return 0, fmt.Errorf("softtx pebble: scan index: %w", err)
	}
	defer iter.Close()

	var last uint64
	for iter.First(); iter.Valid(); iter.Next() {
		if seq, _, ok := parseIndexKey(iter.Key()); ok && seq > last {
			last = seq
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("softtx pebble: scan index: %w", err)
	}

	return last, nil
}

func (s *Store) lock(id string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(id)%lockStripes]
}
