// Package memory provides an ordered in-memory transaction log store.
//
// Logs are indexed by creation time in a B-tree so that the eligibility query
// scans only logs created before the cutoff.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/velmie/softtx"
)

type indexKey struct {
	createdMS int64
	seq       uint64
	id        string
}

func lessIndexKey(a, b indexKey) bool {
	if a.createdMS != b.createdMS {
		return a.createdMS < b.createdMS
	}

	return a.seq < b.seq
}

type entry struct {
	log softtx.TransactionLog
	key indexKey
}

// Store is a concurrency-safe in-memory softtx.Store.
type Store struct {
	mu          sync.RWMutex
	byID        map[string]*entry
	byCreated   *btree.BTreeG[indexKey]
	seq         uint64
	unavailable error
}

var _ softtx.Store = (*Store)(nil)
var _ softtx.PendingCounter = (*Store)(nil)
var _ softtx.Getter = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:      make(map[string]*entry),
		byCreated: btree.NewBTreeG(lessIndexKey),
	}
}

// SetUnavailable makes every operation fail with err wrapped in
// softtx.ErrStorageUnavailable until it is called with nil.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

// Add implements softtx.Store.
func (s *Store) Add(_ context.Context, log softtx.TransactionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable("add"); err != nil {
		return err
	}
	if _, ok := s.byID[log.ID]; ok {
		return fmt.Errorf("%w: %s", softtx.ErrDuplicateID, log.ID)
	}

	s.seq++
	stored := log.Clone()
	stored.CreationTime = softtx.TruncateMillis(log.CreationTime)
	e := &entry{
		log: stored,
		key: indexKey{createdMS: stored.CreationTimeMillis(), seq: s.seq, id: log.ID},
	}
	s.byID[log.ID] = e
	s.byCreated.Set(e.key)

	return nil
}

// Remove implements softtx.Store.
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable("remove"); err != nil {
		return err
	}
	e, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	s.byCreated.Delete(e.key)

	return nil
}

// IncreaseAsyncDeliveryTryTimes implements softtx.Store.
func (s *Store) IncreaseAsyncDeliveryTryTimes(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable("increase"); err != nil {
		return err
	}
	if e, ok := s.byID[id]; ok {
		e.log.AsyncDeliveryTryTimes++
	}

	return nil
}

// FindEligibleTransactionLogs implements softtx.Store.
func (s *Store) FindEligibleTransactionLogs(_ context.Context, criteria softtx.Criteria) ([]softtx.TransactionLog, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkAvailable("find"); err != nil {
		return nil, err
	}

	out := make([]softtx.TransactionLog, 0, min(criteria.Limit, len(s.byID)))
	s.scan(criteria, func(log softtx.TransactionLog) bool {
		out = append(out, log.Clone())

		return len(out) < criteria.Limit
	})

	return out, nil
}

// GetTransactionLog implements softtx.Getter.
func (s *Store) GetTransactionLog(_ context.Context, id string) (softtx.TransactionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkAvailable("get"); err != nil {
		return softtx.TransactionLog{}, err
	}
	e, ok := s.byID[id]
	if !ok {
		return softtx.TransactionLog{}, fmt.Errorf("%w: %s", softtx.ErrLogNotFound, id)
	}

	return e.log.Clone(), nil
}

// PendingCount implements softtx.PendingCounter.
func (s *Store) PendingCount(_ context.Context, criteria softtx.Criteria) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkAvailable("count"); err != nil {
		return 0, err
	}

	count := 0
	s.scan(criteria, func(softtx.TransactionLog) bool {
		count++

		return true
	})

	return count, nil
}

// Len returns the number of stored logs, exhausted ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byID)
}

func (s *Store) scan(criteria softtx.Criteria, fn func(softtx.TransactionLog) bool) {
	cutoff := criteria.CutoffMillis()
	s.byCreated.Scan(func(key indexKey) bool {
		if key.createdMS > cutoff {
			return false
		}
		e := s.byID[key.id]
		if e == nil || !criteria.Matches(e.log) {
			return true
		}

		return fn(e.log)
	})
}

func (s *Store) checkAvailable(op string) error {
	if s.unavailable == nil {
		return nil
	}

	return softtx.Unavailable("memory "+op, s.unavailable)
}
