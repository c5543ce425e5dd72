// Package storetest provides a contract test suite that every softtx.Store backend runs.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/softtx"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) softtx.Store

// Base is the creation time of the seed log.
var Base = time.UnixMilli(1461062858701).UTC()

// NewLog builds a valid best-efforts-delivery log created at created.
func NewLog(created time.Time) softtx.TransactionLog {
	return softtx.TransactionLog{
		ID:               uuid.NewString(),
		TransactionID:    uuid.NewString(),
		Type:             softtx.TypeBestEffortsDelivery,
		DataSourceName:   "ds_1",
		ExecuteStatement: "UPDATE t_order_0 SET not_existed_column = 1 WHERE user_id = 1 AND order_id = ?",
		Parameters:       []any{int64(1), "a"},
		CreationTime:     created,
	}
}

// Run executes the full contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Operations", func(t *testing.T) { testOperations(t, newStore(t)) })
	t.Run("AddFindRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("IncrementMonotonic", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("RemovalFinal", func(t *testing.T) { testRemovalFinal(t, newStore(t)) })
	t.Run("RemoveUnknown", func(t *testing.T) { testRemoveUnknown(t, newStore(t)) })
	t.Run("IncreaseUnknown", func(t *testing.T) { testIncreaseUnknown(t, newStore(t)) })
	t.Run("CeilingExclusion", func(t *testing.T) { testCeiling(t, newStore(t)) })
	t.Run("DelayExclusion", func(t *testing.T) { testDelay(t, newStore(t)) })
	t.Run("Limit", func(t *testing.T) { testLimit(t, newStore(t)) })
	t.Run("TypeFilter", func(t *testing.T) { testTypeFilter(t, newStore(t)) })
	t.Run("EmptyParameters", func(t *testing.T) { testEmptyParameters(t, newStore(t)) })
	t.Run("ParameterTypes", func(t *testing.T) { testParameterTypes(t, newStore(t)) })
	t.Run("TryFloor", func(t *testing.T) { testTryFloor(t, newStore(t)) })
	t.Run("GetByID", func(t *testing.T) { testGet(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("ConcurrentRemove", func(t *testing.T) { testConcurrentRemove(t, newStore(t)) })
	t.Run("InvalidCriteria", func(t *testing.T) { testInvalidCriteria(t, newStore(t)) })
}

func testOperations(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	log.Parameters = []any{}

	require.NoError(t, store.Add(ctx, log))
	require.NoError(t, store.IncreaseAsyncDeliveryTryTimes(ctx, log.ID))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: 2})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, 1, found[0].AsyncDeliveryTryTimes)

	require.NoError(t, store.Remove(ctx, log.ID))
	found, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: 2})
	require.NoError(t, err)
	require.Empty(t, found)
}

func testRoundTrip(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	require.NoError(t, store.Add(ctx, log))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.NewCriteria(time.Now(), 1, 10, 0))
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0]
	assert.Equal(t, log.ID, got.ID)
	assert.Equal(t, log.TransactionID, got.TransactionID)
	assert.Equal(t, log.Type, got.Type)
	assert.Equal(t, log.DataSourceName, got.DataSourceName)
	assert.Equal(t, log.ExecuteStatement, got.ExecuteStatement)
	assert.Equal(t, log.Parameters, got.Parameters)
	assert.Equal(t, log.CreationTimeMillis(), got.CreationTimeMillis())
	assert.Equal(t, 0, got.AsyncDeliveryTryTimes)
}

func testDuplicate(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	require.NoError(t, store.Add(ctx, log))

	err := store.Add(ctx, log)
	require.ErrorIs(t, err, softtx.ErrDuplicateID)
	require.NotErrorIs(t, err, softtx.ErrStorageUnavailable)
}

func testIncrement(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	require.NoError(t, store.Add(ctx, log))

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, store.IncreaseAsyncDeliveryTryTimes(ctx, log.ID))
	}

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: n + 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, n, found[0].AsyncDeliveryTryTimes)
}

func testRemovalFinal(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	removed := NewLog(Base)
	kept := NewLog(Base.Add(time.Millisecond))
	require.NoError(t, store.Add(ctx, removed))
	require.NoError(t, store.Add(ctx, kept))
	require.NoError(t, store.Remove(ctx, removed.ID))

	for _, criteria := range []softtx.Criteria{
		{Limit: 1, MaxDeliveryTryTimes: 1},
		{Limit: 100, MaxDeliveryTryTimes: softtx.UnboundedTryTimes},
		softtx.NewCriteria(time.Now(), 10, 10, time.Millisecond),
	} {
		found, err := store.FindEligibleTransactionLogs(ctx, criteria)
		require.NoError(t, err)
		require.NotContains(t, ids(found), removed.ID)
		require.Contains(t, ids(found), kept.ID)
	}
}

func testRemoveUnknown(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	require.NoError(t, store.Add(ctx, log))

	require.NoError(t, store.Remove(ctx, uuid.NewString()))
	require.NoError(t, store.Remove(ctx, log.ID))
	require.NoError(t, store.Remove(ctx, log.ID))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: 1})
	require.NoError(t, err)
	require.Empty(t, found)
}

func testIncreaseUnknown(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	require.NoError(t, store.IncreaseAsyncDeliveryTryTimes(ctx, uuid.NewString()))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: softtx.UnboundedTryTimes})
	require.NoError(t, err)
	require.Empty(t, found)
}

func testCeiling(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	fresh := NewLog(Base)
	spent := NewLog(Base.Add(time.Millisecond))
	require.NoError(t, store.Add(ctx, fresh))
	require.NoError(t, store.Add(ctx, spent))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncreaseAsyncDeliveryTryTimes(ctx, spent.ID))
	}

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: 3})
	require.NoError(t, err)
	require.Equal(t, []string{fresh.ID}, ids(found))

	found, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: 4})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{fresh.ID, spent.ID}, ids(found))
}

func testDelay(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	old := NewLog(now.Add(-2 * time.Minute))
	edge := NewLog(now.Add(-time.Minute))
	young := NewLog(now.Add(-time.Second))
	require.NoError(t, store.Add(ctx, old))
	require.NoError(t, store.Add(ctx, edge))
	require.NoError(t, store.Add(ctx, young))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.NewCriteria(now, 3, 10, time.Minute))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{old.ID, edge.ID}, ids(found))
}

func testLimit(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(ctx, NewLog(Base.Add(time.Duration(i)*time.Millisecond))))
	}

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 2, MaxDeliveryTryTimes: 1})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func testTypeFilter(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	bed := NewLog(Base)
	tcc := NewLog(Base)
	tcc.Type = softtx.TypeTryConfirmCancel
	require.NoError(t, store.Add(ctx, bed))
	require.NoError(t, store.Add(ctx, tcc))

	criteria := softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: 1}
	found, err := store.FindEligibleTransactionLogs(ctx, criteria.WithType(softtx.TypeBestEffortsDelivery))
	require.NoError(t, err)
	require.Equal(t, []string{bed.ID}, ids(found))

	found, err = store.FindEligibleTransactionLogs(ctx, criteria)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{bed.ID, tcc.ID}, ids(found))
}

func testEmptyParameters(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	log.Parameters = nil
	require.NoError(t, store.Add(ctx, log))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Empty(t, found[0].Parameters)
}

func testParameterTypes(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	log.Parameters = []any{
		[]byte{0, 1, 2, 0xff},
		time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC),
		uint64(1<<63 + 1),
		int64(-1 << 40),
		2.5,
		"x",
		true,
		nil,
	}
	require.NoError(t, store.Add(ctx, log))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, log.Parameters, found[0].Parameters)
}

func testTryFloor(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	fresh := NewLog(Base)
	spent := NewLog(Base.Add(time.Millisecond))
	spent.AsyncDeliveryTryTimes = 3
	require.NoError(t, store.Add(ctx, fresh))
	require.NoError(t, store.Add(ctx, spent))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{
		MinTryTimes:         3,
		MaxDeliveryTryTimes: softtx.UnboundedTryTimes,
		Limit:               1,
	})
	require.NoError(t, err)
	require.Equal(t, []string{spent.ID}, ids(found))

	if counter, ok := store.(softtx.PendingCounter); ok {
		count, err := counter.PendingCount(ctx, softtx.Criteria{MinTryTimes: 3, MaxDeliveryTryTimes: softtx.UnboundedTryTimes, Limit: 1})
		require.NoError(t, err)
		require.Equal(t, 1, count)
	}

	_, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MinTryTimes: -1, MaxDeliveryTryTimes: 1, Limit: 1})
	require.ErrorIs(t, err, softtx.ErrInvalidTryTimes)
}

func testGet(t *testing.T, store softtx.Store) {
	getter, ok := store.(softtx.Getter)
	if !ok {
		t.Skip("store does not implement softtx.Getter")
	}

	ctx := context.Background()
	log := NewLog(Base)
	log.AsyncDeliveryTryTimes = 2
	require.NoError(t, store.Add(ctx, log))

	got, err := getter.GetTransactionLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, log.ID, got.ID)
	assert.Equal(t, log.Parameters, got.Parameters)
	assert.Equal(t, 2, got.AsyncDeliveryTryTimes)

	require.NoError(t, store.Remove(ctx, log.ID))
	_, err = getter.GetTransactionLog(ctx, log.ID)
	require.ErrorIs(t, err, softtx.ErrLogNotFound)
}

func testConcurrentIncrements(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	log := NewLog(Base)
	require.NoError(t, store.Add(ctx, log))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.IncreaseAsyncDeliveryTryTimes(ctx, log.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: softtx.UnboundedTryTimes})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, workers, found[0].AsyncDeliveryTryTimes)
}

func testConcurrentRemove(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	logs := make([]softtx.TransactionLog, 4)
	for i := range logs {
		logs[i] = NewLog(Base.Add(time.Duration(i) * time.Millisecond))
		require.NoError(t, store.Add(ctx, logs[i]))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(logs)*2)
	for _, log := range logs {
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				errs <- store.Remove(ctx, id)
			}(log.ID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err, "concurrent remove")
	}

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 10, MaxDeliveryTryTimes: softtx.UnboundedTryTimes})
	require.NoError(t, err)
	require.Empty(t, found)
}

func testInvalidCriteria(t *testing.T, store softtx.Store) {
	ctx := context.Background()
	_, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 0, MaxDeliveryTryTimes: 1})
	require.ErrorIs(t, err, softtx.ErrInvalidLimit)
	_, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{Limit: 1, MaxDeliveryTryTimes: 0})
	require.ErrorIs(t, err, softtx.ErrInvalidMaxTryTimes)
}

func ids(logs []softtx.TransactionLog) []string {
	out := make([]string, 0, len(logs))
	for _, log := range logs {
		out = append(out, log.ID)
	}

	return out
}
