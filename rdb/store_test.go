package rdb_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/rdb"
	"github.com/velmie/softtx/storetest"
)

func TestStoreContractSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) softtx.Store {
		return newSQLiteStore(t)
	})
}

func TestStoreNilDB(t *testing.T) {
	if _, err := rdb.NewStore(nil); !errors.Is(err, rdb.ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
}

func TestStorePendingCount(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Add(ctx, storetest.NewLog(storetest.Base.Add(time.Duration(i)*time.Millisecond))))
	}

	criteria := softtx.Criteria{MaxDeliveryTryTimes: 3, Limit: 1, CreatedBefore: storetest.Base.Add(time.Millisecond)}
	count, err := store.PendingCount(ctx, criteria)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStoreUnavailableAfterClose(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	store, err := rdb.NewStore(db, rdb.WithDialect(rdb.SQLite))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, db.Close())

	err = store.Add(ctx, storetest.NewLog(storetest.Base))
	require.ErrorIs(t, err, softtx.ErrStorageUnavailable)
	_, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: 1, Limit: 1})
	require.ErrorIs(t, err, softtx.ErrStorageUnavailable)
	require.ErrorIs(t, store.Remove(ctx, "x"), softtx.ErrStorageUnavailable)
	require.ErrorIs(t, store.IncreaseAsyncDeliveryTryTimes(ctx, "x"), softtx.ErrStorageUnavailable)
}

func TestStoreParametersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	log := storetest.NewLog(storetest.Base)
	log.Parameters = []any{int64(42), 1.5, "text", true, nil}
	require.NoError(t, store.Add(ctx, log))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, log.Parameters, found[0].Parameters)
}

func TestStoreCustomTable(t *testing.T) {
	ctx := context.Background()
	store, err := rdb.NewStore(openSQLite(t), rdb.WithDialect(rdb.SQLite), rdb.WithTable("bed_log"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Add(ctx, storetest.NewLog(storetest.Base)))
}

func TestPurgeExhausted(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	live := storetest.NewLog(storetest.Base)
	spentOld := storetest.NewLog(storetest.Base)
	spentOld.AsyncDeliveryTryTimes = 3
	spentNew := storetest.NewLog(storetest.Base.Add(time.Hour))
	spentNew.AsyncDeliveryTryTimes = 3
	for _, log := range []softtx.TransactionLog{live, spentOld, spentNew} {
		require.NoError(t, store.Add(ctx, log))
	}

	removed, err := store.PurgeExhausted(ctx, rdb.PurgeOptions{
		MaxDeliveryTryTimes: 3,
		Before:              storetest.Base.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	all, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: softtx.UnboundedTryTimes, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.ElementsMatch(t, []string{live.ID, spentNew.ID}, []string{all[0].ID, all[1].ID})
}

func TestPurgeExhaustedValidation(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.PurgeExhausted(ctx, rdb.PurgeOptions{MaxDeliveryTryTimes: 3})
	require.ErrorIs(t, err, rdb.ErrPurgeBeforeRequired)
	_, err = store.PurgeExhausted(ctx, rdb.PurgeOptions{Before: time.Now()})
	require.ErrorIs(t, err, softtx.ErrInvalidMaxTryTimes)
	_, err = store.PurgeExhausted(ctx, rdb.PurgeOptions{MaxDeliveryTryTimes: 3, Before: time.Now(), Limit: -1})
	require.ErrorIs(t, err, rdb.ErrPurgeLimitInvalid)
}

func TestPurgeMaintainerEnsure(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	spent := storetest.NewLog(storetest.Base)
	spent.AsyncDeliveryTryTimes = 2
	require.NoError(t, store.Add(ctx, spent))

	now := storetest.Base.Add(48 * time.Hour)
	locker := &countingLocker{}
	maintainer, err := rdb.NewPurgeMaintainer(store, rdb.PurgeMaintainerConfig{
		MaxDeliveryTryTimes: 2,
		Retention:           24 * time.Hour,
		Locker:              locker,
		Clock:               softtx.ClockFunc(func() time.Time { return now }),
	})
	require.NoError(t, err)

	removed, err := maintainer.Ensure(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.Equal(t, 1, locker.unlocks)

	locker.busy = true
	removed, err = maintainer.Ensure(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Equal(t, 1, locker.unlocks)
}

func TestNewPurgeMaintainerValidation(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := rdb.NewPurgeMaintainer(store, rdb.PurgeMaintainerConfig{MaxDeliveryTryTimes: 3})
	require.ErrorIs(t, err, rdb.ErrPurgeRetentionInvalid)
	_, err = rdb.NewPurgeMaintainer(store, rdb.PurgeMaintainerConfig{Retention: time.Hour})
	require.ErrorIs(t, err, softtx.ErrInvalidMaxTryTimes)
}

type countingLocker struct {
	busy    bool
	unlocks int
}

func (l *countingLocker) TryLock(context.Context) (bool, error) { return !l.busy, nil }

func (l *countingLocker) Unlock(context.Context) error {
	l.unlocks++

	return nil
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: opens a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newSQLiteStore(t *testing.T) *rdb.Store {
	t.Helper()
	store, err := rdb.NewStore(openSQLite(t), rdb.WithDialect(rdb.SQLite))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	return store
}
