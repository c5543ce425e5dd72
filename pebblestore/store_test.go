package pebblestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/pebblestore"
	"github.com/velmie/softtx/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) softtx.Store {
		return openMem(t, vfs.NewMem())
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()

	store, err := pebblestore.Open("logs", pebblestore.WithFS(fs))
	require.NoError(t, err)
	first := storetest.NewLog(storetest.Base)
	require.NoError(t, store.Add(ctx, first))
	require.NoError(t, store.IncreaseAsyncDeliveryTryTimes(ctx, first.ID))
	require.NoError(t, store.Close())

	reopened := openAt(t, fs, "logs")
	second := storetest.NewLog(storetest.Base)
	require.NoError(t, reopened.Add(ctx, second))

	found, err := reopened.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, first.ID, found[0].ID)
	require.Equal(t, 1, found[0].AsyncDeliveryTryTimes)
	require.Equal(t, second.ID, found[1].ID)
	require.ErrorIs(t, reopened.Add(ctx, first), softtx.ErrDuplicateID)
}

func TestStoreParameterTypes(t *testing.T) {
	ctx := context.Background()
	store := openMem(t, vfs.NewMem())

	log := storetest.NewLog(storetest.Base)
	log.Parameters = []any{int64(7), int64(-1 << 40), 2.5, "x", true, nil, []byte{1, 2}}
	require.NoError(t, store.Add(ctx, log))

	found, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, log.Parameters, found[0].Parameters)
}

func TestStoreScanStopsAtCutoff(t *testing.T) {
	ctx := context.Background()
	store := openMem(t, vfs.NewMem())

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(ctx, storetest.NewLog(storetest.Base.Add(time.Duration(i)*time.Second))))
	}

	count, err := store.PendingCount(ctx, softtx.Criteria{
		MaxDeliveryTryTimes: 1,
		Limit:               1,
		CreatedBefore:       storetest.Base.Add(2 * time.Second),
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.Open("", pebblestore.WithFS(vfs.NewMem()))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	require.ErrorIs(t, store.Add(ctx, storetest.NewLog(storetest.Base)), softtx.ErrStorageUnavailable)
	require.ErrorIs(t, store.Remove(ctx, "x"), pebblestore.ErrClosed)
	require.ErrorIs(t, store.IncreaseAsyncDeliveryTryTimes(ctx, "x"), softtx.ErrStorageUnavailable)
	_, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: 1, Limit: 1})
	require.ErrorIs(t, err, softtx.ErrStorageUnavailable)
}

func openMem(t *testing.T, fs vfs.FS) *pebblestore.Store {
	t.Helper()

	return openAt(t, fs, "")
}

func openAt(t *testing.T, fs vfs.FS, dir string) *pebblestore.Store {
	t.Helper()
	store, err := pebblestore.Open(dir, pebblestore.WithFS(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}
