package softtx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/memory"
)

var base = time.UnixMilli(1461062858701).UTC()

func clockAt(t time.Time) softtx.Clock {
	return softtx.ClockFunc(func() time.Time { return t })
}

// A log that keeps failing is retried until the ceiling, then stays visible to operators.
func TestFailingLogIsExhaustedAndInspectable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))

	log, err := recorder.Record(ctx, softtx.Operation{
		DataSourceName: "ds_1",
		Statement:      "INSERT INTO t_order (order_id) VALUES (?)",
		Parameters:     []any{int64(1)},
	})
	require.NoError(t, err)

	exec := softtx.NewDeliveryExecutor(store,
		softtx.NewBestEffortsDelivery(softtx.DataSources{}),
		softtx.WithClock(clockAt(base.Add(time.Minute))),
		softtx.WithMaxDeliveryTryTimes(2),
	)

	first, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed)

	second, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, second.Exhausted)

	third, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, third.Selected)

	inspector := softtx.NewInspector(store, 2, clockAt(base.Add(time.Hour)))
	exhausted, err := inspector.Exhausted(ctx, 10)
	require.NoError(t, err)
	require.Len(t, exhausted, 1)
	require.Equal(t, log.ID, exhausted[0].ID)
	require.Equal(t, 2, exhausted[0].AsyncDeliveryTryTimes)

	requeued, err := inspector.Requeue(ctx, exhausted[0])
	require.NoError(t, err)
	require.NotEqual(t, log.ID, requeued.ID)
	require.Zero(t, requeued.AsyncDeliveryTryTimes)

	report, err := inspector.List(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, report.Exhausted)
	require.Len(t, report.Pending, 1)
	require.Equal(t, requeued.ID, report.Pending[0].ID)
}

// Logs younger than the minimum delay wait for the next cycles.
func TestFreshLogWaitsForMinDelay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))
	_, err := recorder.Record(ctx, softtx.Operation{DataSourceName: "ds_0", Statement: "DELETE FROM t_order"})
	require.NoError(t, err)

	now := base.Add(30 * time.Second)
	exec := softtx.NewDeliveryExecutor(store,
		softtx.StrategyFunc(func(context.Context, softtx.TransactionLog) error { return nil }),
		softtx.WithClock(softtx.ClockFunc(func() time.Time { return now })),
	)

	result, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Selected)

	now = base.Add(time.Minute)
	result, err = exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)
	require.Zero(t, store.Len())
}

// Two executors racing over one store may replay a log twice but never fail on it.
func TestConcurrentExecutorsTolerateDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))
	for i := 0; i < 50; i++ {
		_, err := recorder.Record(ctx, softtx.Operation{DataSourceName: "ds_0", Statement: "UPDATE t SET v = v"})
		require.NoError(t, err)
	}

	var (
		mu       sync.Mutex
		replayed = make(map[string]int)
	)
	strategy := softtx.StrategyFunc(func(_ context.Context, log softtx.TransactionLog) error {
		mu.Lock()
		defer mu.Unlock()
		replayed[log.ID]++

		return nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		exec := softtx.NewDeliveryExecutor(store, strategy,
			softtx.WithClock(clockAt(base.Add(time.Hour))),
			softtx.WithParallelism(4),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.RunOnce(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Zero(t, store.Len())
	require.Len(t, replayed, 50)
}

// Dispatch by type leaves logs of other types alone.
func TestStrategiesDispatchByType(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))
	bed, err := recorder.Record(ctx, softtx.Operation{DataSourceName: "ds_0", Statement: "UPDATE a SET b = 1"})
	require.NoError(t, err)
	tcc, err := recorder.Record(ctx, softtx.Operation{
		Type:           softtx.TypeTryConfirmCancel,
		DataSourceName: "ds_0",
		Statement:      "UPDATE a SET b = 2",
	})
	require.NoError(t, err)

	var delivered []string
	exec := softtx.NewDeliveryExecutor(store,
		softtx.Strategies{
			softtx.TypeBestEffortsDelivery: softtx.StrategyFunc(func(_ context.Context, log softtx.TransactionLog) error {
				delivered = append(delivered, log.ID)

				return nil
			}),
		},
		softtx.WithClock(clockAt(base.Add(time.Hour))),
	)

	result, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, []string{bed.ID}, delivered)

	report, err := softtx.NewInspector(store, 3, nil).List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, report.Pending, 1)
	require.Equal(t, tcc.ID, report.Pending[0].ID)
}

// One executor with TypeAny hands every type to its strategy.
func TestStrategiesDeliverEveryType(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))
	bed, err := recorder.Record(ctx, softtx.Operation{DataSourceName: "ds_0", Statement: "UPDATE a SET b = 1"})
	require.NoError(t, err)
	tcc, err := recorder.Record(ctx, softtx.Operation{
		Type:           softtx.TypeTryConfirmCancel,
		DataSourceName: "ds_0",
		Statement:      "UPDATE a SET b = 2",
	})
	require.NoError(t, err)

	delivered := map[softtx.Type]string{}
	record := func(_ context.Context, log softtx.TransactionLog) error {
		delivered[log.Type] = log.ID

		return nil
	}
	exec := softtx.NewDeliveryExecutor(store,
		softtx.Strategies{
			softtx.TypeBestEffortsDelivery: softtx.StrategyFunc(record),
			softtx.TypeTryConfirmCancel:    softtx.StrategyFunc(record),
		},
		softtx.WithType(softtx.TypeAny),
		softtx.WithClock(clockAt(base.Add(time.Hour))),
	)

	result, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Delivered)
	require.Equal(t, bed.ID, delivered[softtx.TypeBestEffortsDelivery])
	require.Equal(t, tcc.ID, delivered[softtx.TypeTryConfirmCancel])
	require.Zero(t, store.Len())
}

func TestStorageOutageRecovers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := softtx.NewRecorder(store, softtx.WithRecorderClock(clockAt(base)))
	_, err := recorder.Record(ctx, softtx.Operation{DataSourceName: "ds_0", Statement: "UPDATE a SET b = 1"})
	require.NoError(t, err)

	exec := softtx.NewDeliveryExecutor(store,
		softtx.StrategyFunc(func(context.Context, softtx.TransactionLog) error { return nil }),
		softtx.WithClock(clockAt(base.Add(time.Hour))),
	)

	store.SetUnavailable(errors.New("disk full"))
	_, err = exec.RunOnce(ctx)
	require.ErrorIs(t, err, softtx.ErrStorageUnavailable)

	store.SetUnavailable(nil)
	result, err := exec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)
}
