package softtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DeliveryExecutor drains eligible logs from a Store and drives each one to
// removal or exhaustion. It keeps no state between cycles beyond what the
// Store records.
type DeliveryExecutor struct {
	store    Store
	strategy Strategy
	cfg      Config

	pendingMu sync.Mutex
	pendingAt time.Time
}

// CycleResult summarizes one delivery cycle.
type CycleResult struct {
	// Skipped is set when another process held the cycle lock.
	Skipped   bool
	Selected  int
	Delivered int
	Failed    int
	// Exhausted counts failed logs whose counter reached the ceiling in this cycle.
	Exhausted int
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeDelivered
	outcomeFailed
	outcomeExhausted
)

// NewDeliveryExecutor constructs an executor with defaults and optional settings.
// Pass a Strategies map to dispatch by transaction type.
func NewDeliveryExecutor(store Store, strategy Strategy, opts ...Option) *DeliveryExecutor {
	if store == nil {
		panic("softtx: nil Store")
	}
	if strategy == nil {
		panic("softtx: nil Strategy")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &DeliveryExecutor{
		store:    store,
		strategy: strategy,
		cfg:      cfg,
	}
}

// Config returns the effective configuration.
func (e *DeliveryExecutor) Config() Config {
	return e.cfg
}

// Run executes a cycle every PollInterval until ctx is canceled.
// Cycle failures are logged and never stop the loop; after a storage failure
// the wait doubles up to eight poll intervals.
func (e *DeliveryExecutor) Run(ctx context.Context) error {
	wait := e.cfg.PollInterval
	for {
		_, err := e.RunOnce(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.Canceled) {
				return nil
			}

			return ctxErr
		}
		if err != nil {
			wait = e.backoff(wait)
			e.cfg.Logger.Warn("softtx delivery cycle failed", "err", err, "next", wait)
		} else {
			wait = e.cfg.PollInterval
		}

		if err := e.sleep(ctx, wait); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}
	}
}

// RunOnce executes a single delivery cycle.
//
// A storage error aborts the cycle and is returned; logs already handled in the
// cycle keep their new state. Replay failures are not errors.
func (e *DeliveryExecutor) RunOnce(ctx context.Context) (result CycleResult, err error) {
	start := time.Now()
	defer func() {
		e.cfg.Metrics.ObserveCycleDuration(time.Since(start))
		if err != nil && !isContextErr(err) {
			e.cfg.Metrics.AddCycleErrors(1)
		}
	}()

	if e.cfg.Locker != nil {
		locked, lockErr := e.cfg.Locker.TryLock(ctx)
		if lockErr != nil {
			return CycleResult{}, Unavailable("lock", lockErr)
		}
		if !locked {
			e.cfg.Logger.Debug("softtx delivery lock held by another process")

			return CycleResult{Skipped: true}, nil
		}
		defer e.unlock(ctx)
	}

	criteria := NewCriteria(e.cfg.Clock.Now(), e.cfg.MaxDeliveryTryTimes, e.cfg.BatchSize, e.cfg.MinDelay).
		WithType(e.cfg.Type)
	logs, err := e.store.FindEligibleTransactionLogs(ctx, criteria)
	if err != nil {
		return CycleResult{}, fmt.Errorf("softtx: find eligible logs: %w", err)
	}
	result.Selected = len(logs)
	if len(logs) == 0 {
		e.maybeRecordPending(ctx, criteria)

		return result, nil
	}

	result, err = e.deliverAll(ctx, logs, result)
	e.cfg.Metrics.AddDelivered(result.Delivered)
	e.cfg.Metrics.AddFailed(result.Failed + result.Exhausted)
	e.cfg.Metrics.AddExhausted(result.Exhausted)
	if err != nil {
		return result, err
	}

	e.maybeRecordPending(ctx, criteria)

	return result, nil
}

func (e *DeliveryExecutor) deliverAll(ctx context.Context, logs []TransactionLog, result CycleResult) (CycleResult, error) {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, e.cfg.Parallelism)

	for i := range logs {
		select {
		case <-cycleCtx.Done():
		case sem <- struct{}{}:
		}
		if cycleCtx.Err() != nil {
			break
		}

		log := logs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := e.deliver(cycleCtx, log)

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeDelivered:
				result.Delivered++
			case outcomeFailed:
				result.Failed++
			case outcomeExhausted:
				result.Exhausted++
			}
			if err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		return result, firstErr
	}

	return result, ctx.Err()
}

func (e *DeliveryExecutor) deliver(ctx context.Context, log TransactionLog) (outcome, error) {
	err := e.replay(ctx, log)
	if err == nil {
		if err := e.store.Remove(ctx, log.ID); err != nil {
			return outcomeNone, fmt.Errorf("softtx: remove delivered log %s: %w", log.ID, err)
		}
		e.cfg.Logger.Debug("softtx log delivered", logAttrs(log)...)

		return outcomeDelivered, nil
	}
	if ctx.Err() != nil {
		return outcomeNone, ctx.Err()
	}

	if e.cfg.ErrorHandler != nil {
		e.cfg.ErrorHandler(ctx, log, err)
	}
	if err := e.store.IncreaseAsyncDeliveryTryTimes(ctx, log.ID); err != nil {
		return outcomeNone, fmt.Errorf("softtx: increase try times of log %s: %w", log.ID, err)
	}

	// Counted from the selected copy. Another executor replaying the same log
	// concurrently may have incremented it too, so the store can be ahead of
	// tries; the store stays authoritative and the exhausted count in
	// CycleResult and Metrics is approximate under such races.
	tries := log.AsyncDeliveryTryTimes + 1
	if tries >= e.cfg.MaxDeliveryTryTimes {
		e.cfg.Logger.Warn("softtx log exhausted retry budget", logAttrs(log, "tries", tries, "err", err)...)

		return outcomeExhausted, nil
	}
	e.cfg.Logger.Info("softtx log replay failed", logAttrs(log, "tries", tries, "err", err)...)

	return outcomeFailed, nil
}

func (e *DeliveryExecutor) replay(ctx context.Context, log TransactionLog) (err error) {
	replayCtx := ctx
	cancel := func() {}
	if e.cfg.ReplayTimeout > 0 {
		replayCtx, cancel = context.WithTimeout(ctx, e.cfg.ReplayTimeout)
	}
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			e.cfg.Logger.Error("softtx replay panic", logAttrs(log, "panic", rec)...)
			err = &ReplayExecutionError{LogID: log.ID, DataSourceName: log.DataSourceName, Err: fmt.Errorf("%w: %v", ErrReplayPanic, rec)}
		}
	}()

	return e.strategy.Replay(replayCtx, log.Clone())
}

func (e *DeliveryExecutor) unlock(ctx context.Context) {
	// The cycle context may already be canceled; release with a detached one.
	if err := e.cfg.Locker.Unlock(context.WithoutCancel(ctx)); err != nil {
		e.cfg.Logger.Warn("softtx delivery unlock failed", "err", err)
	}
}

// backoff doubles the wait, capped at eight poll intervals.
func (e *DeliveryExecutor) backoff(wait time.Duration) time.Duration {
	wait <<= 1
	if threshold := e.cfg.PollInterval << backoffCeilingShift; wait > threshold {
		return threshold
	}

	return wait
}

func (e *DeliveryExecutor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *DeliveryExecutor) maybeRecordPending(ctx context.Context, criteria Criteria) {
	counter, ok := e.store.(PendingCounter)
	if !ok {
		return
	}
	if e.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := e.cfg.Clock.Now()
	e.pendingMu.Lock()
	nextAllowed := e.pendingAt.Add(e.cfg.PendingInterval)
	if !e.pendingAt.IsZero() && now.Before(nextAllowed) {
		e.pendingMu.Unlock()

		return
	}
	e.pendingAt = now
	e.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx, criteria)
	if err != nil {
		e.cfg.Logger.Warn("softtx pending count failed", "err", err)

		return
	}

	e.cfg.Metrics.SetPending(count)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
