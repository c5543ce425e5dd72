package rdb

import (
	"context"
	"time"

	"github.com/velmie/softtx"
)

const (
	defaultPurgeLimit = 10000
	defaultPurgeEvery = time.Hour
)

// PurgeOptions selects exhausted logs for deletion.
type PurgeOptions struct {
	// MaxDeliveryTryTimes is the ceiling the executor runs with; logs at or above it are exhausted.
	MaxDeliveryTryTimes int
	// Before removes logs created at or before this time (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
}

// PurgeExhausted deletes exhausted logs older than opts.Before.
// Logs still under the ceiling are never touched.
func (s *Store) PurgeExhausted(ctx context.Context, opts PurgeOptions) (int64, error) {
	if opts.Before.IsZero() {
		return 0, ErrPurgeBeforeRequired
	}
	if opts.MaxDeliveryTryTimes <= 0 {
		return 0, softtx.ErrInvalidMaxTryTimes
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultPurgeLimit
	}
	if limit < 0 {
		return 0, ErrPurgeLimitInvalid
	}

	res, err := s.db.ExecContext(ctx, s.queries.purge, opts.MaxDeliveryTryTimes, opts.Before.UnixMilli(), limit)
	if err != nil {
		return 0, softtx.Unavailable("purge", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, softtx.Unavailable("purge rows", err)
	}

	return affected, nil
}

// PurgeMaintainerConfig controls periodic purging of exhausted logs.
type PurgeMaintainerConfig struct {
	// MaxDeliveryTryTimes must match the executor ceiling.
	MaxDeliveryTryTimes int
	// Retention keeps exhausted logs for at least this long after creation (required).
	Retention time.Duration
	// CheckEvery is the interval between purge runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// Locker makes a single node purge at a time. Optional.
	Locker softtx.Locker
	// Clock overrides time source (useful for tests).
	Clock  softtx.Clock
	Logger softtx.Logger
}

// PurgeMaintainer runs PurgeExhausted periodically.
type PurgeMaintainer struct {
	store *Store
	cfg   PurgeMaintainerConfig
}

// NewPurgeMaintainer creates a maintainer with defaults applied.
func NewPurgeMaintainer(store *Store, cfg PurgeMaintainerConfig) (*PurgeMaintainer, error) {
	if store == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrPurgeRetentionInvalid
	}
	if cfg.MaxDeliveryTryTimes <= 0 {
		return nil, softtx.ErrInvalidMaxTryTimes
	}
	if cfg.Limit < 0 {
		return nil, ErrPurgeLimitInvalid
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultPurgeEvery
	}
	if cfg.Clock == nil {
		cfg.Clock = softtx.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = softtx.NopLogger{}
	}

	return &PurgeMaintainer{store: store, cfg: cfg}, nil
}

// Run purges every CheckEvery until the context is canceled.
func (m *PurgeMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	for {
		if _, err := m.Ensure(ctx); err != nil {
			m.cfg.Logger.Warn("softtx purge failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ensure executes a single purge pass.
func (m *PurgeMaintainer) Ensure(ctx context.Context) (int64, error) {
	if m.cfg.Locker != nil {
		locked, err := m.cfg.Locker.TryLock(ctx)
		if err != nil {
			return 0, err
		}
		if !locked {
			m.cfg.Logger.Debug("softtx purge lock held by another process")

			return 0, nil
		}
		defer func() {
			if err := m.cfg.Locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				m.cfg.Logger.Warn("softtx purge unlock failed", "err", err)
			}
		}()
	}

	removed, err := m.store.PurgeExhausted(ctx, PurgeOptions{
		MaxDeliveryTryTimes: m.cfg.MaxDeliveryTryTimes,
		Before:              m.cfg.Clock.Now().Add(-m.cfg.Retention),
		Limit:               m.cfg.Limit,
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.cfg.Logger.Info("softtx purged exhausted logs", "count", removed)
	}

	return removed, nil
}
