package softtx

import (
	"context"
	"time"
)

const (
	defaultMaxDeliveryTryTimes = 3
	defaultBatchSize           = 100
	defaultMinDelay            = 60 * time.Second
	defaultPollInterval        = 5 * time.Second
	defaultParallelism         = 1
	defaultPendingCheck        = 0
	backoffCeilingShift        = 3
)

// ErrorHandler is called for every failed replay before the try counter is incremented.
type ErrorHandler func(ctx context.Context, log TransactionLog, err error)

// Config defines how the DeliveryExecutor selects and replays logs.
type Config struct {
	// MaxDeliveryTryTimes is the exclusive ceiling on the try counter.
	MaxDeliveryTryTimes int
	// BatchSize caps the logs selected per cycle.
	BatchSize int
	// MinDelay is how long a log waits after creation before its first retry.
	MinDelay time.Duration
	// PollInterval is the cycle period.
	PollInterval time.Duration
	// Parallelism bounds concurrent replays within a cycle.
	Parallelism int
	// ReplayTimeout bounds a single replay, zero disables it.
	ReplayTimeout time.Duration
	// PendingInterval enables pending count sampling when positive.
	PendingInterval time.Duration
	// Type restricts the cycle to logs of one transaction type. The default is
	// TypeBestEffortsDelivery; WithType(TypeAny) selects every type.
	Type         Type
	Clock        Clock
	Logger       Logger
	Metrics      Metrics
	Locker       Locker
	ErrorHandler ErrorHandler

	minDelaySet bool
	typeSet     bool
}

func (c Config) withDefaults() Config {
	if c.MaxDeliveryTryTimes <= 0 {
		c.MaxDeliveryTryTimes = defaultMaxDeliveryTryTimes
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MinDelay == 0 && !c.minDelaySet {
		c.MinDelay = defaultMinDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}
	if c.Type == TypeAny && !c.typeSet {
		c.Type = TypeBestEffortsDelivery
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// Option configures the DeliveryExecutor.
type Option func(*Config)

// WithMaxDeliveryTryTimes sets the retry ceiling.
func WithMaxDeliveryTryTimes(n int) Option {
	return func(c *Config) {
		c.MaxDeliveryTryTimes = n
	}
}

// WithBatchSize sets the number of logs selected per cycle.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithMinDelay sets the minimum age of a log before it is retried.
// Use zero to retry immediately; the default is one minute.
func WithMinDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.MinDelay = delay
		c.minDelaySet = true
	}
}

// WithPollInterval sets the delay between cycles.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithParallelism sets how many logs of one cycle are replayed concurrently.
func WithParallelism(n int) Option {
	return func(c *Config) {
		c.Parallelism = n
	}
}

// WithReplayTimeout sets a per-log replay timeout.
func WithReplayTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReplayTimeout = timeout
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// The store must implement PendingCounter.
func WithPendingInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PendingInterval = interval
	}
}

// WithType restricts delivery to one transaction type, or lifts the
// restriction with TypeAny.
func WithType(t Type) Option {
	return func(c *Config) {
		c.Type = t
		c.typeSet = true
	}
}

// WithClock sets the executor clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithLocker makes each cycle run only while holding locker.
func WithLocker(locker Locker) Option {
	return func(c *Config) {
		c.Locker = locker
	}
}

// WithErrorHandler registers a callback for replay failures.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *Config) {
		c.ErrorHandler = handler
	}
}
