package softtx

import (
	"context"
	"fmt"
)

// Operation is a resolved sub-operation handed over by the routing layer when it
// cannot be committed atomically with its siblings.
type Operation struct {
	// TransactionID groups the operations of one logical write. Generated if empty.
	TransactionID string
	// Type defaults to TypeBestEffortsDelivery.
	Type           Type
	DataSourceName string
	Statement      string
	Parameters     []any
}

// RecorderConfig controls how a Recorder builds logs.
type RecorderConfig struct {
	Clock     Clock
	Generator IDGenerator
	Logger    Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*RecorderConfig)

// WithRecorderClock sets the clock used for creation times.
func WithRecorderClock(clock Clock) RecorderOption {
	return func(c *RecorderConfig) {
		c.Clock = clock
	}
}

// WithIDGenerator sets the id generator.
func WithIDGenerator(gen IDGenerator) RecorderOption {
	return func(c *RecorderConfig) {
		c.Generator = gen
	}
}

// WithRecorderLogger sets the recorder logger.
func WithRecorderLogger(logger Logger) RecorderOption {
	return func(c *RecorderConfig) {
		c.Logger = logger
	}
}

// Recorder turns failed sub-operations into stored transaction logs.
type Recorder struct {
	store Store
	cfg   RecorderConfig
}

// NewRecorder constructs a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	if store == nil {
		panic("softtx: nil Store")
	}

	var cfg RecorderConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Generator == nil {
		cfg.Generator = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}

	return &Recorder{store: store, cfg: cfg}
}

// Record assigns an id and a creation time to op and adds it to the store.
func (r *Recorder) Record(ctx context.Context, op Operation) (TransactionLog, error) {
	log, err := r.newLog(op)
	if err != nil {
		return TransactionLog{}, err
	}
	if err := r.store.Add(ctx, log); err != nil {
		r.cfg.Logger.Error("softtx record failed", logAttrs(log, "err", err)...)

		return TransactionLog{}, err
	}
	r.cfg.Logger.Debug("softtx log recorded", logAttrs(log)...)

	return log, nil
}

func (r *Recorder) newLog(op Operation) (TransactionLog, error) {
	id, err := r.cfg.Generator.New()
	if err != nil {
		return TransactionLog{}, err
	}

	txID := op.TransactionID
	if txID == "" {
		if txID, err = r.cfg.Generator.New(); err != nil {
			return TransactionLog{}, err
		}
	}

	typ := op.Type
	if typ == 0 {
		typ = TypeBestEffortsDelivery
	}

	params := make([]any, len(op.Parameters))
	copy(params, op.Parameters)

	log := TransactionLog{
		ID:               id,
		TransactionID:    txID,
		Type:             typ,
		DataSourceName:   op.DataSourceName,
		ExecuteStatement: op.Statement,
		Parameters:       params,
		CreationTime:     TruncateMillis(r.cfg.Clock.Now()),
	}
	if err := log.Validate(); err != nil {
		return TransactionLog{}, fmt.Errorf("softtx: invalid operation: %w", err)
	}

	return log, nil
}
