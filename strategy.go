package softtx

import (
	"context"
	"fmt"
)

// Strategy replays a single transaction log. A nil error means the log was delivered.
type Strategy interface {
	// Replay attempts delivery of log.
	Replay(ctx context.Context, log TransactionLog) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, log TransactionLog) error

// Replay implements Strategy.
func (fn StrategyFunc) Replay(ctx context.Context, log TransactionLog) error {
	return fn(ctx, log)
}

// Strategies dispatches replay by transaction type.
type Strategies map[Type]Strategy

// Replay implements Strategy by delegating to the strategy registered for log.Type.
func (s Strategies) Replay(ctx context.Context, log TransactionLog) error {
	strategy, ok := s[log.Type]
	if !ok || strategy == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, log.Type)
	}

	return strategy.Replay(ctx, log)
}

type bestEffortsDelivery struct {
	resolver DataSourceResolver
}

// NewBestEffortsDelivery returns a strategy that re-executes the logged statement
// with its parameters against the named data source.
func NewBestEffortsDelivery(resolver DataSourceResolver) Strategy {
	if resolver == nil {
		panic("softtx: nil DataSourceResolver")
	}

	return bestEffortsDelivery{resolver: resolver}
}

func (b bestEffortsDelivery) Replay(ctx context.Context, log TransactionLog) error {
	ds, err := b.resolver.DataSource(log.DataSourceName)
	if err != nil {
		return &ReplayExecutionError{LogID: log.ID, DataSourceName: log.DataSourceName, Err: err}
	}
	if _, err := ds.ExecContext(ctx, log.ExecuteStatement, log.Parameters...); err != nil {
		return &ReplayExecutionError{LogID: log.ID, DataSourceName: log.DataSourceName, Err: err}
	}

	return nil
}
