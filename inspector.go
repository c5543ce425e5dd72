package softtx

import (
	"context"
	"fmt"
)

// Report splits the stored logs by whether they still have retry budget left.
type Report struct {
	Pending   []TransactionLog
	Exhausted []TransactionLog
}

// Inspector is the operator read and remediation path over a Store.
type Inspector struct {
	store       Store
	maxTryTimes int
	clock       Clock
	generator   IDGenerator
}

// NewInspector builds an inspector that classifies logs against maxTryTimes.
func NewInspector(store Store, maxTryTimes int, clock Clock) *Inspector {
	if store == nil {
		panic("softtx: nil Store")
	}
	if maxTryTimes <= 0 {
		maxTryTimes = defaultMaxDeliveryTryTimes
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &Inspector{store: store, maxTryTimes: maxTryTimes, clock: clock, generator: UUIDv7Generator{}}
}

// List returns up to limit logs of any type and age, exhausted ones included.
func (i *Inspector) List(ctx context.Context, limit int) (Report, error) {
	logs, err := i.store.FindEligibleTransactionLogs(ctx, Criteria{
		MaxDeliveryTryTimes: UnboundedTryTimes,
		Limit:               limit,
	})
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, log := range logs {
		if Exhausted(log, i.maxTryTimes) {
			report.Exhausted = append(report.Exhausted, log)

			continue
		}
		report.Pending = append(report.Pending, log)
	}

	return report, nil
}

// Exhausted returns up to limit dead-lettered logs, oldest first. Pending logs
// never take up the limit.
func (i *Inspector) Exhausted(ctx context.Context, limit int) ([]TransactionLog, error) {
	return i.store.FindEligibleTransactionLogs(ctx, Criteria{
		MinTryTimes:         i.maxTryTimes,
		MaxDeliveryTryTimes: UnboundedTryTimes,
		Limit:               limit,
	})
}

// Get reads one log by id. The store must implement Getter.
func (i *Inspector) Get(ctx context.Context, id string) (TransactionLog, error) {
	getter, ok := i.store.(Getter)
	if !ok {
		return TransactionLog{}, ErrLookupUnsupported
	}

	return getter.GetTransactionLog(ctx, id)
}

// Remove deletes a log after manual remediation.
func (i *Inspector) Remove(ctx context.Context, id string) error {
	return i.store.Remove(ctx, id)
}

// Requeue stores a fresh copy of log under a new id with a zero try counter and
// removes the original. Removed ids are never reused.
//
// When the store implements Getter, the original is re-read first and
// ErrLogNotFound is returned if it was delivered or removed in the meantime.
// A pending log can still be delivered between that read and the removal;
// exhausted logs are never selected by an executor, so requeueing them is exact.
func (i *Inspector) Requeue(ctx context.Context, log TransactionLog) (TransactionLog, error) {
	if getter, ok := i.store.(Getter); ok {
		current, err := getter.GetTransactionLog(ctx, log.ID)
		if err != nil {
			return TransactionLog{}, fmt.Errorf("softtx: requeue %s: %w", log.ID, err)
		}
		log = current
	}

	id, err := i.generator.New()
	if err != nil {
		return TransactionLog{}, err
	}

	fresh := log.Clone()
	fresh.ID = id
	fresh.AsyncDeliveryTryTimes = 0
	fresh.CreationTime = TruncateMillis(i.clock.Now())
	if err := i.store.Add(ctx, fresh); err != nil {
		return TransactionLog{}, fmt.Errorf("softtx: requeue %s: %w", log.ID, err)
	}
	if err := i.store.Remove(ctx, log.ID); err != nil {
		return fresh, fmt.Errorf("softtx: remove requeued %s: %w", log.ID, err)
	}

	return fresh, nil
}
