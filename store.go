package softtx

import "context"

// Store persists transaction logs.
//
// Each operation is scoped to a single id and must be safe under concurrent
// callers. Every backend failure is returned wrapping ErrStorageUnavailable;
// a failed call must be treated as not having taken effect.
type Store interface {
	// Add persists a new log. It returns ErrDuplicateID if the id already exists.
	Add(ctx context.Context, log TransactionLog) error
	// Remove deletes the log with the given id. Unknown ids are a no-op.
	Remove(ctx context.Context, id string) error
	// IncreaseAsyncDeliveryTryTimes atomically adds one to the try counter.
	// Unknown ids are a no-op.
	IncreaseAsyncDeliveryTryTimes(ctx context.Context, id string) error
	// FindEligibleTransactionLogs returns up to criteria.Limit logs matching criteria.
	// It returns an empty slice when nothing qualifies.
	FindEligibleTransactionLogs(ctx context.Context, criteria Criteria) ([]TransactionLog, error)
}

// Getter is implemented by stores that can read a single log by id.
type Getter interface {
	// GetTransactionLog returns the log with the given id or ErrLogNotFound.
	GetTransactionLog(ctx context.Context, id string) (TransactionLog, error)
}

// PendingCounter reports how many logs currently match criteria, ignoring criteria.Limit.
type PendingCounter interface {
	// PendingCount returns the number of matching logs.
	PendingCount(ctx context.Context, criteria Criteria) (int, error)
}

// Locker guards a delivery cycle across processes.
type Locker interface {
	// TryLock attempts to take the lock without blocking.
	TryLock(ctx context.Context) (bool, error)
	// Unlock releases a lock taken by TryLock.
	Unlock(ctx context.Context) error
}
