package softtx

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned by Store.Add when the id already exists.
	ErrDuplicateID = errors.New("softtx: transaction log id already exists")
	// ErrStorageUnavailable wraps every backend failure; callers retry on the next cycle.
	ErrStorageUnavailable = errors.New("softtx: storage unavailable")
	// ErrIDRequired is returned when a transaction log has no id.
	ErrIDRequired = errors.New("softtx: transaction log id is required")
	// ErrDataSourceRequired is returned when a transaction log has no data source name.
	ErrDataSourceRequired = errors.New("softtx: data source name is required")
	// ErrStatementRequired is returned when a transaction log has no statement.
	ErrStatementRequired = errors.New("softtx: execute statement is required")
	// ErrLogNotFound is returned by Getter when no log has the requested id.
	ErrLogNotFound = errors.New("softtx: transaction log not found")
	// ErrLookupUnsupported is returned when a store cannot read a log by id.
	ErrLookupUnsupported = errors.New("softtx: store does not support lookup by id")
	// ErrInvalidTryTimes is returned when the try counter or the try floor is negative.
	ErrInvalidTryTimes = errors.New("softtx: async delivery try times must be non-negative")
	// ErrUnsupportedType is returned for an unknown transaction type or a type without a strategy.
	ErrUnsupportedType = errors.New("softtx: unsupported transaction type")
	// ErrUnknownDataSource is returned when a data source name cannot be resolved.
	ErrUnknownDataSource = errors.New("softtx: unknown data source")
	// ErrInvalidMaxTryTimes is returned when the retry ceiling is not positive.
	ErrInvalidMaxTryTimes = errors.New("softtx: max delivery try times must be positive")
	// ErrInvalidLimit is returned when the batch limit is not positive.
	ErrInvalidLimit = errors.New("softtx: limit must be positive")
	// ErrInvalidParameters is returned when parameters cannot be encoded or decoded.
	ErrInvalidParameters = errors.New("softtx: invalid parameters")
	// ErrReplayPanic indicates a strategy panicked while replaying a log.
	ErrReplayPanic = errors.New("softtx: replay panic")
)

// ReplayExecutionError reports that a replayed statement failed against its data source.
// It is the normal failure mode that drives the retry counter.
type ReplayExecutionError struct {
	LogID          string
	DataSourceName string
	Err            error
}

// Error implements error.
func (e *ReplayExecutionError) Error() string {
	return fmt.Sprintf("softtx: replay of log %s on %s failed: %v", e.LogID, e.DataSourceName, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ReplayExecutionError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err so that errors.Is(result, ErrStorageUnavailable) holds.
// Backends use it for every failure that is not ErrDuplicateID.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
