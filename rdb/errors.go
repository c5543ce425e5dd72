package rdb

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("softtx rdb: db is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("softtx rdb: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters
	// or exceeds the identifier length limit.
	ErrInvalidTableName = errors.New("softtx rdb: invalid table name")
	// ErrDialectRequired is returned when a nil dialect is configured.
	ErrDialectRequired = errors.New("softtx rdb: dialect is required")
	// ErrPurgeBeforeRequired is returned when the purge cutoff is missing.
	ErrPurgeBeforeRequired = errors.New("softtx rdb: purge before time is required")
	// ErrPurgeLimitInvalid is returned when the purge limit is negative.
	ErrPurgeLimitInvalid = errors.New("softtx rdb: purge limit must be non-negative")
	// ErrPurgeRetentionInvalid is returned when the purge retention is not positive.
	ErrPurgeRetentionInvalid = errors.New("softtx rdb: purge retention must be positive")
	// ErrLockNameRequired is returned when an advisory lock has no name.
	ErrLockNameRequired = errors.New("softtx rdb: lock name is required")
	// ErrLockNotHeld is returned by Unlock when TryLock did not succeed.
	ErrLockNotHeld = errors.New("softtx rdb: lock not held")
)
