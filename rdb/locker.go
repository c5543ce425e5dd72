package rdb

import (
	"context"
	"database/sql"

	"github.com/velmie/softtx"
)

// AdvisoryLocker implements softtx.Locker with MySQL GET_LOCK on a pinned connection.
type AdvisoryLocker struct {
	db   *sql.DB
	name string

	conn *sql.Conn
}

var _ softtx.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker returns a locker for the named MySQL advisory lock.
// A locker must not be shared between concurrent cycles.
func NewAdvisoryLocker(db *sql.DB, name string) (*AdvisoryLocker, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if name == "" {
		return nil, ErrLockNameRequired
	}

	return &AdvisoryLocker{db: db, name: name}, nil
}

// TryLock takes the lock without waiting.
func (l *AdvisoryLocker) TryLock(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, softtx.Unavailable("lock conn", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", l.name).Scan(&got); err != nil {
		_ = conn.Close()

		return false, softtx.Unavailable("get lock", err)
	}
	if !got.Valid || got.Int64 == 0 {
		_ = conn.Close()

		return false, nil
	}
	l.conn = conn

	return true, nil
}

// Unlock releases the lock and returns the pinned connection to the pool.
func (l *AdvisoryLocker) Unlock(ctx context.Context) error {
	conn := l.conn
	if conn == nil {
		return ErrLockNotHeld
	}
	l.conn = nil
	defer conn.Close()

	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
		return softtx.Unavailable("release lock", err)
	}

	return nil
}
