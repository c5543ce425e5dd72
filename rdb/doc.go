// Package rdb provides a relational softtx.Store over database/sql.
//
// Two dialects are supported:
//   - MySQL 8.0+ via github.com/go-sql-driver/mysql
//   - SQLite via github.com/mattn/go-sqlite3
//
// The eligibility query is a single indexed statement:
//
//	SELECT ... WHERE async_delivery_try_times < ? AND creation_time <= ? [AND transaction_type = ?]
//	ORDER BY creation_time, id LIMIT ?
//
// See Schema for the table layout, Store.PurgeExhausted for operator-driven
// deletion of dead-lettered logs, and AdvisoryLocker for a MySQL GET_LOCK based
// softtx.Locker.
package rdb
