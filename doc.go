// Package softtx provides the soft-transaction log store contract and a
// best-efforts delivery executor for sharded writes without a global
// transaction coordinator.
//
// Typical flow:
//  1. When a sub-operation of a multi-shard write cannot be committed atomically,
//     the routing layer hands it to a Recorder, which assigns an id and a creation
//     time and appends a TransactionLog to a Store.
//  2. One or more DeliveryExecutors poll the Store for eligible logs and replay each
//     one against its data source through the Strategy registered for its Type.
//  3. On success the log is removed; on failure its try counter is incremented.
//     Logs that reach the retry ceiling stay in the Store and are only visible
//     through the Inspector.
//
// Backends live in sub-packages: memory (ordered in-memory), rdb (database/sql
// for MySQL and SQLite), gormstore (gorm) and pebblestore (embedded key-value).
package softtx
