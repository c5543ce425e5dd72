package rdb

const mysqlSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(40) NOT NULL,
	transaction_id VARCHAR(40) NOT NULL,
	transaction_type VARCHAR(30) NOT NULL,
	data_source VARCHAR(255) NOT NULL,
	execute_statement TEXT NOT NULL,
	parameters LONGBLOB NOT NULL,
	creation_time BIGINT NOT NULL,
	async_delivery_try_times INT NOT NULL DEFAULT 0,
	PRIMARY KEY (id),
	INDEX idx_eligible (async_delivery_try_times, transaction_type, creation_time)
);`

const sqliteSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	data_source TEXT NOT NULL,
	execute_statement TEXT NOT NULL,
	parameters BLOB NOT NULL,
	creation_time INTEGER NOT NULL,
	async_delivery_try_times INTEGER NOT NULL DEFAULT 0
);`

const sqliteIndexTemplate = `CREATE INDEX IF NOT EXISTS %s ON %s (async_delivery_try_times, transaction_type, creation_time);`

// Schema returns the DDL statements for a transaction log table in the given dialect.
func Schema(dialect Dialect, table string) ([]string, error) {
	if dialect == nil {
		return nil, ErrDialectRequired
	}
	name, err := sanitizeTableName(table)
	if err != nil {
		return nil, err
	}

	return dialect.schema(name), nil
}
