package rdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlDuplicateEntry = 1062

	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// Dialect captures the SQL differences between supported databases.
type Dialect interface {
	// Name returns the database/sql driver name.
	Name() string
	// IsDuplicate reports whether err is a primary key violation.
	IsDuplicate(err error) bool

	schema(table string) []string
	purgeQuery(table string) string
}

// MySQL is the dialect for MySQL 8.0+.
var MySQL Dialect = mysqlDialect{}

// SQLite is the dialect for SQLite 3.
var SQLite Dialect = sqliteDialect{}

// DialectByName returns the dialect registered for a driver name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return MySQL, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("softtx rdb: unknown dialect %q", name)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	return false
}

func (mysqlDialect) schema(table string) []string {
	return []string{fmt.Sprintf(mysqlSchemaTemplate, table)}
}

// MySQL rejects LIMIT inside IN subqueries but accepts it on single-table DELETE.
func (mysqlDialect) purgeQuery(table string) string {
	return fmt.Sprintf(
		"DELETE FROM %s WHERE async_delivery_try_times >= ? AND creation_time <= ? ORDER BY creation_time ASC LIMIT ?",
		table,
	)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

// sqlite3.Error only exists in cgo builds, so its codes are read through its
// exported fields instead of the type.
func (sqliteDialect) IsDuplicate(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		data, marshalErr := json.Marshal(err)
		if marshalErr != nil {
			continue
		}
		var codes struct {
			ExtendedCode int
		}
		if json.Unmarshal(data, &codes) != nil {
			continue
		}
		if codes.ExtendedCode == sqliteConstraintPrimaryKey || codes.ExtendedCode == sqliteConstraintUnique {
			return true
		}
	}

	return false
}

func (sqliteDialect) schema(table string) []string {
	return []string{
		fmt.Sprintf(sqliteSchemaTemplate, table),
		fmt.Sprintf(sqliteIndexTemplate, eligibleIndexName(table), table),
	}
}

func (sqliteDialect) purgeQuery(table string) string {
	return fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE async_delivery_try_times >= ? AND creation_time <= ? "+
			"ORDER BY creation_time ASC LIMIT ?)",
		table,
		table,
	)
}
