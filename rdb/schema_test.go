package rdb

import (
	"errors"
	"strings"
	"testing"
)

func TestSchemaMySQL(t *testing.T) {
	stmts, err := Schema(MySQL, "transaction_log")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected one statement, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "creation_time BIGINT NOT NULL") {
		t.Fatalf("expected millisecond creation_time column")
	}
	if !strings.Contains(stmts[0], "INDEX idx_eligible (async_delivery_try_times, transaction_type, creation_time)") {
		t.Fatalf("expected eligibility index in schema")
	}
}

func TestSchemaSQLiteIndexCarriesTable(t *testing.T) {
	stmts, err := Schema(SQLite, "main.transaction_log")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected table and index statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[1], "idx_main_transaction_log_eligible") {
		t.Fatalf("unexpected index statement: %s", stmts[1])
	}
}

func TestSchemaRejectsBadInput(t *testing.T) {
	if _, err := Schema(nil, "transaction_log"); !errors.Is(err, ErrDialectRequired) {
		t.Fatalf("expected ErrDialectRequired, got %v", err)
	}
	if _, err := Schema(MySQL, "transaction_log;drop"); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestQueriesUseDialectPurge(t *testing.T) {
	mysqlQueries := newQueries("transaction_log", MySQL)
	if !strings.HasSuffix(mysqlQueries.purge, "ORDER BY creation_time ASC LIMIT ?") {
		t.Fatalf("unexpected mysql purge query: %s", mysqlQueries.purge)
	}
	sqliteQueries := newQueries("transaction_log", SQLite)
	if !strings.Contains(sqliteQueries.purge, "WHERE id IN (SELECT id FROM transaction_log") {
		t.Fatalf("unexpected sqlite purge query: %s", sqliteQueries.purge)
	}
	if !strings.Contains(mysqlQueries.selectEligibleType, "AND transaction_type = ?") {
		t.Fatalf("expected type filter in typed select")
	}
}
