package rdb

import (
	"errors"
	"fmt"
	"strings"
)

// maxIdentifierLength is the MySQL limit for a single identifier part.
// The same cap applies to SQLite tables.
const maxIdentifierLength = 64

// sanitizeTableName accepts an optionally schema-qualified table name made of
// ASCII letters, digits and underscores. The name is interpolated into
// statements verbatim, so anything else is rejected.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s: too many qualifiers", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if err := checkIdentifier(part); err != nil {
			return "", fmt.Errorf("%w: %s: %s", ErrInvalidTableName, name, err.Error())
		}
	}
	// the SQLite index name embeds the whole table name
	if idx := eligibleIndexName(name); len(idx) > maxIdentifierLength {
		return "", fmt.Errorf("%w: %s: index name %s exceeds %d characters",
			ErrInvalidTableName, name, idx, maxIdentifierLength)
	}

	return name, nil
}

func checkIdentifier(part string) error {
	if part == "" {
		return errors.New("empty identifier")
	}
	if len(part) > maxIdentifierLength {
		return fmt.Errorf("identifier exceeds %d characters", maxIdentifierLength)
	}
	for _, r := range part {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}

		return fmt.Errorf("unexpected character %q", r)
	}

	return nil
}

// eligibleIndexName names the SQLite eligibility index. SQLite index names
// are schema-wide, so they carry the table name.
func eligibleIndexName(table string) string {
	return "idx_" + strings.ReplaceAll(table, ".", "_") + "_eligible"
}
