package softtx

import (
	"context"
	"database/sql"
	"fmt"
)

// DataSource executes a replayed statement. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type DataSource interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DataSourceResolver looks up a physical data source by name.
type DataSourceResolver interface {
	// DataSource returns the named data source or ErrUnknownDataSource.
	DataSource(name string) (DataSource, error)
}

// DataSources is a static name to data source registry.
type DataSources map[string]DataSource

// DataSource implements DataSourceResolver.
func (d DataSources) DataSource(name string) (DataSource, error) {
	ds, ok := d[name]
	if !ok || ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataSource, name)
	}

	return ds, nil
}
