package rdb

const defaultTable = "transaction_log"

// Config defines relational store behavior.
type Config struct {
	Table   string
	Dialect Dialect
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Dialect == nil {
		c.Dialect = MySQL
	}

	return c
}

// Option configures the relational store.
type Option func(*Config)

// WithTable sets the transaction log table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithDialect selects the SQL dialect. MySQL is the default.
func WithDialect(dialect Dialect) Option {
	return func(c *Config) {
		c.Dialect = dialect
	}
}
