package softtx

// Logger receives the structured events of recorders and executors. Args are
// alternating key/value pairs, the convention of zap's SugaredLogger and
// log/slog, so either can be adapted with a thin wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards every event. It is the default when no logger is configured.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NopLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, ...any) {}

// logAttrs returns the key/value pairs identifying a log, followed by kv.
func logAttrs(log TransactionLog, kv ...any) []any {
	attrs := make([]any, 0, 6+len(kv))
	attrs = append(attrs, "id", log.ID, "tx", log.TransactionID, "datasource", log.DataSourceName)

	return append(attrs, kv...)
}
