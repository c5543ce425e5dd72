package softtx

import "time"

// TransactionLog is one pending sub-operation of a soft transaction.
//
// Everything except AsyncDeliveryTryTimes is immutable once the log is added to a Store.
type TransactionLog struct {
	// ID uniquely identifies the log for the lifetime of the store.
	ID string
	// TransactionID groups the logs of one logical multi-shard write.
	TransactionID string
	// Type selects the delivery strategy.
	Type Type
	// DataSourceName names the physical target the statement is replayed against.
	DataSourceName string
	// ExecuteStatement is the parameterized statement to replay.
	ExecuteStatement string
	// Parameters are the ordered bind values for ExecuteStatement.
	Parameters []any
	// CreationTime is stored with millisecond precision.
	CreationTime time.Time
	// AsyncDeliveryTryTimes counts failed delivery attempts.
	AsyncDeliveryTryTimes int
}

// CreationTimeMillis returns the creation time as Unix milliseconds.
func (l TransactionLog) CreationTimeMillis() int64 {
	return l.CreationTime.UnixMilli()
}

// Validate checks the fields every backend relies on.
func (l TransactionLog) Validate() error {
	if l.ID == "" {
		return ErrIDRequired
	}
	if !l.Type.Valid() {
		return ErrUnsupportedType
	}
	if l.DataSourceName == "" {
		return ErrDataSourceRequired
	}
	if l.ExecuteStatement == "" {
		return ErrStatementRequired
	}
	if l.AsyncDeliveryTryTimes < 0 {
		return ErrInvalidTryTimes
	}

	return nil
}

// Clone returns a copy whose Parameters slice and []byte values are its own.
// Other reference values inside Parameters, such as pointers, are shared.
func (l TransactionLog) Clone() TransactionLog {
	out := l
	if l.Parameters != nil {
		out.Parameters = make([]any, len(l.Parameters))
		for i, value := range l.Parameters {
			if b, ok := value.([]byte); ok && b != nil {
				value = append([]byte(nil), b...)
			}
			out.Parameters[i] = value
		}
	}

	return out
}
