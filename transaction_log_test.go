package softtx

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionLogValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TransactionLog)
		want   error
	}{
		{"valid", func(*TransactionLog) {}, nil},
		{"missing id", func(l *TransactionLog) { l.ID = "" }, ErrIDRequired},
		{"unknown type", func(l *TransactionLog) { l.Type = 0 }, ErrUnsupportedType},
		{"missing data source", func(l *TransactionLog) { l.DataSourceName = "" }, ErrDataSourceRequired},
		{"missing statement", func(l *TransactionLog) { l.ExecuteStatement = "" }, ErrStatementRequired},
		{"negative tries", func(l *TransactionLog) { l.AsyncDeliveryTryTimes = -1 }, ErrInvalidTryTimes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := newTestLog("a", 0)
			tc.mutate(&log)
			if err := log.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTransactionLogCloneIsDeep(t *testing.T) {
	log := newTestLog("a", 0)
	clone := log.Clone()
	clone.Parameters[0] = "CHANGED"
	if log.Parameters[0] != "PAID" {
		t.Fatalf("clone shares parameters with the original")
	}

	log.Parameters = []any{[]byte{1, 2}}
	clone = log.Clone()
	clone.Parameters[0].([]byte)[0] = 9
	if log.Parameters[0].([]byte)[0] != 1 {
		t.Fatalf("clone shares byte parameters with the original")
	}

	empty := TransactionLog{}
	if empty.Clone().Parameters != nil {
		t.Fatalf("nil parameters must stay nil")
	}
}

func TestTruncateMillis(t *testing.T) {
	in := time.Date(2016, 4, 19, 10, 47, 38, 701_999_999, time.FixedZone("X", 3600))
	out := TruncateMillis(in)
	if out.Nanosecond() != 701_000_000 || out.Location() != time.UTC {
		t.Fatalf("unexpected truncation %s", out)
	}
	if out.UnixMilli() != in.UnixMilli() {
		t.Fatalf("truncation changed the millisecond")
	}
}
