package softtx

import (
	"context"
	"testing"
	"time"
)

type benchStore struct{}

func (benchStore) Add(context.Context, TransactionLog) error { return nil }

func (benchStore) Remove(context.Context, string) error { return nil }

func (benchStore) IncreaseAsyncDeliveryTryTimes(context.Context, string) error { return nil }

func (benchStore) FindEligibleTransactionLogs(context.Context, Criteria) ([]TransactionLog, error) {
	return nil, nil
}

func BenchmarkExecutorDeliverAll(b *testing.B) {
	logs := make([]TransactionLog, 100)
	for i := range logs {
		logs[i] = newTestLog(string(rune('a'+i%26))+"-bench", 0)
	}
	executor := NewDeliveryExecutor(benchStore{}, StrategyFunc(func(context.Context, TransactionLog) error { return nil }))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := executor.deliverAll(context.Background(), logs, CycleResult{}); err != nil {
			b.Fatalf("deliver: %v", err)
		}
	}
}

func BenchmarkCriteriaMatches(b *testing.B) {
	criteria := NewCriteria(testNow, 3, 100, time.Minute).WithType(TypeBestEffortsDelivery)
	log := newTestLog("bench", 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = criteria.Matches(log)
	}
}

func BenchmarkUUIDv7Generator(b *testing.B) {
	gen := UUIDv7Generator{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := gen.New(); err != nil {
			b.Fatalf("new id: %v", err)
		}
	}
}
