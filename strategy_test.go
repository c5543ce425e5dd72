package softtx

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
)

type recordingDataSource struct {
	query string
	args  []any
	err   error
}

func (d *recordingDataSource) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	d.query = query
	d.args = args

	return nil, d.err
}

func TestBestEffortsDeliveryExecutesStatement(t *testing.T) {
	ds := &recordingDataSource{}
	strategy := NewBestEffortsDelivery(DataSources{"ds_0": ds})

	log := newTestLog("a", 0)
	if err := strategy.Replay(context.Background(), log); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if ds.query != log.ExecuteStatement {
		t.Fatalf("unexpected query %q", ds.query)
	}
	if !reflect.DeepEqual(ds.args, log.Parameters) {
		t.Fatalf("unexpected args %#v", ds.args)
	}
}

func TestBestEffortsDeliveryWrapsFailure(t *testing.T) {
	cause := errors.New("deadlock")
	strategy := NewBestEffortsDelivery(DataSources{"ds_0": &recordingDataSource{err: cause}})

	err := strategy.Replay(context.Background(), newTestLog("a", 0))
	var replayErr *ReplayExecutionError
	if !errors.As(err, &replayErr) {
		t.Fatalf("expected ReplayExecutionError, got %v", err)
	}
	if replayErr.LogID != "a" || replayErr.DataSourceName != "ds_0" || !errors.Is(err, cause) {
		t.Fatalf("unexpected error %+v", replayErr)
	}
}

func TestBestEffortsDeliveryUnknownDataSource(t *testing.T) {
	strategy := NewBestEffortsDelivery(DataSources{})

	err := strategy.Replay(context.Background(), newTestLog("a", 0))
	if !errors.Is(err, ErrUnknownDataSource) {
		t.Fatalf("expected ErrUnknownDataSource, got %v", err)
	}
}

func TestStrategiesUnsupportedType(t *testing.T) {
	strategies := Strategies{TypeBestEffortsDelivery: StrategyFunc(succeed)}

	log := newTestLog("a", 0)
	log.Type = TypeTryConfirmCancel
	if err := strategies.Replay(context.Background(), log); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
