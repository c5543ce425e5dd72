package pebblestore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/velmie/softtx"
)

type record struct {
	ID            string `msgpack:"id"`
	TransactionID string `msgpack:"tx"`
	Type          int16  `msgpack:"type"`
	DataSource    string `msgpack:"ds"`
	Statement     string `msgpack:"stmt"`
	Parameters    []byte `msgpack:"params"`
	CreatedMS     int64  `msgpack:"created"`
	Seq           uint64 `msgpack:"seq"`
	TryTimes      int    `msgpack:"tries"`
}

func newRecord(log softtx.TransactionLog, seq uint64) (record, error) {
	params, err := softtx.EncodeParameters(log.Parameters)
	if err != nil {
		return record{}, err
	}

	return record{
		ID:            log.ID,
		TransactionID: log.TransactionID,
		Type:          int16(log.Type),
		DataSource:    log.DataSourceName,
		Statement:     log.ExecuteStatement,
		Parameters:    params,
		CreatedMS:     log.CreationTimeMillis(),
		Seq:           seq,
		TryTimes:      log.AsyncDeliveryTryTimes,
	}, nil
}

func (r record) toLog() (softtx.TransactionLog, error) {
	params, err := softtx.DecodeParameters(r.Parameters)
	if err != nil {
		return softtx.TransactionLog{}, fmt.Errorf("softtx pebble: log %s: %w", r.ID, err)
	}

	return softtx.TransactionLog{
		ID:                    r.ID,
		TransactionID:         r.TransactionID,
		Type:                  softtx.Type(r.Type),
		DataSourceName:        r.DataSource,
		ExecuteStatement:      r.Statement,
		Parameters:            params,
		CreationTime:          time.UnixMilli(r.CreatedMS).UTC(),
		AsyncDeliveryTryTimes: r.TryTimes,
	}, nil
}

func encodeRecord(r record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("softtx pebble: encode record: %w", err)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return record{}, fmt.Errorf("softtx pebble: decode record: %w", err)
	}

	return r, nil
}
