package softtx

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeParameters renders bind values as a msgpack array. Byte slices,
// times and full-range unsigned integers keep their type, so a decoded
// statement binds the same values it was recorded with.
func EncodeParameters(params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(false)
	if err := enc.Encode(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	return buf.Bytes(), nil
}

// DecodeParameters parses values produced by EncodeParameters.
// Signed integers of any width come back as int64, unsigned ones narrower
// than 64 bits as int64 too, and times in UTC.
func DecodeParameters(encoded []byte) ([]any, error) {
	if len(encoded) == 0 {
		return []any{}, nil
	}

	var raw []any
	if err := msgpack.Unmarshal(encoded, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	out := make([]any, len(raw))
	for i, value := range raw {
		out[i] = normalizeParameter(value)
	}

	return out, nil
}

func normalizeParameter(value any) any {
	switch v := value.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case time.Time:
		return v.UTC()
	default:
		return value
	}
}
