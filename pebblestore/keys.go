package pebblestore

import (
	"encoding/binary"
	"math"
)

const (
	prefixLog   = "/log/"
	prefixIndex = "/idx/created/"

	indexFixedLen = len(prefixIndex) + 16
	signFlip      = uint64(1) << 63
)

func logKey(id string) []byte {
	key := make([]byte, 0, len(prefixLog)+len(id))
	key = append(key, prefixLog...)

	return append(key, id...)
}

func indexKey(createdMS int64, seq uint64, id string) []byte {
	key := make([]byte, 0, indexFixedLen+len(id))
	key = append(key, prefixIndex...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdMS)^signFlip)
	key = binary.BigEndian.AppendUint64(key, seq)

	return append(key, id...)
}

// indexBound returns the first index key after every key created at or before cutoffMS.
func indexBound(cutoffMS int64) []byte {
	if cutoffMS == math.MaxInt64 {
		return prefixUpperBound([]byte(prefixIndex))
	}
	key := make([]byte, 0, len(prefixIndex)+8)
	key = append(key, prefixIndex...)

	return binary.BigEndian.AppendUint64(key, uint64(cutoffMS+1)^signFlip)
}

func parseIndexKey(key []byte) (seq uint64, id string, ok bool) {
	if len(key) <= indexFixedLen {
		return 0, "", false
	}
	seq = binary.BigEndian.Uint64(key[len(prefixIndex)+8 : indexFixedLen])

	return seq, string(key[indexFixedLen:]), true
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}
