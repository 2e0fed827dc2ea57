// pkg/types/key.go
package types

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// EncodeKey appends an order-preserving byte encoding of v to dst and
// returns the extended slice. For values of the same tag,
// bytes.Compare(EncodeKey(a), EncodeKey(b)) agrees with a.Compare(b).
// Integer and timestamp payloads use offset-binary big-endian; floats use
// total-order bits. The encoding is also the canonical input for hashing.
func (v Value) EncodeKey(dst []byte) []byte {
	dst = append(dst, byte(v.typ))
	switch v.typ {
	case Int32, Int64, Timestamp:
		dst = binary.BigEndian.AppendUint64(dst, uint64(v.intVal)^(1<<63))
	case Float32, Float64:
		dst = binary.BigEndian.AppendUint64(dst, floatOrderKey(v.floatVal))
	case Bool:
		if v.boolVal {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case Text:
		dst = append(dst, v.textVal...)
	}
	return dst
}

// DecodeKey reverses EncodeKey. It returns the decoded value and the number
// of bytes consumed; n == 0 means the buffer was malformed.
func DecodeKey(buf []byte) (Value, int) {
	if len(buf) == 0 {
		return Value{}, 0
	}
	typ := DataType(buf[0])
	rest := buf[1:]
	switch typ {
	case Int32, Int64, Timestamp:
		if len(rest) < 8 {
			return Value{}, 0
		}
		raw := binary.BigEndian.Uint64(rest) ^ (1 << 63)
		return Value{typ: typ, intVal: int64(raw)}, 9
	case Float32, Float64:
		if len(rest) < 8 {
			return Value{}, 0
		}
		key := binary.BigEndian.Uint64(rest)
		var bits uint64
		if key>>63 == 1 {
			bits = key &^ (1 << 63)
		} else {
			bits = ^key
		}
		return Value{typ: typ, floatVal: math.Float64frombits(bits)}, 9
	case Bool:
		if len(rest) < 1 {
			return Value{}, 0
		}
		return Value{typ: Bool, boolVal: rest[0] == 1}, 2
	case Text:
		return Value{typ: Text, textVal: string(rest)}, len(buf)
	default:
		return Value{}, 0
	}
}

// HashKey returns a 64-bit hash of the value, suitable for hash joins and
// cardinality sketches. Values that are Equal hash identically.
func (v Value) HashKey() uint64 {
	var buf [16]byte
	return xxhash.Sum64(v.EncodeKey(buf[:0]))
}
