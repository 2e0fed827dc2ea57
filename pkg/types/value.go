// pkg/types/value.go
package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrTypeMismatch = errors.New("type mismatch")
)

// DataType identifies the scalar type of a column or value.
type DataType int

const (
	Int32 DataType = iota
	Int64
	Float32
	Float64
	Bool
	Text
	Timestamp
)

// String returns the metadata name of the type. These names are written
// into lakehouse metadata files and must stay stable.
func (dt DataType) String() string {
	switch dt {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Text:
		return "text"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ParseDataType converts a metadata type name back into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "bool":
		return Bool, nil
	case "text":
		return Text, nil
	case "timestamp":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// IsNumeric reports whether values of this type participate in arithmetic.
func (dt DataType) IsNumeric() bool {
	switch dt {
	case Int32, Int64, Float32, Float64:
		return true
	default:
		return false
	}
}

// Value represents a single database value. The tag always matches the
// DataType of the schema slot that holds it. A Value may be a typed null,
// but only in query results (outer join padding); column storage and
// indexes never hold nulls.
type Value struct {
	typ      DataType
	null     bool
	intVal   int64
	floatVal float64
	boolVal  bool
	textVal  string
}

func NewInt32(i int32) Value     { return Value{typ: Int32, intVal: int64(i)} }
func NewInt64(i int64) Value     { return Value{typ: Int64, intVal: i} }
func NewFloat32(f float32) Value { return Value{typ: Float32, floatVal: float64(f)} }
func NewFloat64(f float64) Value { return Value{typ: Float64, floatVal: f} }
func NewBool(b bool) Value       { return Value{typ: Bool, boolVal: b} }
func NewText(s string) Value     { return Value{typ: Text, textVal: s} }

// Null returns the typed null of dt, used to pad the unmatched side of
// outer joins.
func Null(dt DataType) Value { return Value{typ: dt, null: true} }

// NewTimestamp creates a timestamp value from microseconds since the Unix epoch.
func NewTimestamp(epochMicros int64) Value {
	return Value{typ: Timestamp, intVal: epochMicros}
}

// TimestampFromTime creates a timestamp value from a time.Time.
func TimestampFromTime(t time.Time) Value {
	return NewTimestamp(t.UnixMicro())
}

func (v Value) Type() DataType    { return v.typ }
func (v Value) Int32() int32      { return int32(v.intVal) }
func (v Value) Int64() int64      { return v.intVal }
func (v Value) Float32() float32  { return float32(v.floatVal) }
func (v Value) Float64() float64  { return v.floatVal }
func (v Value) Bool() bool        { return v.boolVal }
func (v Value) Text() string      { return v.textVal }
func (v Value) Micros() int64     { return v.intVal }
func (v Value) IsNumeric() bool   { return v.typ.IsNumeric() }
func (v Value) IsNull() bool      { return v.null }

// AsFloat widens any numeric value to float64. The second return is false
// for non-numeric values.
func (v Value) AsFloat() (float64, bool) {
	switch v.typ {
	case Int32, Int64:
		return float64(v.intVal), true
	case Float32, Float64:
		return v.floatVal, true
	default:
		return 0, false
	}
}

// AsInt returns the integer payload of integer-backed values. The second
// return is false for other types.
func (v Value) AsInt() (int64, bool) {
	switch v.typ {
	case Int32, Int64, Timestamp:
		return v.intVal, true
	default:
		return 0, false
	}
}

// Equal reports exact equality: same tag and same payload. Floats compare
// by total-order bits so equality stays consistent with Compare.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	if v.null || other.null {
		return v.null && other.null
	}
	switch v.typ {
	case Int32, Int64, Timestamp:
		return v.intVal == other.intVal
	case Float32, Float64:
		return floatOrderKey(v.floatVal) == floatOrderKey(other.floatVal)
	case Bool:
		return v.boolVal == other.boolVal
	case Text:
		return v.textVal == other.textVal
	default:
		return false
	}
}

// Compare defines a total order over values. Same-tag values compare
// per-tag; mixed numeric tags compare after widening to float64. Any other
// mix is a type mismatch. Strings compare lexicographically by byte; floats
// use the IEEE-754 total order so sorting and indexing are deterministic.
func (v Value) Compare(other Value) (int, error) {
	// Nulls sort before every non-null value.
	if v.null || other.null {
		switch {
		case v.null && other.null:
			return 0, nil
		case v.null:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if v.typ == other.typ {
		switch v.typ {
		case Int32, Int64, Timestamp:
			return cmpInt64(v.intVal, other.intVal), nil
		case Float32, Float64:
			return cmpUint64(floatOrderKey(v.floatVal), floatOrderKey(other.floatVal)), nil
		case Bool:
			var a, b int64
			if v.boolVal {
				a = 1
			}
			if other.boolVal {
				b = 1
			}
			return cmpInt64(a, b), nil
		case Text:
			switch {
			case v.textVal < other.textVal:
				return -1, nil
			case v.textVal > other.textVal:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if v.IsNumeric() && other.IsNumeric() {
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		return cmpUint64(floatOrderKey(a), floatOrderKey(b)), nil
	}
	return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrTypeMismatch, v.typ, other.typ)
}

// String renders the value for explain output and error messages.
func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch v.typ {
	case Int32, Int64:
		return strconv.FormatInt(v.intVal, 10)
	case Float32, Float64:
		return strconv.FormatFloat(v.floatVal, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.boolVal)
	case Text:
		return v.textVal
	case Timestamp:
		return time.UnixMicro(v.intVal).UTC().Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

// floatOrderKey maps a float64 to a uint64 whose unsigned order matches the
// IEEE-754 total order (negative NaN first, positive NaN last).
func floatOrderKey(f float64) uint64 {
	b := math.Float64bits(f)
	if b>>63 == 1 {
		return ^b
	}
	return b | (1 << 63)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
