// pkg/lakehouse/codec.go
//
// Column compression codecs. Each codec is a pure encode/decode pair over a
// column's raw value sequence; the chooser picks one per column from
// cardinality statistics at save time.
package lakehouse

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/klauspost/compress/zstd"

	"grizzly/internal/encoding"
	"grizzly/pkg/column"
	"grizzly/pkg/types"
)

// Codec names are written into metadata files and must stay stable.
type Codec string

const (
	CodecNone       Codec = "none"
	CodecRLE        Codec = "rle"
	CodecDictionary Codec = "dictionary"
	CodecBitpack    Codec = "bitpack"
	CodecZstd       Codec = "zstd"
)

// Codec chooser thresholds. Exact values are part of the contract so tests
// and external tools can predict codec choice.
const (
	// DictionaryMaxUniqueness is the largest distinct/total ratio for which
	// dictionary encoding still pays for its index array.
	DictionaryMaxUniqueness = 0.30

	// PassthroughMinUniqueness marks near-unique columns where any
	// value-level codec is wasted effort.
	PassthroughMinUniqueness = 0.90

	// BitpackMaxWidth is the widest (max-min) bit range worth packing.
	BitpackMaxWidth = 20
)

var (
	ErrUnknownCodec                = errors.New("unknown codec")
	ErrDecompressionLengthMismatch = errors.New("decompressed length mismatch")
)

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
}

// ChooseCodec picks a codec for a column from its statistics: booleans run
// in long stretches, low-uniqueness columns dictionary-encode, tight integer
// ranges bit-pack, remaining text goes through zstd, everything else stays
// raw.
func ChooseCodec(col *column.Column) Codec {
	if col.Len() == 0 {
		return CodecNone
	}
	if col.Type() == types.Bool {
		return CodecRLE
	}

	u := col.EstimateCardinality().Uniqueness()
	if u <= DictionaryMaxUniqueness {
		return CodecDictionary
	}
	if u >= PassthroughMinUniqueness {
		// Near-unique: value-level codecs cannot win. Text still gains
		// from general-purpose compression.
		if col.Type() == types.Text {
			return CodecZstd
		}
		return CodecNone
	}

	switch col.Type() {
	case types.Int32, types.Int64, types.Timestamp:
		if min, max, ok := col.MinMax(); ok {
			if bits.Len64(uint64(max.Int64()-min.Int64())) <= BitpackMaxWidth {
				return CodecBitpack
			}
		}
	case types.Text:
		return CodecZstd
	}
	return CodecNone
}

// Encode compresses values with the named codec.
func Encode(codec Codec, values []types.Value) ([]byte, error) {
	switch codec {
	case CodecNone:
		return encodeNone(values), nil
	case CodecRLE:
		return encodeRLE(values), nil
	case CodecDictionary:
		return encodeDictionary(values), nil
	case CodecBitpack:
		return encodeBitpack(values)
	case CodecZstd:
		return zstdEnc.EncodeAll(encodeNone(values), nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// Decode reverses Encode. It fails with ErrDecompressionLengthMismatch when
// the payload does not yield exactly n values of type dt.
func Decode(codec Codec, data []byte, n int, dt types.DataType) ([]types.Value, error) {
	switch codec {
	case CodecNone:
		return decodeNone(data, n, dt)
	case CodecRLE:
		return decodeRLE(data, n, dt)
	case CodecDictionary:
		return decodeDictionary(data, n, dt)
	case CodecBitpack:
		return decodeBitpack(data, n, dt)
	case CodecZstd:
		raw, err := zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return decodeNone(raw, n, dt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// appendRaw writes one value cell: zigzag varints for integer payloads,
// fixed 8 bytes for floats, a length-prefixed frame for text.
func appendRaw(dst []byte, v types.Value) []byte {
	switch v.Type() {
	case types.Int32, types.Int64, types.Timestamp:
		return encoding.AppendUvarint(dst, zigzag(v.Int64()))
	case types.Float32, types.Float64:
		var buf [8]byte
		bits := math.Float64bits(v.Float64())
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		return append(dst, buf[:]...)
	case types.Bool:
		if v.Bool() {
			return append(dst, 1)
		}
		return append(dst, 0)
	case types.Text:
		return encoding.AppendString(dst, v.Text())
	default:
		return dst
	}
}

func decodeRaw(buf []byte, dt types.DataType) (types.Value, int, error) {
	switch dt {
	case types.Int32, types.Int64, types.Timestamp:
		u, n, err := encoding.Uvarint(buf)
		if err != nil {
			return types.Value{}, 0, err
		}
		i := unzigzag(u)
		switch dt {
		case types.Int32:
			return types.NewInt32(int32(i)), n, nil
		case types.Int64:
			return types.NewInt64(i), n, nil
		default:
			return types.NewTimestamp(i), n, nil
		}
	case types.Float32, types.Float64:
		if len(buf) < 8 {
			return types.Value{}, 0, encoding.ErrTruncated
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(buf[i]) << (8 * i)
		}
		f := math.Float64frombits(bits)
		if dt == types.Float32 {
			return types.NewFloat32(float32(f)), 8, nil
		}
		return types.NewFloat64(f), 8, nil
	case types.Bool:
		if len(buf) < 1 {
			return types.Value{}, 0, encoding.ErrTruncated
		}
		return types.NewBool(buf[0] == 1), 1, nil
	case types.Text:
		s, n, err := encoding.String(buf)
		if err != nil {
			return types.Value{}, 0, err
		}
		return types.NewText(s), n, nil
	default:
		return types.Value{}, 0, fmt.Errorf("cannot decode data type %s", dt)
	}
}

func encodeNone(values []types.Value) []byte {
	var out []byte
	for _, v := range values {
		out = appendRaw(out, v)
	}
	return out
}

func decodeNone(data []byte, n int, dt types.DataType) ([]types.Value, error) {
	out := make([]types.Value, 0, n)
	off := 0
	for off < len(data) {
		v, m, err := decodeRaw(data[off:], dt)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		off += m
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: decoded %d values, expected %d",
			ErrDecompressionLengthMismatch, len(out), n)
	}
	return out, nil
}

// encodeRLE stores (run_length, value) pairs. Runs compare by full value
// equality, so it is safe for any type.
func encodeRLE(values []types.Value) []byte {
	var out []byte
	for i := 0; i < len(values); {
		j := i + 1
		for j < len(values) && values[j].Equal(values[i]) {
			j++
		}
		out = encoding.AppendUvarint(out, uint64(j-i))
		out = appendRaw(out, values[i])
		i = j
	}
	return out
}

func decodeRLE(data []byte, n int, dt types.DataType) ([]types.Value, error) {
	out := make([]types.Value, 0, n)
	off := 0
	for off < len(data) {
		run, m, err := encoding.Uvarint(data[off:])
		if err != nil {
			return nil, err
		}
		off += m
		// Never trust the run length: a corrupt payload must fail, not
		// allocate without bound.
		if run > uint64(n-len(out)) {
			return nil, fmt.Errorf("%w: run of %d values overflows expected %d",
				ErrDecompressionLengthMismatch, run, n)
		}
		v, m, err := decodeRaw(data[off:], dt)
		if err != nil {
			return nil, err
		}
		off += m
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: decoded %d values, expected %d",
			ErrDecompressionLengthMismatch, len(out), n)
	}
	return out, nil
}

// encodeDictionary stores the distinct values once, in first-seen order,
// followed by one dictionary index per row.
func encodeDictionary(values []types.Value) []byte {
	var dict []types.Value
	index := make(map[string]uint64)
	ids := make([]uint64, len(values))
	var keyBuf []byte
	for i, v := range values {
		keyBuf = appendRaw(keyBuf[:0], v)
		key := string(keyBuf)
		id, ok := index[key]
		if !ok {
			id = uint64(len(dict))
			index[key] = id
			dict = append(dict, v)
		}
		ids[i] = id
	}

	out := encoding.AppendUvarint(nil, uint64(len(dict)))
	for _, v := range dict {
		out = appendRaw(out, v)
	}
	for _, id := range ids {
		out = encoding.AppendUvarint(out, id)
	}
	return out
}

func decodeDictionary(data []byte, n int, dt types.DataType) ([]types.Value, error) {
	size, off, err := encoding.Uvarint(data)
	if err != nil {
		return nil, err
	}
	dict := make([]types.Value, size)
	for i := range dict {
		v, m, err := decodeRaw(data[off:], dt)
		if err != nil {
			return nil, err
		}
		dict[i] = v
		off += m
	}

	out := make([]types.Value, 0, n)
	for off < len(data) {
		id, m, err := encoding.Uvarint(data[off:])
		if err != nil {
			return nil, err
		}
		off += m
		if id >= size {
			return nil, fmt.Errorf("dictionary index %d out of range (%d entries)", id, size)
		}
		out = append(out, dict[id])
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: decoded %d values, expected %d",
			ErrDecompressionLengthMismatch, len(out), n)
	}
	return out, nil
}

// encodeBitpack packs integer values as fixed-width offsets from the column
// minimum, ceil(log2(max-min+1)) bits each, LSB first.
func encodeBitpack(values []types.Value) ([]byte, error) {
	if len(values) == 0 {
		return encoding.AppendUvarint(encoding.AppendUvarint(nil, 0), 0), nil
	}
	min, max := values[0].Int64(), values[0].Int64()
	for _, v := range values {
		switch v.Type() {
		case types.Int32, types.Int64, types.Timestamp:
		default:
			return nil, fmt.Errorf("bitpack requires an integer column, got %s", v.Type())
		}
		if i := v.Int64(); i < min {
			min = i
		} else if i > max {
			max = i
		}
	}
	width := uint(bits.Len64(uint64(max - min)))
	if width > 56 {
		// The packer carries at most 7 residual bits between values.
		return nil, fmt.Errorf("bitpack range too wide: %d bits", width)
	}

	out := encoding.AppendUvarint(nil, zigzag(min))
	out = encoding.AppendUvarint(out, uint64(width))
	if width == 0 {
		return out, nil
	}

	var acc uint64
	var filled uint
	for _, v := range values {
		acc |= uint64(v.Int64()-min) << filled
		filled += width
		for filled >= 8 {
			out = append(out, byte(acc))
			acc >>= 8
			filled -= 8
		}
	}
	if filled > 0 {
		out = append(out, byte(acc))
	}
	return out, nil
}

func decodeBitpack(data []byte, n int, dt types.DataType) ([]types.Value, error) {
	zmin, off, err := encoding.Uvarint(data)
	if err != nil {
		return nil, err
	}
	w, m, err := encoding.Uvarint(data[off:])
	if err != nil {
		return nil, err
	}
	off += m
	min := unzigzag(zmin)
	width := uint(w)
	if width > 56 {
		return nil, fmt.Errorf("bitpack range too wide: %d bits", width)
	}

	make64 := func(i int64) (types.Value, error) {
		switch dt {
		case types.Int32:
			return types.NewInt32(int32(i)), nil
		case types.Int64:
			return types.NewInt64(i), nil
		case types.Timestamp:
			return types.NewTimestamp(i), nil
		default:
			return types.Value{}, fmt.Errorf("bitpack cannot decode %s", dt)
		}
	}

	out := make([]types.Value, 0, n)
	if width == 0 {
		for i := 0; i < n; i++ {
			v, err := make64(min)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	avail := uint(len(data)-off) * 8
	if avail/width < uint(n) {
		return nil, fmt.Errorf("%w: %d packed bits cannot hold %d values of width %d",
			ErrDecompressionLengthMismatch, avail, n, width)
	}

	var acc uint64
	var filled uint
	mask := uint64(1)<<width - 1
	for i := 0; i < n; i++ {
		for filled < width {
			acc |= uint64(data[off]) << filled
			off++
			filled += 8
		}
		v, err := make64(min + int64(acc&mask))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		acc >>= width
		filled -= width
	}
	return out, nil
}

func zigzag(i int64) uint64   { return uint64(i<<1) ^ uint64(i>>63) }
func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }
