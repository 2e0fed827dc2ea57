// internal/encoding/varint.go
//
// Framing helpers for the lakehouse binary column format. Values use the
// standard little-endian base-128 varint; variable-length payloads are
// length-prefixed.
package encoding

import (
	"encoding/binary"
	"errors"
)

var (
	ErrTruncated = errors.New("truncated varint frame")
	ErrOverflow  = errors.New("varint overflows 64 bits")
)

// AppendUvarint appends v to dst in varint form.
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// Uvarint decodes one varint from buf, returning the value and the number
// of bytes consumed.
func Uvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	switch {
	case n == 0:
		return 0, 0, ErrTruncated
	case n < 0:
		return 0, 0, ErrOverflow
	default:
		return v, n, nil
	}
}

// AppendBytes appends a length-prefixed byte frame.
func AppendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// Bytes decodes one length-prefixed frame. The returned slice aliases buf.
func Bytes(buf []byte) ([]byte, int, error) {
	size, n, err := Uvarint(buf)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(buf)-n) < size {
		return nil, 0, ErrTruncated
	}
	return buf[n : n+int(size)], n + int(size), nil
}

// AppendString appends a length-prefixed string frame.
func AppendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// String decodes one length-prefixed string frame.
func String(buf []byte) (string, int, error) {
	b, n, err := Bytes(buf)
	if err != nil {
		return "", 0, err
	}
	return string(b), n, nil
}
