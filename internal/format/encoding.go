package format

import (
	"encoding/binary"
	"fmt"
)

// checkedUint32 reads a big-endian uint32 from the front of b with bounds
// checking, returning the remainder.
func checkedUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("need 4 bytes, have %d: %w", len(b), ErrTruncated)
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

// checkedUint64 reads a big-endian uint64 from the front of b with bounds
// checking, returning the remainder.
func checkedUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("need 8 bytes, have %d: %w", len(b), ErrTruncated)
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

// checkedUint16 reads a big-endian uint16 from the front of b with bounds
// checking, returning the remainder.
func checkedUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, fmt.Errorf("need 2 bytes, have %d: %w", len(b), ErrTruncated)
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

// ConsumeUvarint reads a uvarint from the front of b, returning the
// remainder.
func ConsumeUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, ErrVarint
	}
	return v, b[n:], nil
}

// AppendUvarint appends the uvarint encoding of v.
func AppendUvarint(b []byte, v uint64) []byte {
	return binary.AppendUvarint(b, v)
}
