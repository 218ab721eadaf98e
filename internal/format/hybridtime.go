package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// HybridTime is a 64-bit hybrid timestamp: physical microseconds in the high
// 52 bits, a logical counter in the low 12. Numeric order is chronological
// order.
type HybridTime uint64

// LogicalBits is the width of the logical counter inside a HybridTime.
const LogicalBits = 12

const (
	// HybridTimeMin is the lowest representable time.
	HybridTimeMin HybridTime = 0
	// HybridTimeMax is the highest valid time.
	HybridTimeMax HybridTime = math.MaxUint64 - 1
	// HybridTimeInvalid means "no time"; it never appears in stored records.
	HybridTimeInvalid HybridTime = math.MaxUint64
)

// HybridTimeFromMicros builds a HybridTime from physical microseconds with a
// zero logical component.
func HybridTimeFromMicros(us uint64) HybridTime {
	return HybridTime(us << LogicalBits)
}

// HybridTimeFromMicrosLogical builds a HybridTime with an explicit logical
// counter.
func HybridTimeFromMicrosLogical(us uint64, logical uint32) HybridTime {
	return HybridTime(us<<LogicalBits | uint64(logical)&(1<<LogicalBits-1))
}

// PhysicalMicros returns the physical component in microseconds.
func (t HybridTime) PhysicalMicros() uint64 {
	return uint64(t) >> LogicalBits
}

// Logical returns the logical counter component.
func (t HybridTime) Logical() uint32 {
	return uint32(uint64(t) & (1<<LogicalBits - 1))
}

// Valid reports whether t is a real timestamp.
func (t HybridTime) Valid() bool {
	return t != HybridTimeInvalid
}

// AddDuration returns t advanced by d (physical component only).
func (t HybridTime) AddDuration(d time.Duration) HybridTime {
	return HybridTimeFromMicrosLogical(t.PhysicalMicros()+uint64(d.Microseconds()), t.Logical())
}

func (t HybridTime) String() string {
	if t == HybridTimeInvalid {
		return "<invalid>"
	}
	return fmt.Sprintf("{p: %d l: %d}", t.PhysicalMicros(), t.Logical())
}

// EncodedHybridTime is the byte-comparable form of a HybridTime: 8 bytes,
// big-endian. Comparing raw bytes respects chronological order. The zero
// value encodes HybridTimeMin.
type EncodedHybridTime [EncodedHybridTimeSize]byte

// EncodeHybridTime returns the byte-comparable form of t.
func EncodeHybridTime(t HybridTime) EncodedHybridTime {
	var e EncodedHybridTime
	binary.BigEndian.PutUint64(e[:], uint64(t))
	return e
}

// Decode returns the structured form.
func (e EncodedHybridTime) Decode() HybridTime {
	return HybridTime(binary.BigEndian.Uint64(e[:]))
}

// Compare orders two encoded times chronologically.
func (e EncodedHybridTime) Compare(other EncodedHybridTime) int {
	return bytes.Compare(e[:], other[:])
}

// Less reports whether e is strictly before other.
func (e EncodedHybridTime) Less(other EncodedHybridTime) bool {
	return e.Compare(other) < 0
}

// IsMin reports whether e encodes HybridTimeMin.
func (e EncodedHybridTime) IsMin() bool {
	return e == EncodedHybridTime{}
}

func (e EncodedHybridTime) String() string {
	return e.Decode().String()
}

// LazyHybridTime stores an encoded hybrid time and decodes it on demand,
// caching the decoded form. Comparison always uses the encoded bytes.
type LazyHybridTime struct {
	encoded EncodedHybridTime
	decoded HybridTime
	valid   bool
}

// Assign resets the holder to a new encoded value, dropping any cached
// decoded form.
func (l *LazyHybridTime) Assign(e EncodedHybridTime) {
	l.encoded = e
	l.valid = false
}

// Encoded returns the byte-comparable form.
func (l *LazyHybridTime) Encoded() EncodedHybridTime {
	return l.encoded
}

// Decoded returns the structured form, computing and caching it on first use.
func (l *LazyHybridTime) Decoded() HybridTime {
	if !l.valid {
		l.decoded = l.encoded.Decode()
		l.valid = true
	}
	return l.decoded
}

func (l *LazyHybridTime) String() string {
	return l.encoded.String()
}

// AppendHybridTime appends the record-key suffix for write time t: the
// KeyHybridTime tag followed by the bit-inverted big-endian time, so that
// versions of one subkey sort newest-first.
func AppendHybridTime(key []byte, t HybridTime) []byte {
	key = append(key, byte(KeyHybridTime))
	var buf [EncodedHybridTimeSize]byte
	binary.BigEndian.PutUint64(buf[:], ^uint64(t))
	return append(key, buf[:]...)
}

// SplitRecordKey splits a full record key into the user key and the write
// time encoded in its suffix.
func SplitRecordKey(recordKey []byte) (userKey []byte, writeTime EncodedHybridTime, err error) {
	if len(recordKey) < HybridTimeSuffixSize {
		return nil, EncodedHybridTime{}, fmt.Errorf("record key of %d bytes: %w", len(recordKey), ErrTruncated)
	}
	split := len(recordKey) - HybridTimeSuffixSize
	if recordKey[split] != byte(KeyHybridTime) {
		return nil, EncodedHybridTime{}, fmt.Errorf("record key suffix tag %#x: %w", recordKey[split], ErrBadTag)
	}
	inv := binary.BigEndian.Uint64(recordKey[split+1:])
	return recordKey[:split], EncodeHybridTime(HybridTime(^inv)), nil
}

// SubKeySuccessor returns the smallest key that sorts after every version of
// userKey but before any of its children. Used to seek past older versions
// of a subkey.
func SubKeySuccessor(userKey []byte) []byte {
	out := make([]byte, 0, len(userKey)+HybridTimeSuffixSize+1)
	out = append(out, userKey...)
	out = append(out, byte(KeyHybridTime))
	for i := 0; i < EncodedHybridTimeSize; i++ {
		out = append(out, 0xff)
	}
	return append(out, 0x00)
}

// PrefixSuccessor returns the smallest key that is greater than every key
// having the given prefix, or nil when no such key exists.
func PrefixSuccessor(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
