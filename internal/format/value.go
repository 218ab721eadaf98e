package format

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// MaxTTL is the "no expiry" sentinel. A negative TTL is the table-default
// sentinel: it stays inert until a child entry inherits it, at which point
// the sign is flipped.
const MaxTTL = time.Duration(math.MaxInt64)

// InvalidUserTimestamp means the record carries no user-supplied timestamp.
const InvalidUserTimestamp = int64(math.MinInt64)

// ValueControlFields is the optional metadata block at the front of an
// encoded value: a user timestamp and a TTL.
type ValueControlFields struct {
	Timestamp int64
	TTL       time.Duration
}

// HasTimestamp reports whether a user timestamp is present.
func (f ValueControlFields) HasTimestamp() bool {
	return f.Timestamp != InvalidUserTimestamp
}

// DecodeControlFields strips the control-field block from the front of v and
// returns it together with the remaining payload. A missing block yields the
// zero fields (no timestamp, MaxTTL).
func DecodeControlFields(v []byte) (ValueControlFields, []byte, error) {
	f := ValueControlFields{Timestamp: InvalidUserTimestamp, TTL: MaxTTL}
	if len(v) > 0 && v[0] == CtrlUserTimestamp {
		raw, rest, err := checkedUint64(v[1:])
		if err != nil {
			return f, nil, fmt.Errorf("user timestamp: %w", err)
		}
		f.Timestamp = int64(raw)
		v = rest
	}
	if len(v) > 0 && v[0] == CtrlTTL {
		ms, rest, err := ConsumeUvarint(v[1:])
		if err != nil {
			return f, nil, fmt.Errorf("ttl: %w", err)
		}
		f.TTL = time.Duration(ms) * time.Millisecond
		v = rest
	}
	return f, v, nil
}

// AppendControlFields appends the encoded control-field block. Zero-valued
// fields are omitted.
func (f ValueControlFields) AppendControlFields(v []byte) []byte {
	if f.HasTimestamp() {
		v = append(v, CtrlUserTimestamp)
		v = binary.BigEndian.AppendUint64(v, uint64(f.Timestamp))
	}
	if f.TTL != MaxTTL {
		v = append(v, CtrlTTL)
		v = AppendUvarint(v, uint64(f.TTL/time.Millisecond))
	}
	return v
}

// DecodeValueEntryType returns the payload tag of v, or ValueInvalid when v
// is empty or the tag is unknown.
func DecodeValueEntryType(v []byte) ValueEntryType {
	if len(v) == 0 {
		return ValueInvalid
	}
	switch t := ValueEntryType(v[0]); t {
	case ValueNullLow, ValueDouble, ValueFalse, ValueTrue, ValueInt32,
		ValueInt64, ValueObject, ValuePackedRow, ValueString, ValueTombstone:
		return t
	}
	return ValueInvalid
}

// IsTombstoned reports whether an encoded value (control fields included) is
// a tombstone.
func IsTombstoned(v []byte) (bool, error) {
	_, payload, err := DecodeControlFields(v)
	if err != nil {
		return false, err
	}
	return DecodeValueEntryType(payload) == ValueTombstone, nil
}

// Value is one decoded primitive value. The zero value is invalid; NULL is
// represented with Type == ValueNullLow.
type Value struct {
	Type ValueEntryType

	I64  int64
	F64  float64
	Str  string
	Bool bool
}

// NullValue returns the SQL NULL value.
func NullValue() Value {
	return Value{Type: ValueNullLow}
}

// Int32Value returns a 32-bit integer value.
func Int32Value(v int32) Value {
	return Value{Type: ValueInt32, I64: int64(v)}
}

// Int64Value returns a 64-bit integer value.
func Int64Value(v int64) Value {
	return Value{Type: ValueInt64, I64: v}
}

// DoubleValue returns a float value.
func DoubleValue(v float64) Value {
	return Value{Type: ValueDouble, F64: v}
}

// StringValue returns a string value.
func StringValue(s string) Value {
	return Value{Type: ValueString, Str: s}
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	t := ValueFalse
	if b {
		t = ValueTrue
	}
	return Value{Type: t, Bool: b}
}

// ObjectValue returns the object sentinel.
func ObjectValue() Value {
	return Value{Type: ValueObject}
}

// IsNull reports whether v is SQL NULL or unset.
func (v Value) IsNull() bool {
	return v.Type == ValueNullLow || v.Type == ValueInvalid
}

// Valid reports whether v holds a decoded value (NULL included).
func (v Value) Valid() bool {
	return v.Type != ValueInvalid
}

func (v Value) String() string {
	switch v.Type {
	case ValueInvalid:
		return "<invalid>"
	case ValueNullLow:
		return "null"
	case ValueFalse, ValueTrue:
		return fmt.Sprintf("%v", v.Bool)
	case ValueInt32, ValueInt64:
		return fmt.Sprintf("%d", v.I64)
	case ValueDouble:
		return fmt.Sprintf("%v", v.F64)
	case ValueString:
		return fmt.Sprintf("%q", v.Str)
	case ValueObject:
		return "{}"
	case ValueTombstone:
		return "DEL"
	}
	return fmt.Sprintf("<value %#x>", byte(v.Type))
}

// DecodePrimitiveValue decodes a payload (control fields already stripped)
// into a Value. Tombstones, packed rows, and objects are not primitives and
// yield an error.
func DecodePrimitiveValue(payload []byte) (Value, error) {
	switch t := DecodeValueEntryType(payload); t {
	case ValueNullLow:
		return NullValue(), nil
	case ValueFalse:
		return BoolValue(false), nil
	case ValueTrue:
		return BoolValue(true), nil
	case ValueInt32:
		raw, _, err := checkedUint32(payload[1:])
		if err != nil {
			return Value{}, fmt.Errorf("int32 value: %w", err)
		}
		return Int32Value(int32(raw)), nil
	case ValueInt64:
		raw, _, err := checkedUint64(payload[1:])
		if err != nil {
			return Value{}, fmt.Errorf("int64 value: %w", err)
		}
		return Int64Value(int64(raw)), nil
	case ValueDouble:
		raw, _, err := checkedUint64(payload[1:])
		if err != nil {
			return Value{}, fmt.Errorf("double value: %w", err)
		}
		return DoubleValue(math.Float64frombits(raw)), nil
	case ValueString:
		return StringValue(string(payload[1:])), nil
	case ValueObject:
		return ObjectValue(), nil
	}
	return Value{}, fmt.Errorf("primitive value tag %#x: %w", DecodeValueEntryType(payload), ErrBadTag)
}

// AppendPrimitiveValue appends the encoded payload of v.
func AppendPrimitiveValue(buf []byte, v Value) []byte {
	switch v.Type {
	case ValueNullLow, ValueFalse, ValueTrue, ValueObject, ValueTombstone:
		return append(buf, byte(v.Type))
	case ValueInt32:
		buf = append(buf, byte(ValueInt32))
		return binary.BigEndian.AppendUint32(buf, uint32(int32(v.I64)))
	case ValueInt64:
		buf = append(buf, byte(ValueInt64))
		return binary.BigEndian.AppendUint64(buf, uint64(v.I64))
	case ValueDouble:
		buf = append(buf, byte(ValueDouble))
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case ValueString:
		buf = append(buf, byte(ValueString))
		return append(buf, v.Str...)
	}
	panic(fmt.Sprintf("format: cannot encode value type %#x", byte(v.Type)))
}

// TombstoneValue is the encoded tombstone payload.
func TombstoneValue() []byte {
	return []byte{byte(ValueTombstone)}
}

// StripIntentHybridTime removes the spurious encoded hybrid time that a
// legacy writer bug may prepend to packed column payloads.
func StripIntentHybridTime(payload []byte) ([]byte, error) {
	if len(payload) == 0 || KeyEntryType(payload[0]) != KeyHybridTime {
		return payload, nil
	}
	if len(payload) < HybridTimeSuffixSize {
		return nil, fmt.Errorf("intent hybrid time prefix: %w", ErrTruncated)
	}
	return payload[HybridTimeSuffixSize:], nil
}
