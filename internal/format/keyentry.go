package format

import (
	"encoding/binary"
	"fmt"
)

// ColumnID identifies a table column.
type ColumnID uint32

// LivenessColumnID is the system column asserting row existence. It is
// system column zero so it sorts before every regular column subkey.
const LivenessColumnID ColumnID = 0

// KeyEntryValue is one decoded key component: a primary-key column value or
// a subkey (column id, system column id, or a scalar for collection
// entries).
type KeyEntryValue struct {
	Type KeyEntryType

	I64  int64
	U32  uint32
	Str  string
	Col  ColumnID
	Bool bool
}

// KeyEntryNull returns a NULL key component.
func KeyEntryNull() KeyEntryValue {
	return KeyEntryValue{Type: KeyNullLow}
}

// KeyEntryInt32 returns a signed 32-bit key component.
func KeyEntryInt32(v int32) KeyEntryValue {
	return KeyEntryValue{Type: KeyInt32, I64: int64(v)}
}

// KeyEntryInt64 returns a signed 64-bit key component.
func KeyEntryInt64(v int64) KeyEntryValue {
	return KeyEntryValue{Type: KeyInt64, I64: v}
}

// KeyEntryUInt32 returns an unsigned 32-bit key component.
func KeyEntryUInt32(v uint32) KeyEntryValue {
	return KeyEntryValue{Type: KeyUInt32, U32: v}
}

// KeyEntryString returns a string key component.
func KeyEntryString(s string) KeyEntryValue {
	return KeyEntryValue{Type: KeyString, Str: s}
}

// KeyEntryBool returns a boolean key component.
func KeyEntryBool(b bool) KeyEntryValue {
	t := KeyFalse
	if b {
		t = KeyTrue
	}
	return KeyEntryValue{Type: t, Bool: b}
}

// KeyEntryColumn returns a regular column subkey.
func KeyEntryColumn(id ColumnID) KeyEntryValue {
	return KeyEntryValue{Type: KeyColumnID, Col: id}
}

// KeyEntrySystemColumn returns a system column subkey.
func KeyEntrySystemColumn(id ColumnID) KeyEntryValue {
	return KeyEntryValue{Type: KeySystemColumnID, Col: id}
}

// LivenessColumn is the subkey of the synthetic liveness column.
var LivenessColumn = KeyEntrySystemColumn(LivenessColumnID)

// IsColumnID reports whether v is a column subkey (regular or system).
func (v KeyEntryValue) IsColumnID() bool {
	return v.Type == KeyColumnID || v.Type == KeySystemColumnID
}

// ColumnID returns the column id of a column subkey.
func (v KeyEntryValue) ColumnID() ColumnID {
	return v.Col
}

// AppendToKey appends the encoded form of v to key.
func (v KeyEntryValue) AppendToKey(key []byte) []byte {
	switch v.Type {
	case KeyNullLow, KeyFalse, KeyTrue, KeyGroupEnd:
		return append(key, byte(v.Type))
	case KeyInt32:
		key = append(key, byte(KeyInt32))
		return binary.BigEndian.AppendUint32(key, uint32(int32(v.I64))^0x8000_0000)
	case KeyInt64:
		key = append(key, byte(KeyInt64))
		return binary.BigEndian.AppendUint64(key, uint64(v.I64)^0x8000_0000_0000_0000)
	case KeyUInt32:
		key = append(key, byte(KeyUInt32))
		return binary.BigEndian.AppendUint32(key, v.U32)
	case KeyString:
		key = append(key, byte(KeyString))
		for i := 0; i < len(v.Str); i++ {
			c := v.Str[i]
			key = append(key, c)
			if c == 0x00 {
				key = append(key, 0x01)
			}
		}
		return append(key, 0x00, 0x00)
	case KeyColumnID, KeySystemColumnID:
		key = append(key, byte(v.Type))
		return binary.BigEndian.AppendUint32(key, uint32(v.Col))
	}
	panic(fmt.Sprintf("format: cannot encode key entry type %q", byte(v.Type)))
}

// Encoded returns the standalone encoded form of v.
func (v KeyEntryValue) Encoded() []byte {
	return v.AppendToKey(nil)
}

// DecodeKeyEntryValue decodes one key component from the front of b and
// returns the remainder. KeyGroupEnd is not a value; callers detect it via
// the first byte before calling.
func DecodeKeyEntryValue(b []byte) (KeyEntryValue, []byte, error) {
	if len(b) == 0 {
		return KeyEntryValue{}, nil, fmt.Errorf("key entry: %w", ErrTruncated)
	}
	tag := KeyEntryType(b[0])
	rest := b[1:]
	switch tag {
	case KeyNullLow:
		return KeyEntryNull(), rest, nil
	case KeyFalse:
		return KeyEntryValue{Type: KeyFalse, Bool: false}, rest, nil
	case KeyTrue:
		return KeyEntryValue{Type: KeyTrue, Bool: true}, rest, nil
	case KeyInt32:
		raw, rest, err := checkedUint32(rest)
		if err != nil {
			return KeyEntryValue{}, nil, fmt.Errorf("int32 key entry: %w", err)
		}
		return KeyEntryInt32(int32(raw ^ 0x8000_0000)), rest, nil
	case KeyInt64:
		raw, rest, err := checkedUint64(rest)
		if err != nil {
			return KeyEntryValue{}, nil, fmt.Errorf("int64 key entry: %w", err)
		}
		return KeyEntryInt64(int64(raw ^ 0x8000_0000_0000_0000)), rest, nil
	case KeyUInt32:
		raw, rest, err := checkedUint32(rest)
		if err != nil {
			return KeyEntryValue{}, nil, fmt.Errorf("uint32 key entry: %w", err)
		}
		return KeyEntryUInt32(raw), rest, nil
	case KeyString:
		var buf []byte
		for i := 0; i < len(rest); i++ {
			if rest[i] != 0x00 {
				buf = append(buf, rest[i])
				continue
			}
			if i+1 >= len(rest) {
				return KeyEntryValue{}, nil, fmt.Errorf("string key entry: %w", ErrUnterminated)
			}
			switch rest[i+1] {
			case 0x00:
				return KeyEntryString(string(buf)), rest[i+2:], nil
			case 0x01:
				buf = append(buf, 0x00)
				i++
			default:
				return KeyEntryValue{}, nil, fmt.Errorf("string key entry escape %#x: %w", rest[i+1], ErrBadTag)
			}
		}
		return KeyEntryValue{}, nil, fmt.Errorf("string key entry: %w", ErrUnterminated)
	case KeyColumnID, KeySystemColumnID:
		raw, rest, err := checkedUint32(rest)
		if err != nil {
			return KeyEntryValue{}, nil, fmt.Errorf("column key entry: %w", err)
		}
		return KeyEntryValue{Type: tag, Col: ColumnID(raw)}, rest, nil
	}
	return KeyEntryValue{}, nil, fmt.Errorf("key entry tag %#x: %w", b[0], ErrBadTag)
}

func (v KeyEntryValue) String() string {
	switch v.Type {
	case KeyNullLow:
		return "null"
	case KeyFalse, KeyTrue:
		return fmt.Sprintf("%v", v.Bool)
	case KeyInt32, KeyInt64:
		return fmt.Sprintf("%d", v.I64)
	case KeyUInt32:
		return fmt.Sprintf("%d", v.U32)
	case KeyString:
		return fmt.Sprintf("%q", v.Str)
	case KeyColumnID:
		return fmt.Sprintf("ColumnID(%d)", v.Col)
	case KeySystemColumnID:
		return fmt.Sprintf("SystemColumnID(%d)", v.Col)
	}
	return fmt.Sprintf("<key entry %#x>", byte(v.Type))
}
