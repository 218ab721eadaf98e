package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DocKey encoding, front to back:
//
//	[ 'T' + 16-byte cotable uuid | 'C' + 4-byte colocation id ]
//	[ 'G' + 2-byte hash code + hashed key entries + '!' ]
//	range key entries + '!'
//
// Subkeys and the hybrid time suffix follow after the final group end.

// CotableID is the 16-byte uuid identifying a table sharing a tablet.
type CotableID [TableIDSize]byte

// AppendCotablePrefix appends the cotable prefix for id.
func AppendCotablePrefix(key []byte, id CotableID) []byte {
	key = append(key, byte(KeyTableID))
	return append(key, id[:]...)
}

// AppendColocationPrefix appends the colocation prefix for id.
func AppendColocationPrefix(key []byte, id uint32) []byte {
	key = append(key, byte(KeyColocationID))
	return binary.BigEndian.AppendUint32(key, id)
}

// AppendDocKey appends the hash and range groups of a DocKey. hashed may be
// nil for range-only keys; the hash code is only written when hashed entries
// are present.
func AppendDocKey(key []byte, hashCode uint16, hashed, rng []KeyEntryValue) []byte {
	if len(hashed) > 0 {
		key = append(key, byte(KeyUInt16Hash))
		key = binary.BigEndian.AppendUint16(key, hashCode)
		for _, h := range hashed {
			key = h.AppendToKey(key)
		}
		key = append(key, byte(KeyGroupEnd))
	}
	for _, r := range rng {
		key = r.AppendToKey(key)
	}
	return append(key, byte(KeyGroupEnd))
}

// DocKeySizes carries the two cached sizes of an encoded DocKey.
type DocKeySizes struct {
	// HashPartSize is the length of the prefix through the hashed group
	// (or just the table/colocation prefix when the key has no hash part).
	HashPartSize int
	// DocKeySize is the length through the final group end.
	DocKeySize int
}

// DecodeDocKeySizes walks an encoded key and returns the hash-part and
// whole-DocKey sizes. The key may extend past the DocKey (subkeys, hybrid
// time suffix); the extra bytes are ignored.
func DecodeDocKeySizes(key []byte) (DocKeySizes, error) {
	pos := 0
	if len(key) == 0 {
		return DocKeySizes{}, fmt.Errorf("doc key: %w", ErrTruncated)
	}
	switch KeyEntryType(key[0]) {
	case KeyTableID:
		pos = 1 + TableIDSize
	case KeyColocationID:
		pos = 1 + ColocationIDSize
	}
	if pos > len(key) {
		return DocKeySizes{}, fmt.Errorf("doc key prefix: %w", ErrTruncated)
	}
	hashPart := pos
	if pos < len(key) && KeyEntryType(key[pos]) == KeyUInt16Hash {
		pos += 1 + HashCodeSize
		var err error
		if pos, err = skipGroup(key, pos); err != nil {
			return DocKeySizes{}, fmt.Errorf("hashed group: %w", err)
		}
		hashPart = pos
	}
	pos, err := skipGroup(key, pos)
	if err != nil {
		return DocKeySizes{}, fmt.Errorf("range group: %w", err)
	}
	return DocKeySizes{HashPartSize: hashPart, DocKeySize: pos}, nil
}

// skipGroup consumes key entries until a group end and returns the position
// just past it.
func skipGroup(key []byte, pos int) (int, error) {
	for {
		if pos >= len(key) {
			return 0, ErrGroupEnd
		}
		if KeyEntryType(key[pos]) == KeyGroupEnd {
			return pos + 1, nil
		}
		_, rest, err := DecodeKeyEntryValue(key[pos:])
		if err != nil {
			return 0, err
		}
		pos = len(key) - len(rest)
	}
}

// IsColocatedTableTombstoneKey reports whether key is the DocKey form used
// for table-level tombstones: a bare table/colocation prefix with no key
// entries.
func IsColocatedTableTombstoneKey(key []byte) bool {
	var prefix int
	switch {
	case len(key) > 0 && KeyEntryType(key[0]) == KeyTableID:
		prefix = 1 + TableIDSize
	case len(key) > 0 && KeyEntryType(key[0]) == KeyColocationID:
		prefix = 1 + ColocationIDSize
	default:
		return false
	}
	return len(key) == prefix+1 && KeyEntryType(key[prefix]) == KeyGroupEnd
}

// TableTombstoneKey returns the DocKey under which a table-level tombstone
// is stored for the table identified by the prefix of rootDocKey, or nil if
// the key carries no table/colocation prefix.
func TableTombstoneKey(rootDocKey []byte) []byte {
	var prefix int
	switch {
	case len(rootDocKey) > 0 && KeyEntryType(rootDocKey[0]) == KeyTableID:
		prefix = 1 + TableIDSize
	case len(rootDocKey) > 0 && KeyEntryType(rootDocKey[0]) == KeyColocationID:
		prefix = 1 + ColocationIDSize
	default:
		return nil
	}
	if prefix > len(rootDocKey) {
		return nil
	}
	out := make([]byte, 0, prefix+1)
	out = append(out, rootDocKey[:prefix]...)
	return append(out, byte(KeyGroupEnd))
}

// StripTupleIDPrefix removes a leading cotable/colocation prefix, returning
// the tuple id used by query layers.
func StripTupleIDPrefix(docKey []byte) []byte {
	switch {
	case len(docKey) > 0 && KeyEntryType(docKey[0]) == KeyTableID:
		return docKey[1+TableIDSize:]
	case len(docKey) > 0 && KeyEntryType(docKey[0]) == KeyColocationID:
		return docKey[1+ColocationIDSize:]
	}
	return docKey
}

// DocKeyDecoder consumes an encoded DocKey piece by piece.
type DocKeyDecoder struct {
	data []byte
}

// NewDocKeyDecoder returns a decoder positioned at the start of key.
func NewDocKeyDecoder(key []byte) *DocKeyDecoder {
	return &DocKeyDecoder{data: key}
}

// DecodeCotableID consumes a cotable prefix if present.
func (d *DocKeyDecoder) DecodeCotableID() (CotableID, bool, error) {
	var id CotableID
	if len(d.data) == 0 || KeyEntryType(d.data[0]) != KeyTableID {
		return id, false, nil
	}
	if len(d.data) < 1+TableIDSize {
		return id, false, fmt.Errorf("cotable id: %w", ErrTruncated)
	}
	copy(id[:], d.data[1:1+TableIDSize])
	d.data = d.data[1+TableIDSize:]
	return id, true, nil
}

// DecodeColocationID consumes a colocation prefix if present.
func (d *DocKeyDecoder) DecodeColocationID() (uint32, bool, error) {
	if len(d.data) == 0 || KeyEntryType(d.data[0]) != KeyColocationID {
		return 0, false, nil
	}
	if len(d.data) < 1+ColocationIDSize {
		return 0, false, fmt.Errorf("colocation id: %w", ErrTruncated)
	}
	id := binary.BigEndian.Uint32(d.data[1:])
	d.data = d.data[1+ColocationIDSize:]
	return id, true, nil
}

// DecodeHashCode consumes the hash-code prefix if present and reports
// whether the key has hashed components.
func (d *DocKeyDecoder) DecodeHashCode() (bool, error) {
	if len(d.data) == 0 || KeyEntryType(d.data[0]) != KeyUInt16Hash {
		return false, nil
	}
	if len(d.data) < 1+HashCodeSize {
		return false, fmt.Errorf("hash code: %w", ErrTruncated)
	}
	d.data = d.data[1+HashCodeSize:]
	return true, nil
}

// DecodeKeyEntryValue consumes one key component.
func (d *DocKeyDecoder) DecodeKeyEntryValue(out *KeyEntryValue) error {
	v, rest, err := DecodeKeyEntryValue(d.data)
	if err != nil {
		return err
	}
	*out = v
	d.data = rest
	return nil
}

// GroupEnded reports whether the decoder is positioned at a group end.
func (d *DocKeyDecoder) GroupEnded() bool {
	return len(d.data) > 0 && KeyEntryType(d.data[0]) == KeyGroupEnd
}

// ConsumeGroupEnd consumes the group end marker.
func (d *DocKeyDecoder) ConsumeGroupEnd() error {
	if !d.GroupEnded() {
		return ErrGroupEnd
	}
	d.data = d.data[1:]
	return nil
}

// Remainder returns the undecoded tail.
func (d *DocKeyDecoder) Remainder() []byte {
	return d.data
}

// DocKeyPrefixMatches reports whether key starts with prefix. Used for
// "does this key belong to the table" checks against the schema prefix.
func DocKeyPrefixMatches(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
