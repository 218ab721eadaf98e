// Package format houses the low-level codecs for the document store's
// persisted key/value layout. The goal is to keep the encoding focused,
// allocation-free where possible, and independent from the public API so
// higher-level packages can orchestrate the data in a more ergonomic form.
//
// Keys are byte strings whose components each start with a KeyEntryType tag.
// Lexicographic order of encoded keys equals the store's iteration order, so
// every tag and payload encoding below is chosen to preserve that property.
package format

// KeyEntryType tags the first byte of every encoded key component.
type KeyEntryType byte

const (
	// KeyGroupEnd terminates a group of key entries (hashed or range part).
	// It is the lowest tag so a shorter DocKey sorts before its extensions.
	KeyGroupEnd KeyEntryType = '!'

	// KeyHybridTime separates the user key from the encoded write time
	// suffix. It sorts below every value tag, so all versions of a subkey
	// sort before that subkey's children.
	KeyHybridTime KeyEntryType = '#'

	// KeyNullLow encodes a NULL key component.
	KeyNullLow KeyEntryType = '$'

	// KeyFalse and KeyTrue encode boolean key components (false < true).
	KeyFalse KeyEntryType = '*'
	KeyTrue  KeyEntryType = '+'

	// KeySystemColumnID tags a system column subkey. Layout:
	//   0x00  '@'
	//   0x01  4-byte big-endian column id
	// The tag sorts below KeyColumnID, so the liveness column (system
	// column 0) is always the first subkey under a row.
	KeySystemColumnID KeyEntryType = '@'

	// KeyColocationID tags the 4-byte big-endian colocation prefix.
	KeyColocationID KeyEntryType = 'C'

	// KeyUInt16Hash tags the 2-byte big-endian hash-code prefix that
	// precedes hashed key columns.
	KeyUInt16Hash KeyEntryType = 'G'

	// KeyInt32 / KeyInt64 encode signed integers with the sign bit
	// flipped so byte order equals numeric order.
	KeyInt32 KeyEntryType = 'H'
	KeyInt64 KeyEntryType = 'I'

	// KeyColumnID tags a regular column subkey. Layout as KeySystemColumnID.
	KeyColumnID KeyEntryType = 'K'

	// KeyString encodes a string component: 0x00 bytes are escaped as
	// 0x00 0x01 and the component is terminated by 0x00 0x00.
	KeyString KeyEntryType = 'S'

	// KeyTableID tags the 16-byte cotable uuid prefix.
	KeyTableID KeyEntryType = 'T'

	// KeyUInt32 encodes an unsigned 32-bit integer, big-endian.
	KeyUInt32 KeyEntryType = 'U'

	// KeyInvalid is returned when a tag cannot be decoded.
	KeyInvalid KeyEntryType = 0
)

// ValueEntryType tags the payload that follows the control fields in an
// encoded value. Values are never compared byte-wise, so the tag bytes only
// need to be distinct.
type ValueEntryType byte

const (
	// ValueNullLow encodes SQL NULL. No payload.
	ValueNullLow ValueEntryType = '$'

	// ValueDouble is an 8-byte big-endian IEEE 754 float.
	ValueDouble ValueEntryType = 'D'

	// ValueFalse / ValueTrue have no payload.
	ValueFalse ValueEntryType = 'F'
	ValueTrue  ValueEntryType = 'T'

	// ValueInt32 / ValueInt64 are big-endian two's complement.
	ValueInt32 ValueEntryType = 'H'
	ValueInt64 ValueEntryType = 'I'

	// ValueObject marks an object/collection sentinel. No payload; the
	// members are separate records under longer subkeys.
	ValueObject ValueEntryType = 'O'

	// ValuePackedRow is followed by a uvarint schema-packing version and
	// the packed column blob.
	ValuePackedRow ValueEntryType = 'P'

	// ValueString holds the raw bytes of the string (rest of the slice).
	ValueString ValueEntryType = 'S'

	// ValueTombstone marks a deletion at the record's write time. No payload.
	ValueTombstone ValueEntryType = 'X'

	// ValueInvalid is the zero tag, reported for empty or unknown payloads.
	ValueInvalid ValueEntryType = 0
)

// Control-field tags. Control fields precede the ValueEntryType tag and are
// each optional; when present they appear in the order listed here.
const (
	// CtrlUserTimestamp is followed by an 8-byte big-endian microsecond
	// timestamp supplied by the user.
	CtrlUserTimestamp byte = 's'

	// CtrlTTL is followed by a uvarint TTL in milliseconds.
	CtrlTTL byte = 't'
)

// Fixed sizes of encoded key pieces.
const (
	// EncodedHybridTimeSize is the byte length of an encoded hybrid time.
	EncodedHybridTimeSize = 8

	// HybridTimeSuffixSize is the tag plus the inverted hybrid time that
	// terminates every record key.
	HybridTimeSuffixSize = 1 + EncodedHybridTimeSize

	// ColumnIDSize is the tag plus the big-endian column id.
	ColumnIDSize = 1 + 4

	// TableIDSize is the byte length of a cotable uuid.
	TableIDSize = 16

	// ColocationIDSize is the byte length of a colocation id.
	ColocationIDSize = 4

	// HashCodeSize is the byte length of the hash-code prefix payload.
	HashCodeSize = 2
)
