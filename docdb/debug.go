package docdb

import (
	"fmt"
	"strings"

	"github.com/joshuapare/dockv/internal/format"
)

// FormatRecordKey renders a full record key (user key plus hybrid time
// suffix) in a human-readable form for debugging and tooling.
func FormatRecordKey(recordKey []byte) (string, error) {
	userKey, writeTime, err := format.SplitRecordKey(recordKey)
	if err != nil {
		return "", err
	}
	rendered, err := FormatUserKey(userKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s HT%s", rendered, writeTime.Decode()), nil
}

// FormatUserKey renders an encoded user key: the DocKey and any subkeys.
func FormatUserKey(userKey []byte) (string, error) {
	var sb strings.Builder
	decoder := format.NewDocKeyDecoder(userKey)

	sb.WriteString("DocKey(")
	if id, ok, err := decoder.DecodeCotableID(); err != nil {
		return "", err
	} else if ok {
		fmt.Fprintf(&sb, "CotableID=%x, ", id)
	}
	if id, ok, err := decoder.DecodeColocationID(); err != nil {
		return "", err
	} else if ok {
		fmt.Fprintf(&sb, "ColocationID=%d, ", id)
	}
	hasHash, err := decoder.DecodeHashCode()
	if err != nil {
		return "", err
	}

	var groups []string
	appendGroup := func() error {
		var parts []string
		for !decoder.GroupEnded() {
			var v format.KeyEntryValue
			if err := decoder.DecodeKeyEntryValue(&v); err != nil {
				return err
			}
			parts = append(parts, v.String())
		}
		groups = append(groups, "["+strings.Join(parts, ", ")+"]")
		return decoder.ConsumeGroupEnd()
	}
	if hasHash {
		if err := appendGroup(); err != nil {
			return "", err
		}
	} else {
		groups = append(groups, "[]")
	}
	if err := appendGroup(); err != nil {
		return "", err
	}
	sb.WriteString(strings.Join(groups, ", "))
	sb.WriteString(")")

	// Remaining bytes are subkeys.
	var subkeys []string
	rest := decoder.Remainder()
	for len(rest) > 0 {
		v, remainder, err := format.DecodeKeyEntryValue(rest)
		if err != nil {
			return "", err
		}
		subkeys = append(subkeys, v.String())
		rest = remainder
	}
	if len(subkeys) > 0 {
		return fmt.Sprintf("SubDocKey(%s, [%s])", sb.String(), strings.Join(subkeys, ", ")), nil
	}
	return sb.String(), nil
}

// FormatValue renders an encoded value: control fields and payload.
func FormatValue(value []byte) (string, error) {
	fields, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return "", err
	}
	var prefix string
	if fields.HasTimestamp() {
		prefix += fmt.Sprintf("Timestamp=%d; ", fields.Timestamp)
	}
	if fields.TTL != format.MaxTTL {
		prefix += fmt.Sprintf("TTL=%s; ", fields.TTL)
	}
	switch t := format.DecodeValueEntryType(payload); t {
	case format.ValueTombstone:
		return prefix + "DEL", nil
	case format.ValuePackedRow:
		version, blob, err := format.ConsumeUvarint(payload[1:])
		if err != nil {
			return "", err
		}
		return prefix + fmt.Sprintf("PackedRow(version=%d, %d bytes)", version, len(blob)), nil
	case format.ValueInvalid:
		return prefix + "<invalid>", nil
	default:
		v, err := format.DecodePrimitiveValue(payload)
		if err != nil {
			return "", err
		}
		return prefix + v.String(), nil
	}
}
