package restore

import (
	"github.com/pkg/errors"

	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/internal/packing"
	"github.com/joshuapare/dockv/pkg/types"
)

// ColumnValueFromPacked extracts one column out of a packed-row value
// (control fields included). Returns ok=false when the packing does not
// carry the column or the stored slice is NULL.
func ColumnValueFromPacked(
	packings *packing.Storage, packedValue []byte, columnID format.ColumnID,
) (format.Value, bool, error) {
	_, payload, err := format.DecodeControlFields(packedValue)
	if err != nil {
		return format.Value{}, false, errors.Wrap(err, "packed value control fields")
	}
	if format.DecodeValueEntryType(payload) != format.ValuePackedRow {
		return format.Value{}, false, types.Corruptionf("packed row expected")
	}
	p, blob, err := packings.ConsumePacking(payload[1:])
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "packed row descriptor")
	}
	slice, ok, err := p.GetValue(columnID, blob)
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "packed row blob")
	}
	if !ok || len(slice) == 0 {
		return format.Value{}, false, nil
	}
	v, err := format.DecodePrimitiveValue(slice)
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "packed column value")
	}
	return v, true, nil
}

// ColumnValueFromRecord extracts a column out of a column-split record:
// userKey must carry exactly one subkey, and it must name columnID.
func ColumnValueFromRecord(
	userKey, value []byte, columnID format.ColumnID,
) (format.Value, bool, error) {
	sizes, err := format.DecodeDocKeySizes(userKey)
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "record key")
	}
	subkeys := userKey[sizes.DocKeySize:]
	if len(subkeys) == 0 {
		return format.Value{}, false, types.Corruptionf("wrong number of subkeys")
	}
	subkey, rest, err := format.DecodeKeyEntryValue(subkeys)
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "record subkey")
	}
	if len(rest) != 0 {
		return format.Value{}, false, types.Corruptionf("wrong number of subkeys")
	}
	if subkey.Type != format.KeyColumnID || subkey.ColumnID() != columnID {
		return format.Value{}, false, nil
	}
	_, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return format.Value{}, false, errors.Wrap(err, "record control fields")
	}
	if format.DecodeValueEntryType(payload) == format.ValueTombstone {
		return format.Value{}, false, nil
	}
	v, err := format.DecodePrimitiveValue(payload)
	if err != nil {
		return format.Value{}, false, types.CorruptionWrap(err, "column value")
	}
	return v, true, nil
}
