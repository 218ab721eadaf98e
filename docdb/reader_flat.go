package docdb

import (
	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/pkg/types"
)

// flatGetHelper is the fast-path strategy for SQL-style tables: at most one
// subkey (the column id) per record, no scan stack, values written straight
// into a dense array indexed by projection position. TTL is never checked —
// flat tables do not carry per-record TTL.
type flatGetHelper struct {
	getHelperBase

	result []format.Value

	rowKeyBuf     []byte
	rowWriteTime  format.LazyHybridTime
	rowExpiration format.Expiration
}

func newFlatGetHelper(reader *TableReader, rootDocKey []byte, result []format.Value) *flatGetHelper {
	h := &flatGetHelper{result: result}
	h.getHelperBase = getHelperBase{
		reader:       reader,
		rootDocKey:   rootDocKey,
		rootKeyEntry: &h.rowKeyBuf,
		lastFound:    nothingFound,
		flatDoc:      true,
		sqlTable:     true,
	}
	h.rowExpiration = reader.tableExpiration
	h.ops = h
	return h
}

func (h *flatGetHelper) run() (bool, error) {
	return h.doRun(&h.rowExpiration, &h.rowWriteTime)
}

func (h *flatGetHelper) emptyDocFound() {}

func (h *flatGetHelper) found() bool {
	return h.lastFound >= 0
}

// processEntry accepts the record when it is more recent than the packed
// row.
func (h *flatGetHelper) processEntry(
	_, value []byte, writeTime format.EncodedHybridTime, checkExistOnly bool,
) (bool, error) {
	if h.rowWriteTime.Encoded().Compare(writeTime) >= 0 {
		return false, nil
	}

	_, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return false, types.CorruptionWrap(err, "record control fields")
	}
	var sink valueSink
	if !checkExistOnly {
		target := &h.result[h.columnIndex]
		sink = func(v format.Value, _, _ int64) {
			*target = v
		}
	}
	ok, err := decodeValueOnly(payload, sink)
	if err != nil {
		return false, err
	}
	if ok {
		h.lastFound = h.columnIndex
	}
	return true, nil
}

func (h *flatGetHelper) noValueForColumnIndex() {}

func (h *flatGetHelper) decodePackedColumn() (bool, error) {
	target := &h.result[h.columnIndex]
	return h.doDecodePackedColumn(h.rowExpiration, func(v format.Value, _, _ int64) {
		*target = v
	})
}

func (h *flatGetHelper) setRootValue(format.ValueEntryType, []byte) error {
	return nil
}

func (h *flatGetHelper) checkForRootValue() bool {
	return false
}
