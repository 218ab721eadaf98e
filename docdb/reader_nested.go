package docdb

import (
	"bytes"
	"time"

	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/pkg/types"
)

// stateEntry is one level of the nested helper's scan stack. The first
// entry covers the whole document, the second a column, deeper entries
// list/map positions inside complex documents. out borrows into the
// caller's result tree for the duration of the read.
type stateEntry struct {
	keyEntry   []byte
	writeTime  format.LazyHybridTime
	expiration format.Expiration
	keyValue   format.KeyEntryValue
	out        *SubDocument
}

// getHelper is the generic strategy: it supports arbitrary nested subkeys
// by keeping a stack of state entries whose depth equals the number of
// active subkey segments.
type getHelper struct {
	getHelperBase

	result *SubDocument
	state  []stateEntry

	// rootKeyBuf backs the seek buffer; it always holds rootDocKey as a
	// prefix between seeks.
	rootKeyBuf []byte

	// hasRootValue is set when the root key itself holds a value. Real
	// tables only store row tombstones at the root; scalar roots come
	// from legacy data.
	hasRootValue bool
}

func newGetHelper(reader *TableReader, rootDocKey []byte, result *SubDocument) *getHelper {
	h := &getHelper{
		result: result,
		state: []stateEntry{{
			expiration: reader.tableExpiration,
			out:        result,
		}},
	}
	h.getHelperBase = getHelperBase{
		reader:       reader,
		rootDocKey:   rootDocKey,
		rootKeyEntry: &h.rootKeyBuf,
		lastFound:    nothingFound,
	}
	h.ops = h
	return h
}

func (h *getHelper) run() (bool, error) {
	root := &h.state[0]
	return h.doRun(&root.expiration, &root.writeTime)
}

func (h *getHelper) emptyDocFound() {
	for _, col := range h.reader.projection {
		h.result.AllocateChild(col.Subkey)
	}
}

func (h *getHelper) found() bool {
	return h.lastFound >= 0 || h.hasRootValue
}

func (h *getHelper) processEntry(
	subkeys, value []byte, writeTime format.EncodedHybridTime, checkExistOnly bool,
) (bool, error) {
	subkeys = h.cleanupState(subkeys)
	if h.state[len(h.state)-1].writeTime.Encoded().Compare(writeTime) >= 0 {
		// An ancestor was rewritten at or after this record's time;
		// the record is superseded.
		return false, nil
	}
	controlFields, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return false, types.CorruptionWrap(err, "record control fields")
	}
	if err := h.allocateNewStateEntries(subkeys, writeTime, checkExistOnly, controlFields.TTL); err != nil {
		return false, err
	}
	return h.applyEntryValue(payload, controlFields, checkExistOnly)
}

// cleanupState pops stack entries whose key segment no longer prefixes the
// record's subkeys and returns the subkey remainder not yet on the stack.
func (h *getHelper) cleanupState(subkeys []byte) []byte {
	for i := 1; i < len(h.state); i++ {
		if !bytes.HasPrefix(subkeys, h.state[i].keyEntry) {
			h.state = h.state[:i]
			break
		}
		subkeys = subkeys[len(h.state[i].keyEntry):]
	}
	return subkeys
}

// allocateNewStateEntries pushes one stack entry per remaining subkey
// segment, deriving each level's expiration from its parent's.
func (h *getHelper) allocateNewStateEntries(
	subkeys []byte, writeTime format.EncodedHybridTime, checkExistOnly bool, ttl time.Duration,
) error {
	var lazyWriteTime format.LazyHybridTime
	lazyWriteTime.Assign(writeTime)
	for len(subkeys) > 0 {
		keyValue, rest, err := format.DecodeKeyEntryValue(subkeys)
		if err != nil {
			return types.CorruptionWrap(err, "record subkey")
		}
		consumed := subkeys[:len(subkeys)-len(rest)]
		parent := &h.state[len(h.state)-1]
		entry := stateEntry{
			keyEntry: append([]byte(nil), consumed...),
			keyValue: keyValue,
		}
		if len(rest) == 0 {
			entry.writeTime = lazyWriteTime
		} else {
			entry.writeTime = parent.writeTime
		}
		if !checkExistOnly {
			entry.out = parent.out.AllocateChild(keyValue)
		}
		if h.ttlCheckRequired() {
			entry.expiration = format.NewExpiration(parent.expiration, ttl, entry.writeTime.Decoded())
		} else {
			entry.expiration = parent.expiration
		}
		h.state = append(h.state, entry)
		subkeys = rest
	}
	return nil
}

// applyEntryValue decodes the record payload into the innermost stack
// entry. Returns true when the record was consumed (accepted or skipped in
// place), matching the base contract that an accepted record overrides the
// packed value of the current column.
func (h *getHelper) applyEntryValue(
	payload []byte, controlFields format.ValueControlFields, checkExistOnly bool,
) (bool, error) {
	current := &h.state[len(h.state)-1]
	if !h.isObsolete(current.expiration) {
		var sink valueSink
		if current.out != nil {
			out := current.out
			sink = func(v format.Value, writeTimeMicros, ttlSeconds int64) {
				if v.Type == format.ValueObject {
					if !out.IsContainer() {
						out.SetScalar(v)
					}
				} else {
					out.SetScalar(v)
				}
				out.SetWriteTime(writeTimeMicros)
				out.SetTTL(ttlSeconds)
			}
		}
		ok, err := h.tryDecodeValue(
			controlFields.Timestamp, &current.writeTime, current.expiration, payload, sink)
		if err != nil {
			return false, err
		}
		if ok {
			h.lastFound = h.columnIndex
			return true, nil
		}
		if current.out != nil {
			current.out.MarkTombstone()
		}
	}

	// The record was a tombstone or expired. Projection columns still
	// need their NULL cells reported, so only deeper entries are pruned.
	minDepth := 1
	if h.reader.projection != nil {
		minDepth = 2
	}
	if !checkExistOnly && len(h.state) > minDepth {
		h.state[len(h.state)-2].out.DeleteChild(current.keyValue)
	}
	return true, nil
}

func (h *getHelper) noValueForColumnIndex() {
	// Allocate an invalid child; it reads back as a NULL cell.
	h.result.AllocateChild(h.reader.projection[h.columnIndex].Subkey)
}

func (h *getHelper) decodePackedColumn() (bool, error) {
	h.state = h.state[:1]
	subkey := h.reader.projection[h.columnIndex].Subkey
	return h.doDecodePackedColumn(h.state[0].expiration,
		func(v format.Value, writeTimeMicros, ttlSeconds int64) {
			child := h.result.AllocateChild(subkey)
			child.SetScalar(v)
			child.SetWriteTime(writeTimeMicros)
			child.SetTTL(ttlSeconds)
		})
}

func (h *getHelper) setRootValue(valueType format.ValueEntryType, payload []byte) error {
	h.hasRootValue = true
	if valueType == format.ValueObject {
		return nil
	}
	v, err := format.DecodePrimitiveValue(payload)
	if err != nil {
		return types.CorruptionWrap(err, "root value")
	}
	h.result.SetScalar(v)
	h.cannotScanColumns = true
	return nil
}

func (h *getHelper) checkForRootValue() bool {
	if !h.hasRootValue {
		return false
	}
	if h.result.IsContainer() {
		h.result.ClearChildren()
	}
	return true
}
