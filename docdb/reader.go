package docdb

import (
	"bytes"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/internal/packing"
	"github.com/joshuapare/dockv/pkg/types"
)

const nothingFound = -1

// TableReader reconstructs one row at the iterator's read time from the
// stream of versioned subkey records under a root DocKey. It borrows the
// iterator and writes into a caller-owned destination; a reader may be
// reused across rows of the same projection.
type TableReader struct {
	iter       IntentAwareIterator
	deadline   time.Time
	projection ReaderProjection
	tableType  TableType
	packings   *packing.Storage

	tableTombstoneTime format.EncodedHybridTime
	tableExpiration    format.Expiration

	encodedProjection [][]byte
}

// NewTableReader builds a reader. projection may be nil for raw sub-document
// reads; when set, index 0 must be the liveness column and entries must be
// in subkey order (see MakeReaderProjection).
func NewTableReader(
	iter IntentAwareIterator, deadline time.Time, projection ReaderProjection,
	tableType TableType, packings *packing.Storage,
) *TableReader {
	r := &TableReader{
		iter:            iter,
		deadline:        deadline,
		projection:      projection,
		tableType:       tableType,
		packings:        packings,
		tableExpiration: format.NoExpiration(),
	}
	if projection != nil {
		r.encodedProjection = make([][]byte, len(projection))
		for i := range projection {
			r.encodedProjection[i] = projection[i].Subkey.Encoded()
		}
	}
	log.WithFields(log.Fields{
		"projection": len(projection),
		"read_time":  iter.ReadTime().Read,
	}).Debug("table reader created")
	return r
}

// SetTableTTL seeds the root expiration from the table-level default TTL.
func (r *TableReader) SetTableTTL(ttl time.Duration) {
	r.tableExpiration = format.TableExpiration(ttl)
}

// UpdateTableTombstoneTime installs the table tombstone time the caller
// looked up; records at or before it are treated as absent.
func (r *TableReader) UpdateTableTombstoneTime(t format.EncodedHybridTime) {
	if !t.IsMin() {
		r.tableTombstoneTime = t
	}
}

// Get drains all records under rootDocKey and populates result with the
// logically-current nested document. It returns false iff the row is
// tombstoned, has never existed, or has fully expired, and no liveness
// marker exists.
func (r *TableReader) Get(rootDocKey []byte, result *SubDocument) (bool, error) {
	h := newGetHelper(r, rootDocKey, result)
	return h.run()
}

// GetFlat is the flat-strategy variant: result must be sized to the
// projection and receives one decoded value per projected column. Records
// with more than one subkey are rejected.
func (r *TableReader) GetFlat(rootDocKey []byte, result []format.Value) (bool, error) {
	if r.projection == nil {
		return false, types.InvalidArgumentf("flat reader requires a projection")
	}
	if len(result) != len(r.projection) {
		return false, types.InvalidArgumentf(
			"flat result has %d slots for %d projected columns", len(result), len(r.projection))
	}
	for i := range result {
		result[i] = format.Value{}
	}
	h := newFlatGetHelper(r, rootDocKey, result)
	return h.run()
}

// packedRowData is the information shared by all columns of a packed row.
type packedRowData struct {
	docHT         format.LazyHybridTime
	controlFields format.ValueControlFields
}

// packedColumnData points at the packed slice of the column under the
// reader's projection cursor.
type packedColumnData struct {
	row          *packedRowData
	encodedValue []byte
	liveness     bool
}

func (p packedColumnData) present() bool {
	return p.row != nil
}

var nullPayload = []byte{byte(format.ValueNullLow)}

// helperOps is the strategy surface: the nested helper handles arbitrary
// subkey depth through a scan stack, the flat helper writes straight into a
// dense value array. Dispatch happens once per record through this table,
// keeping the per-strategy hot paths free of repeated mode checks.
type helperOps interface {
	processEntry(subkeys, value []byte, writeTime format.EncodedHybridTime, checkExistOnly bool) (bool, error)
	noValueForColumnIndex()
	decodePackedColumn() (bool, error)
	setRootValue(valueType format.ValueEntryType, payload []byte) error
	checkForRootValue() bool
	emptyDocFound()
	found() bool
}

// getHelperBase carries the scan state shared by both strategies:
// projection alignment, packed-row handling, TTL inheritance, and liveness
// detection.
type getHelperBase struct {
	reader     *TableReader
	rootDocKey []byte

	// rootKeyEntry points at the seek buffer owned by the concrete
	// helper; it always starts with rootDocKey while a seek is built.
	rootKeyEntry *[]byte

	packedRow     []byte
	packedRowData packedRowData
	schemaPacking *packing.SchemaPacking
	packedColumn  packedColumnData

	columnIndex       int
	lastFound         int
	cannotScanColumns bool

	flatDoc  bool
	sqlTable bool

	ops helperOps
}

func (b *getHelperBase) ttlCheckRequired() bool {
	return !b.sqlTable
}

// doRun is the common driver: prepare from the row-level record, scan the
// columns, and fall back to the liveness-only existence pass when needed.
// rootExpiration and rootWriteTime are only written during prepare.
func (b *getHelperBase) doRun(rootExpiration *format.Expiration, rootWriteTime *format.LazyHybridTime) (bool, error) {
	b.reader.iter.SetPrefix(b.rootDocKey)
	defer b.reader.iter.SetPrefix(nil)

	if err := b.prepare(rootExpiration, rootWriteTime); err != nil {
		return false, err
	}

	if b.reader.projection != nil {
		if len(b.reader.projection) == 0 {
			// Existence probe: only the liveness column matters.
			var err error
			b.packedColumn, err = b.getPackedColumn(format.LivenessColumn)
			if err != nil {
				return false, err
			}
			if err := b.scan(true); err != nil {
				return false, err
			}
			return b.ops.found(), nil
		}
		if err := b.updatePackedColumnData(); err != nil {
			return false, err
		}
	} else {
		b.cannotScanColumns = true
	}
	if err := b.scan(false); err != nil {
		return false, err
	}

	if b.lastFound >= 0 || b.ops.checkForRootValue() {
		return true, nil
	}

	if b.sqlTable || b.reader.projection == nil {
		// SQL rows always store a liveness column and it is always
		// projected, so a missed scan means a missing row.
		return false, nil
	}

	// The row may exist with only a liveness marker stored. Re-seek and
	// run a check-exist-only pass.
	b.reader.iter.Seek(b.rootDocKey)
	if err := b.scan(true); err != nil {
		return false, err
	}
	if b.ops.found() {
		b.ops.emptyDocFound()
		return true, nil
	}
	return false, nil
}

// scan consumes records under the root key; the iterator must already point
// at the first one.
func (b *getHelperBase) scan(checkExistOnly bool) error {
	for !b.reader.iter.IsOutOfRecords() {
		if !b.reader.deadline.IsZero() && time.Now().After(b.reader.deadline) {
			return types.DeadlineExceeded("deadline for query passed")
		}
		cont, err := b.handleRecord(checkExistOnly)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	if !checkExistOnly && !b.cannotScanColumns {
		for {
			more, err := b.nextColumn()
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
	}
	return nil
}

func (b *getHelperBase) handleRecord(checkExistOnly bool) (bool, error) {
	entry, err := b.reader.iter.FetchKey()
	if err != nil {
		return false, err
	}
	if !bytes.HasPrefix(entry.Key, b.rootDocKey) {
		return false, types.Corruptionf("record outside the scanned document")
	}
	subkeys := entry.Key[len(b.rootDocKey):]
	return b.doHandleRecord(entry, subkeys, checkExistOnly)
}

func (b *getHelperBase) doHandleRecord(
	entry FetchedEntry, subkeys []byte, checkExistOnly bool,
) (bool, error) {
	if !checkExistOnly && b.reader.projection != nil {
		columnPrefix := b.reader.encodedProjection[b.columnIndex]
		cmp := comparePrefix(subkeys, columnPrefix)
		if cmp < 0 {
			// The record sorts before the projection cursor; skip
			// ahead to the column we want.
			b.seekProjectionColumn()
			return true, nil
		}
		if cmp > 0 {
			// The projection column has no record in the store.
			more, err := b.nextColumn()
			if err != nil {
				return false, err
			}
			if !more {
				return false, nil
			}
			return b.doHandleRecord(entry, subkeys, checkExistOnly)
		}
		if b.flatDoc && len(subkeys) != len(columnPrefix) {
			return false, types.Internalf("flat reader supports at most one subkey per record")
		}
	}

	accepted, err := b.ops.processEntry(subkeys, b.reader.iter.Value(), entry.WriteTime, checkExistOnly)
	if err != nil {
		return false, err
	}
	if accepted {
		// A column-split record beat the packed value for this column.
		b.packedColumn.row = nil
	}
	if checkExistOnly && b.ops.found() {
		return false, nil
	}
	b.reader.iter.SeekPastSubKey(entry.Key)
	return true, nil
}

// seekProjectionColumn seeks forward to the current projection column under
// the root key.
func (b *getHelperBase) seekProjectionColumn() {
	if len(*b.rootKeyEntry) == 0 {
		*b.rootKeyEntry = append(*b.rootKeyEntry, b.rootDocKey...)
	}
	*b.rootKeyEntry = append(*b.rootKeyEntry, b.reader.encodedProjection[b.columnIndex]...)
	b.reader.iter.SeekForward(*b.rootKeyEntry)
	*b.rootKeyEntry = (*b.rootKeyEntry)[:len(b.rootDocKey)]
}

// nextColumn closes out the current projection column — consulting the
// packed row for a value when the store had no record — and advances the
// cursor. Returns false when the projection is exhausted.
func (b *getHelperBase) nextColumn() (bool, error) {
	ok, err := b.ops.decodePackedColumn()
	if err != nil {
		return false, err
	}
	if ok {
		b.lastFound = b.columnIndex
	} else if b.lastFound < b.columnIndex {
		b.ops.noValueForColumnIndex()
	}
	b.columnIndex++
	if b.columnIndex == len(b.reader.projection) {
		return false, nil
	}
	if err := b.updatePackedColumnData(); err != nil {
		return false, err
	}
	return true, nil
}

// valueSink receives a decoded column value with its read metadata.
type valueSink func(v format.Value, writeTimeMicros int64, ttlSeconds int64)

// doDecodePackedColumn extracts the current column from the packed row, if
// the row had one and the value is visible.
func (b *getHelperBase) doDecodePackedColumn(parentExp format.Expiration, sink valueSink) (bool, error) {
	if !b.packedColumn.present() {
		return false, nil
	}
	value := b.packedColumn.encodedValue
	if b.sqlTable {
		// A legacy writer bug may prepend an intent hybrid time to the
		// packed column payload; detect and strip it.
		var err error
		value, err = format.StripIntentHybridTime(value)
		if err != nil {
			return false, types.CorruptionWrap(err, "packed column payload")
		}
		return decodeValueOnly(value, sink)
	}

	var controlFields format.ValueControlFields
	if b.packedColumn.liveness {
		controlFields = b.packedColumn.row.controlFields
	} else {
		var err error
		controlFields, value, err = format.DecodeControlFields(value)
		if err != nil {
			return false, types.CorruptionWrap(err, "packed column control fields")
		}
	}
	writeTime := &b.packedColumn.row.docHT
	expiration := format.NewExpiration(parentExp, controlFields.TTL, writeTime.Decoded())
	if b.isObsolete(expiration) {
		return false, nil
	}
	timestamp := controlFields.Timestamp
	if !controlFields.HasTimestamp() {
		timestamp = b.packedColumn.row.controlFields.Timestamp
	}
	return b.tryDecodeValue(timestamp, writeTime, expiration, value, sink)
}

// updatePackedColumnData refreshes the packed-column pointer for the column
// under the projection cursor.
func (b *getHelperBase) updatePackedColumnData() error {
	column := b.reader.projection[b.columnIndex].Subkey
	if column.IsColumnID() {
		var err error
		b.packedColumn, err = b.getPackedColumn(column)
		return err
	}
	// Non-column subkeys (collection probes) have no packed form.
	b.packedColumn.row = nil
	return nil
}

// prepare consumes the row-level record, if any: packed rows, row
// tombstones, and legacy root scalars all live directly under the root key.
// The iterator is not advanced.
func (b *getHelperBase) prepare(rootExpiration *format.Expiration, rootWriteTime *format.LazyHybridTime) error {
	*b.rootKeyEntry = append(*b.rootKeyEntry, b.rootDocKey...)

	entry, err := b.reader.iter.FetchKey()
	if err != nil {
		return err
	}

	var value []byte
	var docHT format.LazyHybridTime
	docHT.Assign(b.reader.tableTombstoneTime)
	if bytes.Equal(entry.Key, b.rootDocKey) && entry.WriteTime.Compare(docHT.Encoded()) >= 0 {
		docHT.Assign(entry.WriteTime)
		value = b.reader.iter.Value()
	}

	controlFields, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return types.CorruptionWrap(err, "row record control fields")
	}
	switch valueType := format.DecodeValueEntryType(payload); valueType {
	case format.ValuePackedRow:
		p, blob, err := b.reader.packings.ConsumePacking(payload[1:])
		if err != nil {
			return types.CorruptionWrap(err, "packed row descriptor")
		}
		b.schemaPacking = p
		b.packedRow = append([]byte(nil), blob...)
		b.packedRowData.docHT = docHT
		b.packedRowData.controlFields = controlFields
		if b.ttlCheckRequired() {
			*rootExpiration = format.NewExpiration(*rootExpiration, format.MaxTTL, docHT.Decoded())
		}
	case format.ValueTombstone, format.ValueInvalid:
		// Nothing stored for the root, or the row is deleted; the
		// tombstone itself already dominated docHT above.
	default:
		if err := b.ops.setRootValue(valueType, payload); err != nil {
			return err
		}
	}

	*rootWriteTime = docHT
	return nil
}

// getPackedColumn resolves a projection column inside the packed row.
func (b *getHelperBase) getPackedColumn(column format.KeyEntryValue) (packedColumnData, error) {
	if b.schemaPacking == nil {
		return packedColumnData{}, nil
	}
	if column.Type == format.KeySystemColumnID && column.ColumnID() == format.LivenessColumnID {
		// The packed row itself asserts the row's existence.
		return packedColumnData{
			row:          &b.packedRowData,
			encodedValue: nullPayload,
			liveness:     true,
		}, nil
	}
	slice, ok, err := b.schemaPacking.GetValue(column.ColumnID(), b.packedRow)
	if err != nil {
		return packedColumnData{}, types.CorruptionWrap(err, "packed row blob")
	}
	if !ok {
		return packedColumnData{}, nil
	}
	if len(slice) == 0 {
		slice = nullPayload
	}
	return packedColumnData{row: &b.packedRowData, encodedValue: slice}, nil
}

// tryDecodeValue decodes payload unless it is a tombstone, attaching write
// time and remaining TTL.
func (b *getHelperBase) tryDecodeValue(
	timestamp int64, writeTime *format.LazyHybridTime, expiration format.Expiration,
	payload []byte, sink valueSink,
) (bool, error) {
	if format.DecodeValueEntryType(payload) == format.ValueTombstone {
		return false, nil
	}
	v, err := format.DecodePrimitiveValue(payload)
	if err != nil {
		return false, types.CorruptionWrap(err, "column value")
	}
	if sink != nil {
		writeHT := writeTime.Decoded()
		writeMicros := timestamp
		if timestamp == format.InvalidUserTimestamp {
			writeMicros = int64(writeHT.PhysicalMicros())
		}
		ttl := format.TTLRemainingSeconds(b.reader.iter.ReadTime().Read, writeHT, expiration)
		sink(v, writeMicros, ttl)
	}
	return true, nil
}

func (b *getHelperBase) isObsolete(expiration format.Expiration) bool {
	if expiration.TTL == format.MaxTTL {
		return false
	}
	return format.HasExpired(expiration.WriteHT, expiration.TTL, b.reader.iter.ReadTime().Read)
}

// decodeValueOnly decodes payload without metadata; tombstones report no
// value.
func decodeValueOnly(payload []byte, sink valueSink) (bool, error) {
	if format.DecodeValueEntryType(payload) == format.ValueTombstone {
		return false, nil
	}
	v, err := format.DecodePrimitiveValue(payload)
	if err != nil {
		return false, types.CorruptionWrap(err, "column value")
	}
	if sink != nil {
		sink(v, 0, -1)
	}
	return true, nil
}

// comparePrefix compares the leading bytes of subkeys against an encoded
// projection subkey.
func comparePrefix(subkeys, prefix []byte) int {
	if len(subkeys) > len(prefix) {
		return bytes.Compare(subkeys[:len(prefix)], prefix)
	}
	return bytes.Compare(subkeys, prefix)
}
