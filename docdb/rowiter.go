package docdb

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/internal/packing"
	"github.com/joshuapare/dockv/pkg/types"
)

// RowIterator drives a forward or backward scan over a key range, invoking
// the TableReader for each candidate DocKey and projecting primary-key
// columns out of the encoded key bytes. It exclusively owns its intent-aware
// iterator.
//
// The protocol is HasNext/NextRow: HasNext prepares a row (idempotently —
// repeated calls without NextRow/SkipRow return the same answer), NextRow
// consumes it.
type RowIterator struct {
	projection  *Schema
	tableSchema *Schema
	docDB       DocDB
	deadline    time.Time
	readTime    ReadHybridTime
	config      types.ReaderConfig
	packings    *packing.Storage

	readerProjection ReaderProjection
	keyOffsets       *format.DocKeySizes
	endReferencedKeyColumnIndex int

	iter        IntentAwareIterator
	scanChoices ScanChoices

	tableType     TableType
	isFlat        bool
	ignoreTTL     bool
	isForwardScan bool
	initialized   bool

	hasBoundKey bool
	boundKey    []byte

	rowKey     []byte
	rowHashKey []byte
	iterKey    []byte
	tupleKey   []byte

	rowReady   bool
	done       bool
	hasNextErr error

	reader *TableReader
	row    *SubDocument
	values []format.Value

	keysFound                   int64
	obsoleteKeysFound           int64
	obsoleteKeysFoundPastCutoff int64
	historyCutoff               format.EncodedHybridTime
	historyCutoffSet            bool
}

// RowIteratorOptions configures a RowIterator.
type RowIteratorOptions struct {
	// Projection selects the columns to materialize; key columns of the
	// projection are decoded from DocKeys.
	Projection *Schema
	// TableSchema is the scanned table's full schema.
	TableSchema *Schema
	DocDB       DocDB
	Deadline    time.Time
	ReadTime    ReadHybridTime
	Config      types.ReaderConfig
	Packings    *packing.Storage
	// EndReferencedKeyColumnIndex bounds how many key columns NextRow
	// decodes; nil means all of them.
	EndReferencedKeyColumnIndex *int
}

// NewRowIterator builds an iterator; Init or InitScanSpec must be called
// before the first HasNext.
func NewRowIterator(opts RowIteratorOptions) (*RowIterator, error) {
	endIdx := opts.TableSchema.NumKeyColumns()
	if opts.EndReferencedKeyColumnIndex != nil {
		endIdx = *opts.EndReferencedKeyColumnIndex
		if endIdx < 0 || endIdx > opts.TableSchema.NumKeyColumns() {
			return nil, types.InvalidArgumentf(
				"end referenced key column index %d is higher than num of key columns in schema %d",
				endIdx, opts.TableSchema.NumKeyColumns())
		}
	}
	it := &RowIterator{
		projection:                  opts.Projection,
		tableSchema:                 opts.TableSchema,
		docDB:                       opts.DocDB,
		deadline:                    opts.Deadline,
		readTime:                    opts.ReadTime,
		config:                      opts.Config,
		packings:                    opts.Packings,
		keyOffsets:                  opts.TableSchema.KeyOffsets,
		endReferencedKeyColumnIndex: endIdx,
	}
	it.readerProjection = MakeReaderProjection(opts.Projection)
	return it, nil
}

// Init readies the iterator for a plain table scan, seeking to subDocKey
// (or the table's first key when empty).
func (it *RowIterator) Init(tableType TableType, subDocKey []byte) {
	it.checkInitOnce()
	it.iter = it.docDB.Store.NewIterator(IterOptions{
		BloomMode: DontUseBloomFilter,
		Deadline:  it.deadline,
		ReadTime:  it.readTime,
	})
	if len(subDocKey) != 0 {
		it.rowKey = append(it.rowKey[:0], subDocKey...)
	} else {
		it.rowKey = append(it.rowKey[:0], it.tableSchema.EncodedPrefix()...)
	}
	it.rowHashKey = it.rowKey
	it.iter.Seek(it.rowKey)
	it.rowReady = false
	it.hasBoundKey = false
	it.isForwardScan = true
	it.configureForTableType(tableType)
	it.initResult()
}

// ScanSpec bounds a range scan.
type ScanSpec struct {
	LowerBound []byte
	UpperBound []byte
	Forward    bool
	QueryID    uint64
	// Choices optionally enumerates the desired keys inside the bounds.
	Choices ScanChoices
}

// InitScanSpec readies the iterator for a bounded scan. Fixed-point gets
// (bounds equal up to the hashed or first-range prefix) request bloom
// filter assisted lookups; real ranges must not, or the filter's false
// negatives would drop rows.
func (it *RowIterator) InitScanSpec(tableType TableType, spec ScanSpec) error {
	it.checkInitOnce()
	it.configureForTableType(tableType)
	it.initResult()
	it.isForwardScan = spec.Forward

	fixedPointGet := false
	if len(spec.LowerBound) != 0 && len(spec.UpperBound) != 0 {
		eq, err := hashedOrFirstRangeComponentsEqual(spec.LowerBound, spec.UpperBound)
		if err != nil {
			return err
		}
		fixedPointGet = eq
	}
	mode := DontUseBloomFilter
	if fixedPointGet {
		mode = UseBloomFilter
	}
	it.iter = it.docDB.Store.NewIterator(IterOptions{
		BloomMode:        mode,
		UserKeyForFilter: spec.LowerBound,
		QueryID:          spec.QueryID,
		Deadline:         it.deadline,
		ReadTime:         it.readTime,
	})
	it.rowReady = false
	it.scanChoices = spec.Choices

	if spec.Forward {
		it.hasBoundKey = len(spec.UpperBound) != 0
		if it.hasBoundKey {
			it.boundKey = append(it.boundKey[:0], spec.UpperBound...)
			it.iter.SetUpperbound(it.boundKey)
		}
		it.iter.Seek(spec.LowerBound)
	} else {
		it.hasBoundKey = len(spec.LowerBound) != 0
		if it.hasBoundKey {
			it.boundKey = append(it.boundKey[:0], spec.LowerBound...)
		}
		if len(spec.UpperBound) != 0 {
			it.iter.PrevDocKey(spec.UpperBound)
		} else {
			it.iter.SeekToLastDocKey()
		}
	}
	return nil
}

func (it *RowIterator) checkInitOnce() {
	if it.initialized {
		log.Warn("row iterator has already been initialized")
	}
	it.initialized = true
}

func (it *RowIterator) configureForTableType(tableType TableType) {
	it.tableType = tableType
	if tableType == PGSQLTableType {
		it.ignoreTTL = true
		if it.config.UseFlatReader {
			it.isFlat = true
		}
	}
}

func (it *RowIterator) initResult() {
	if it.isFlat {
		it.values = make([]format.Value, len(it.readerProjection))
		it.row = nil
	} else {
		it.row = NewSubDocument()
		it.values = nil
	}
}

// HasNext prepares the next row. It is idempotent: repeated calls without a
// NextRow/SkipRow in between return the same answer, and a failure is
// sticky.
func (it *RowIterator) HasNext() (bool, error) {
	if it.hasNextErr != nil {
		return false, it.hasNextErr
	}
	if it.rowReady {
		return true, nil
	}
	if it.done {
		return false, nil
	}

	for {
		if it.iter.IsOutOfRecords() ||
			(it.scanChoices != nil && it.scanChoices.FinishedWithScanChoices()) {
			it.finish()
			return false, nil
		}

		entry, err := it.iter.FetchKey()
		if err != nil {
			it.hasNextErr = err
			return false, err
		}

		// The iterator was positioned outside the previous row; make
		// sure it actually advanced in the scan direction, or the
		// scan would spin on one key forever.
		if len(it.iterKey) != 0 {
			cmp := bytes.Compare(it.iterKey, entry.Key)
			if it.isForwardScan && cmp >= 0 || !it.isForwardScan && cmp <= 0 {
				it.hasNextErr = types.Corruptionf("infinite loop detected at %x", entry.Key)
				return false, it.hasNextErr
			}
		}
		it.iterKey = append(it.iterKey[:0], entry.Key...)

		// In colocated tablets the cursor can run into a neighbor
		// table's rows.
		if !it.tableSchema.DocKeyBelongsTo(it.iterKey) {
			it.finish()
			return false, nil
		}

		if err := it.splitRowKey(); err != nil {
			it.hasNextErr = err
			return false, err
		}

		if it.hasBoundKey && it.isForwardScan == (bytes.Compare(it.rowKey, it.boundKey) >= 0) {
			it.finish()
			return false, nil
		}

		if it.scanChoices != nil {
			if !it.scanChoices.CurrentTargetMatchesKey(it.rowKey) {
				// We seeked past the target; skip all targets up
				// to the key under the cursor and retry.
				ok, err := it.scanChoices.SkipTargetsUpTo(it.rowKey)
				if err != nil {
					it.hasNextErr = err
					return false, err
				}
				if !ok {
					if !format.IsColocatedTableTombstoneKey(it.rowKey) {
						it.hasNextErr = types.Corruptionf(
							"key %x is not a table tombstone key", it.rowKey)
						return false, it.hasNextErr
					}
					if it.isForwardScan {
						it.iter.SeekOutOfSubDoc(it.rowKey)
					} else {
						it.iter.PrevDocKey(it.rowKey)
					}
					continue
				}
				if !it.scanChoices.CurrentTargetMatchesKey(it.rowKey) {
					if err := it.scanChoices.SeekToCurrentTarget(it.iter); err != nil {
						it.hasNextErr = err
						return false, err
					}
					continue
				}
			}
		}

		if it.reader == nil {
			if err := it.createReader(); err != nil {
				it.hasNextErr = err
				return false, err
			}
		}

		if !it.isFlat {
			it.row.ClearChildren()
		}

		var docFound bool
		if it.isFlat {
			docFound, err = it.reader.GetFlat(it.rowKey, it.values)
		} else {
			docFound, err = it.reader.Get(it.rowKey, it.row)
		}
		if err != nil {
			it.hasNextErr = err
			return false, err
		}
		// Account the row with the write time of its first fetched record;
		// later records of the row are not examined.
		it.incrementKeyFoundStats(!docFound, entry.WriteTime)

		if it.scanChoices != nil {
			if err := it.scanChoices.DoneWithCurrentTarget(); err != nil {
				it.hasNextErr = err
				return false, err
			}
		}
		if err := it.advanceIteratorToNextDesiredRow(); err != nil {
			it.hasNextErr = err
			return false, err
		}

		if docFound {
			it.rowReady = true
			return true, nil
		}
	}
}

func (it *RowIterator) createReader() error {
	it.reader = NewTableReader(it.iter, it.deadline, it.readerProjection, it.tableType, it.packings)
	tombstoneTime, err := GetTableTombstoneTime(it.docDB.Store, it.rowKey, it.deadline, it.readTime)
	if err != nil {
		return errors.Wrap(err, "table tombstone lookup")
	}
	it.reader.UpdateTableTombstoneTime(tombstoneTime)
	if !it.ignoreTTL {
		it.reader.SetTableTTL(it.tableSchema.TableTTLOrMax())
	}
	return nil
}

// splitRowKey extracts the row's DocKey (and hash prefix) from the fetched
// key, by cached schema offsets when enabled and applicable, decoding
// otherwise.
func (it *RowIterator) splitRowKey() error {
	if it.config.UseOffsetBasedKeyDecoding && it.keyOffsets != nil &&
		len(it.iterKey) >= it.keyOffsets.DocKeySize {
		it.rowHashKey = it.iterKey[:it.keyOffsets.HashPartSize]
		it.rowKey = it.iterKey[:it.keyOffsets.DocKeySize]
		if err := it.validateKeyOffsets(); err != nil {
			return err
		}
		return nil
	}
	sizes, err := format.DecodeDocKeySizes(it.iterKey)
	if err != nil {
		return types.CorruptionWrap(err, "row key")
	}
	it.rowHashKey = it.iterKey[:sizes.HashPartSize]
	it.rowKey = it.iterKey[:sizes.DocKeySize]
	return nil
}

func (it *RowIterator) validateKeyOffsets() error {
	sizes, err := format.DecodeDocKeySizes(it.iterKey)
	if err != nil {
		return types.CorruptionWrap(err, "row key")
	}
	if sizes.HashPartSize != it.keyOffsets.HashPartSize || sizes.DocKeySize != it.keyOffsets.DocKeySize {
		return types.Corruptionf(
			"cached key offsets (%d, %d) disagree with decoded sizes (%d, %d)",
			it.keyOffsets.HashPartSize, it.keyOffsets.DocKeySize,
			sizes.HashPartSize, sizes.DocKeySize)
	}
	return nil
}

// advanceIteratorToNextDesiredRow leaves the just-read row behind: seek to
// the next scan-choice target if one is pending, otherwise out of the row's
// sub-document (forward) or to the previous DocKey (backward).
func (it *RowIterator) advanceIteratorToNextDesiredRow() error {
	if it.scanChoices != nil && !it.scanChoices.CurrentTargetMatchesKey(it.rowKey) {
		return it.scanChoices.SeekToCurrentTarget(it.iter)
	}
	if !it.isForwardScan {
		it.iter.PrevDocKey(it.rowKey)
	} else {
		it.iter.SeekOutOfSubDoc(it.rowKey)
	}
	return nil
}

func (it *RowIterator) finish() {
	it.done = true
	m := it.docDB.Metrics
	if m == nil || it.keysFound == 0 {
		return
	}
	m.KeysFound.Add(float64(it.keysFound))
	if it.obsoleteKeysFound != 0 {
		m.ObsoleteKeysFound.Add(float64(it.obsoleteKeysFound))
		if it.obsoleteKeysFoundPastCutoff != 0 {
			m.ObsoleteKeysFoundPastCutoff.Add(float64(it.obsoleteKeysFoundPastCutoff))
		}
	}
}

func (it *RowIterator) incrementKeyFoundStats(obsolete bool, writeTime format.EncodedHybridTime) {
	if it.docDB.Metrics == nil {
		return
	}
	it.keysFound++
	if !obsolete {
		return
	}
	it.obsoleteKeysFound++
	if !it.historyCutoffSet && it.docDB.Retention != nil {
		// Lazy: obsolete keys are expected to be rare.
		it.historyCutoff = format.EncodeHybridTime(it.docDB.Retention.ProposedHistoryCutoff())
		it.historyCutoffSet = true
	}
	if it.historyCutoffSet && writeTime.Less(it.historyCutoff) {
		// Written before the cutoff: compaction could already have
		// removed it.
		it.obsoleteKeysFoundPastCutoff++
	}
}

// NextRow consumes the prepared row into tableRow. projection may narrow
// the columns reported; nil reports the iterator's projection.
func (it *RowIterator) NextRow(projection *Schema, tableRow *TableRow) error {
	if it.done {
		return types.NotFound("end of iter")
	}
	if !it.rowReady {
		return types.Internalf("next row has not been prepared for reading")
	}

	if it.endReferencedKeyColumnIndex > 0 {
		if err := it.decodePrimaryKeyColumns(tableRow); err != nil {
			return err
		}
	}

	if projection == nil {
		projection = it.projection
	}

	if it.isFlat {
		for readerIdx := range it.readerProjection {
			subkey := it.readerProjection[readerIdx].Subkey
			if subkey.Type == format.KeySystemColumnID {
				// The liveness column is not a table column; it is not reported.
				continue
			}
			columnIdx := projection.FindColumnByID(subkey.ColumnID())
			if columnIdx < 0 {
				continue
			}
			cell := tableRow.AllocColumn(subkey.ColumnID())
			if it.values[readerIdx].Valid() {
				cell.Value = it.values[readerIdx]
			}
		}
	} else {
		for i := projection.NumKeyColumns(); i < projection.NumColumns(); i++ {
			columnID := projection.ColumnID(i)
			child := it.row.GetChild(format.KeyEntryColumn(columnID))
			if child == nil {
				continue
			}
			cell := tableRow.AllocColumn(columnID)
			cell.Value = child.Scalar()
			cell.TTLSeconds = child.TTL()
			if wt, ok := child.WriteTime(); ok {
				cell.WriteTimeMicros = wt
				cell.HasWriteTime = true
			}
		}
	}

	it.rowReady = false
	return nil
}

// decodePrimaryKeyColumns projects the hash and range key columns out of
// the row's encoded DocKey.
func (it *RowIterator) decodePrimaryKeyColumns(tableRow *TableRow) error {
	decoder := format.NewDocKeyDecoder(it.rowKey)
	if _, _, err := decoder.DecodeCotableID(); err != nil {
		return types.CorruptionWrap(err, "row key cotable id")
	}
	if _, _, err := decoder.DecodeColocationID(); err != nil {
		return types.CorruptionWrap(err, "row key colocation id")
	}
	hasHash, err := decoder.DecodeHashCode()
	if err != nil {
		return types.CorruptionWrap(err, "row key hash code")
	}

	// Key column values were encoded in schema order: hashed columns
	// first, then (unless the group already ended) range columns.
	if hasHash {
		if err := it.setPrimaryKeyColumnValues(
			0, it.tableSchema.HashKeyColumns, "hash", decoder, tableRow); err != nil {
			return err
		}
	}
	if !decoder.GroupEnded() {
		if err := it.setPrimaryKeyColumnValues(
			it.tableSchema.HashKeyColumns, it.tableSchema.RangeKeyColumns, "range",
			decoder, tableRow); err != nil {
			return err
		}
	}
	return nil
}

func (it *RowIterator) setPrimaryKeyColumnValues(
	beginIndex, columnCount int, columnType string,
	decoder *format.DocKeyDecoder, tableRow *TableRow,
) error {
	endGroupIndex := beginIndex + columnCount
	if endGroupIndex > it.tableSchema.NumColumns() {
		return types.InvalidArgumentf(
			"%s primary key columns between positions %d and %d go beyond table columns %d",
			columnType, beginIndex, endGroupIndex-1, it.tableSchema.NumColumns())
	}
	colIdx := beginIndex
	limit := endGroupIndex
	if it.endReferencedKeyColumnIndex < limit {
		limit = it.endReferencedKeyColumnIndex
	}
	for ; colIdx < limit; colIdx++ {
		var keyValue format.KeyEntryValue
		if err := decoder.DecodeKeyEntryValue(&keyValue); err != nil {
			return types.CorruptionWrap(err, "primary key column")
		}
		cell := tableRow.AllocColumn(it.tableSchema.ColumnID(colIdx))
		cell.Value = keyEntryToValue(keyValue)
	}
	if colIdx == endGroupIndex {
		if err := decoder.ConsumeGroupEnd(); err != nil {
			return types.CorruptionWrap(err, "primary key group end")
		}
	}
	return nil
}

// keyEntryToValue converts a decoded key component into a column value.
func keyEntryToValue(k format.KeyEntryValue) format.Value {
	switch k.Type {
	case format.KeyNullLow:
		return format.NullValue()
	case format.KeyFalse, format.KeyTrue:
		return format.BoolValue(k.Bool)
	case format.KeyInt32:
		return format.Int32Value(int32(k.I64))
	case format.KeyInt64:
		return format.Int64Value(k.I64)
	case format.KeyUInt32:
		return format.Int64Value(int64(k.U32))
	case format.KeyString:
		return format.StringValue(k.Str)
	}
	return format.NullValue()
}

// SkipRow discards the prepared row.
func (it *RowIterator) SkipRow() {
	it.rowReady = false
}

// LivenessColumnExists reports whether the prepared row carried a liveness
// cell.
func (it *RowIterator) LivenessColumnExists() bool {
	if it.isFlat {
		return it.values[0].Valid()
	}
	child := it.row.GetChild(format.LivenessColumn)
	return child != nil && child.ValueType() != format.ValueInvalid
}

// GetTupleId returns the prepared row's DocKey with any cotable/colocation
// prefix stripped.
func (it *RowIterator) GetTupleId() []byte {
	return format.StripTupleIDPrefix(it.rowKey)
}

// SeekTuple repositions the scan at the row identified by tupleID,
// re-prepending the table prefix when the schema has one. It reports
// whether that exact row was found.
func (it *RowIterator) SeekTuple(tupleID []byte) (bool, error) {
	prefix := it.tableSchema.EncodedPrefix()
	if len(prefix) != 0 {
		if it.tupleKey == nil {
			it.tupleKey = make([]byte, 0, len(prefix)+len(tupleID))
			it.tupleKey = append(it.tupleKey, prefix...)
		} else {
			it.tupleKey = it.tupleKey[:len(prefix)]
		}
		it.tupleKey = append(it.tupleKey, tupleID...)
		it.iter.Seek(it.tupleKey)
	} else {
		it.iter.Seek(tupleID)
	}

	it.iterKey = it.iterKey[:0]
	it.rowReady = false

	ok, err := it.HasNext()
	if err != nil || !ok {
		return false, err
	}
	return bytes.Equal(it.GetTupleId(), tupleID), nil
}

// RestartReadHt passes through the iterator's read-restart signal.
func (it *RowIterator) RestartReadHt() format.HybridTime {
	return it.iter.RestartReadHt()
}

// MaxSeenHT passes through the highest write time the iterator observed.
func (it *RowIterator) MaxSeenHT() format.HybridTime {
	return it.iter.MaxSeenHT()
}

// hashedOrFirstRangeComponentsEqual reports whether two bounds address the
// same row prefix: equal hash parts when the keys are hashed, or an equal
// first range component otherwise.
func hashedOrFirstRangeComponentsEqual(lower, upper []byte) (bool, error) {
	// Bounds are often synthesized successors rather than well-formed
	// DocKeys; an undecodable bound just means "not a fixed-point get".
	lowerSizes, err := format.DecodeDocKeySizes(lower)
	if err != nil {
		return false, nil
	}
	upperSizes, err := format.DecodeDocKeySizes(upper)
	if err != nil {
		return false, nil
	}
	// Hash parts (prefix plus hashed group) equal: fixed point.
	if lowerSizes.HashPartSize != upperSizes.HashPartSize {
		return false, nil
	}
	if lowerSizes.HashPartSize > 0 &&
		!bytes.Equal(lower[:lowerSizes.HashPartSize], upper[:upperSizes.HashPartSize]) {
		return false, nil
	}
	if hasHashedGroup(lower) {
		return true, nil
	}
	// Range-only keys: compare the first range component.
	lowerFirst, err := firstRangeComponent(lower, lowerSizes.HashPartSize)
	if err != nil {
		return false, err
	}
	upperFirst, err := firstRangeComponent(upper, upperSizes.HashPartSize)
	if err != nil {
		return false, err
	}
	return len(lowerFirst) != 0 && bytes.Equal(lowerFirst, upperFirst), nil
}

func hasHashedGroup(key []byte) bool {
	pos := 0
	switch {
	case len(key) > 0 && format.KeyEntryType(key[0]) == format.KeyTableID:
		pos = 1 + format.TableIDSize
	case len(key) > 0 && format.KeyEntryType(key[0]) == format.KeyColocationID:
		pos = 1 + format.ColocationIDSize
	}
	return pos < len(key) && format.KeyEntryType(key[pos]) == format.KeyUInt16Hash
}

func firstRangeComponent(key []byte, from int) ([]byte, error) {
	rest := key[from:]
	if len(rest) == 0 || format.KeyEntryType(rest[0]) == format.KeyGroupEnd {
		return nil, nil
	}
	_, remainder, err := format.DecodeKeyEntryValue(rest)
	if err != nil {
		return nil, types.CorruptionWrap(err, "range component")
	}
	return rest[:len(rest)-len(remainder)], nil
}
