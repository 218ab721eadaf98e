package docdb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/internal/memdb"
	"github.com/joshuapare/dockv/internal/packing"
	"github.com/joshuapare/dockv/pkg/types"
)

func getNested(
	t *testing.T, db *memdb.DB, schema *docdb.Schema, key []byte, read docdb.ReadHybridTime,
) (*docdb.SubDocument, bool) {
	t.Helper()
	reader, iter := newReader(db, testPackings(), docdb.YQLTableType, read, schema)
	iter.Seek(key)
	result := docdb.NewSubDocument()
	found, err := reader.Get(key, result)
	require.NoError(t, err)
	return result, found
}

func getFlat(
	t *testing.T, db *memdb.DB, schema *docdb.Schema, key []byte, read docdb.ReadHybridTime,
) ([]format.Value, bool) {
	t.Helper()
	reader, iter := newReader(db, testPackings(), docdb.PGSQLTableType, read, schema)
	iter.Seek(key)
	projection := docdb.MakeReaderProjection(schema)
	values := make([]format.Value, len(projection))
	found, err := reader.GetFlat(key, values)
	require.NoError(t, err)
	return values, found
}

// columnOf returns the nested result's cell for a column.
func columnOf(doc *docdb.SubDocument, id format.ColumnID) *docdb.SubDocument {
	return doc.GetChild(format.KeyEntryColumn(id))
}

// Scenario: a single packed row holds every column.
func TestReadSinglePackedRow(t *testing.T) {
	db := memdb.New()
	packings := testPackings()
	key := rowKey(42)
	putPackedRow(db, packings, key, ht(10), map[format.ColumnID]format.Value{
		colC1: format.StringValue("x"),
		colC2: format.Int64Value(7),
	})

	doc, found := getNested(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	require.NotNil(t, columnOf(doc, colC1))
	assert.Equal(t, "x", columnOf(doc, colC1).Scalar().Str)
	assert.EqualValues(t, 7, columnOf(doc, colC2).Scalar().I64)

	values, found := getFlat(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.Equal(t, "x", values[1].Str)
	assert.EqualValues(t, 7, values[2].I64)
}

// Scenario: a column-split record newer than the packed row overrides it;
// reads before the override still see the packed value.
func TestReadColumnOverridesPackedRow(t *testing.T) {
	db := memdb.New()
	packings := testPackings()
	key := rowKey(1)
	putPackedRow(db, packings, key, ht(10), map[format.ColumnID]format.Value{
		colC2: format.Int64Value(7),
	})
	putColumn(db, key, colC2, ht(15), format.Int64Value(99))

	doc, found := getNested(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.EqualValues(t, 99, columnOf(doc, colC2).Scalar().I64)

	doc, found = getNested(t, db, rangeSchema(), key, readAt(12))
	require.True(t, found)
	assert.EqualValues(t, 7, columnOf(doc, colC2).Scalar().I64)

	values, found := getFlat(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.EqualValues(t, 99, values[2].I64)

	values, found = getFlat(t, db, rangeSchema(), key, readAt(12))
	require.True(t, found)
	assert.EqualValues(t, 7, values[2].I64)
}

// An older column-split record must not override the packed row.
func TestReadPackedRowBeatsOlderColumn(t *testing.T) {
	db := memdb.New()
	packings := testPackings()
	key := rowKey(1)
	putColumn(db, key, colC2, ht(5), format.Int64Value(1))
	putPackedRow(db, packings, key, ht(10), map[format.ColumnID]format.Value{
		colC2: format.Int64Value(7),
	})

	doc, found := getNested(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.EqualValues(t, 7, columnOf(doc, colC2).Scalar().I64)
}

// Scenario: a row tombstone hides everything written before it.
func TestReadTombstone(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putColumn(db, key, colC1, ht(10), format.StringValue("x"))
	db.PutTombstone(key, ht(20))

	doc, found := getNested(t, db, rangeSchema(), key, readAt(15))
	require.True(t, found)
	assert.Equal(t, "x", columnOf(doc, colC1).Scalar().Str)

	_, found = getNested(t, db, rangeSchema(), key, readAt(25))
	assert.False(t, found)

	_, found = getFlat(t, db, rangeSchema(), key, readAt(25))
	assert.False(t, found)
}

// A write after the tombstone resurrects the row.
func TestReadWriteAfterTombstone(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putColumn(db, key, colC1, ht(10), format.StringValue("old"))
	db.PutTombstone(key, ht(20))
	putColumn(db, key, colC1, ht(30), format.StringValue("new"))

	doc, found := getNested(t, db, rangeSchema(), key, readAt(35))
	require.True(t, found)
	assert.Equal(t, "new", columnOf(doc, colC1).Scalar().Str)

	_, found = getNested(t, db, rangeSchema(), key, readAt(25))
	assert.False(t, found)
}

// Scenario: TTL expiry. A record written at 1s with a 1s TTL is visible at
// 1.5s and gone at 2.5s.
func TestReadTTLExpiry(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putLivenessTTL(db, key, ht(1_000_000), time.Second)
	putColumnTTL(db, key, colC1, ht(1_000_000), format.StringValue("x"), time.Second)

	doc, found := getNested(t, db, rangeSchema(), key, readAt(1_500_000))
	require.True(t, found)
	assert.Equal(t, "x", columnOf(doc, colC1).Scalar().Str)

	_, found = getNested(t, db, rangeSchema(), key, readAt(2_500_000))
	assert.False(t, found)
}

// A column TTL expires the cell but the row survives through its liveness
// marker.
func TestReadColumnTTLLeavesRowAlive(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putLiveness(db, key, ht(1_000_000))
	putColumnTTL(db, key, colC1, ht(1_000_000), format.StringValue("x"), time.Second)

	doc, found := getNested(t, db, rangeSchema(), key, readAt(3_000_000))
	require.True(t, found)
	c1 := columnOf(doc, colC1)
	if c1 != nil {
		assert.True(t, c1.Scalar().IsNull())
	}
}

// Flat (SQL) tables ignore TTL entirely.
func TestFlatReaderIgnoresTTL(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putLivenessTTL(db, key, ht(1_000_000), time.Second)
	putColumnTTL(db, key, colC1, ht(1_000_000), format.StringValue("x"), time.Second)

	values, found := getFlat(t, db, rangeSchema(), key, readAt(3_000_000))
	require.True(t, found)
	assert.Equal(t, "x", values[1].Str)
}

// A row with only a liveness marker exists with all-NULL columns.
func TestReadLivenessOnlyRow(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putLiveness(db, key, ht(10))

	doc, found := getNested(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	require.NotNil(t, columnOf(doc, colC1))
	assert.True(t, columnOf(doc, colC1).Scalar().IsNull())
	assert.True(t, columnOf(doc, colC2).Scalar().IsNull())

	values, found := getFlat(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.True(t, values[0].Valid())
	assert.True(t, values[1].IsNull())
}

// Empty projection acts as an existence probe.
func TestReadEmptyProjectionProbesExistence(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putLiveness(db, key, ht(10))

	probe := func(read docdb.ReadHybridTime) bool {
		iter := db.NewIterator(docdb.IterOptions{ReadTime: read})
		iter.Seek(key)
		reader := docdb.NewTableReader(iter, time.Time{}, docdb.ReaderProjection{},
			docdb.YQLTableType, testPackings())
		found, err := reader.Get(key, docdb.NewSubDocument())
		require.NoError(t, err)
		return found
	}
	assert.True(t, probe(readAt(20)))

	db.PutTombstone(key, ht(30))
	assert.True(t, probe(readAt(20)))
	assert.False(t, probe(readAt(40)))
}

// Table tombstone dominates older records of the colocated table.
func TestReadTableTombstone(t *testing.T) {
	db := memdb.New()
	prefix := format.AppendColocationPrefix(nil, 7)
	key := format.AppendDocKey(append([]byte(nil), prefix...), 0, nil,
		[]format.KeyEntryValue{format.KeyEntryInt64(1)})
	putColumn(db, key, colC1, ht(10), format.StringValue("x"))

	tombstoneKey := format.TableTombstoneKey(key)
	require.NotNil(t, tombstoneKey)
	db.PutTombstone(tombstoneKey, ht(20))

	read := readAt(30)
	tombstoneTime, err := docdb.GetTableTombstoneTime(db, key, time.Time{}, read)
	require.NoError(t, err)
	require.False(t, tombstoneTime.IsMin())

	iter := db.NewIterator(docdb.IterOptions{ReadTime: read})
	iter.Seek(key)
	reader := docdb.NewTableReader(iter, time.Time{},
		docdb.MakeReaderProjection(rangeSchema()), docdb.YQLTableType, testPackings())
	reader.UpdateTableTombstoneTime(tombstoneTime)
	result := docdb.NewSubDocument()
	found, err := reader.Get(key, result)
	require.NoError(t, err)
	assert.False(t, found)

	// Before the drop the row is visible; the tombstone lookup at that
	// read time finds nothing.
	earlier := readAt(15)
	tombstoneTime, err = docdb.GetTableTombstoneTime(db, key, time.Time{}, earlier)
	require.NoError(t, err)
	assert.True(t, tombstoneTime.IsMin())
}

// Packed/split equivalence: the same row content read through both physical
// encodings yields the same column values.
func TestPackedSplitEquivalence(t *testing.T) {
	packings := testPackings()

	packedDB := memdb.New()
	packedKey := rowKey(5)
	putPackedRow(packedDB, packings, packedKey, ht(10), map[format.ColumnID]format.Value{
		colC1: format.StringValue("same"),
		colC2: format.Int64Value(42),
	})

	splitDB := memdb.New()
	splitKey := rowKey(5)
	putLiveness(splitDB, splitKey, ht(10))
	putColumn(splitDB, splitKey, colC1, ht(10), format.StringValue("same"))
	putColumn(splitDB, splitKey, colC2, ht(10), format.Int64Value(42))

	packedValues, foundPacked := getFlat(t, packedDB, rangeSchema(), packedKey, readAt(20))
	splitValues, foundSplit := getFlat(t, splitDB, rangeSchema(), splitKey, readAt(20))
	require.True(t, foundPacked)
	require.True(t, foundSplit)
	// Skip the liveness slot; its presence differs by encoding detail.
	assert.Equal(t, packedValues[1:], splitValues[1:])

	packedDoc, _ := getNested(t, packedDB, rangeSchema(), packedKey, readAt(20))
	splitDoc, _ := getNested(t, splitDB, rangeSchema(), splitKey, readAt(20))
	assert.Equal(t,
		columnOf(packedDoc, colC1).Scalar(), columnOf(splitDoc, colC1).Scalar())
	assert.Equal(t,
		columnOf(packedDoc, colC2).Scalar(), columnOf(splitDoc, colC2).Scalar())
}

// Scenario: an already-expired deadline fails the scan on the first record
// check.
func TestReadDeadlineExceeded(t *testing.T) {
	db := memdb.New()
	key := rowKey(1)
	putColumn(db, key, colC1, ht(10), format.StringValue("x"))

	iter := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	iter.Seek(key)
	reader := docdb.NewTableReader(iter, time.Now().Add(-time.Second),
		docdb.MakeReaderProjection(rangeSchema()), docdb.YQLTableType, testPackings())
	_, err := reader.Get(key, docdb.NewSubDocument())
	require.Error(t, err)
	assert.True(t, types.IsDeadlineExceeded(err))
}

// The legacy intent hybrid time prefix on a packed column payload is
// stripped on the flat (SQL) path.
func TestFlatReaderStripsLegacyIntentTime(t *testing.T) {
	db := memdb.New()
	packings := testPackings()
	key := rowKey(1)

	p, err := packings.Get(1)
	require.NoError(t, err)
	buggy := format.AppendHybridTime(nil, ht(3))
	buggy = append(buggy, encodeValue(format.StringValue("x"))...)
	blob := packing.AppendPackedRow(nil, p, map[format.ColumnID][]byte{
		colC1: buggy,
	})
	db.PutRecord(key, ht(10), blob)

	values, found := getFlat(t, db, rangeSchema(), key, readAt(20))
	require.True(t, found)
	assert.Equal(t, "x", values[1].Str)
}

// GetSubDocument reads a nested document without a projection.
func TestGetSubDocumentNested(t *testing.T) {
	db := memdb.New()
	key := rowKey(9)
	mapCol := columnKey(key, colC1)
	entryKey := format.KeyEntryString("inner").AppendToKey(append([]byte(nil), mapCol...))
	db.PutRecord(mapCol, ht(10), encodeValue(format.ObjectValue()))
	db.PutRecord(entryKey, ht(11), encodeValue(format.Int64Value(5)))

	doc, found, err := docdb.GetSubDocument(
		docdb.DocDB{Store: db}, key, nil, time.Time{}, readAt(20), testPackings())
	require.NoError(t, err)
	require.True(t, found)
	c1 := columnOf(doc, colC1)
	require.NotNil(t, c1)
	inner := c1.GetChild(format.KeyEntryString("inner"))
	require.NotNil(t, inner)
	assert.EqualValues(t, 5, inner.Scalar().I64)

	_, found, err = docdb.GetSubDocument(
		docdb.DocDB{Store: db}, rowKey(10), nil, time.Time{}, readAt(20), testPackings())
	require.NoError(t, err)
	assert.False(t, found)
}

// A nested write at the parent invalidates older children.
func TestNestedParentOverwriteHidesOlderChildren(t *testing.T) {
	db := memdb.New()
	key := rowKey(3)
	mapCol := columnKey(key, colC1)
	oldEntry := format.KeyEntryString("a").AppendToKey(append([]byte(nil), mapCol...))
	newEntry := format.KeyEntryString("b").AppendToKey(append([]byte(nil), mapCol...))

	db.PutRecord(mapCol, ht(5), encodeValue(format.ObjectValue()))
	db.PutRecord(oldEntry, ht(6), encodeValue(format.Int64Value(1)))
	// Rewrite the whole map at t=10.
	db.PutRecord(mapCol, ht(10), encodeValue(format.ObjectValue()))
	db.PutRecord(newEntry, ht(11), encodeValue(format.Int64Value(2)))

	doc, found, err := docdb.GetSubDocument(
		docdb.DocDB{Store: db}, key, nil, time.Time{}, readAt(20), testPackings())
	require.NoError(t, err)
	require.True(t, found)
	c1 := columnOf(doc, colC1)
	require.NotNil(t, c1)
	assert.Nil(t, c1.GetChild(format.KeyEntryString("a")))
	require.NotNil(t, c1.GetChild(format.KeyEntryString("b")))
	assert.EqualValues(t, 2, c1.GetChild(format.KeyEntryString("b")).Scalar().I64)
}

func TestGetFlatRequiresProjection(t *testing.T) {
	db := memdb.New()
	iter := db.NewIterator(docdb.IterOptions{ReadTime: readAt(10)})
	reader := docdb.NewTableReader(iter, time.Time{}, nil, docdb.PGSQLTableType, testPackings())
	_, err := reader.GetFlat(rowKey(1), nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrKindInvalidArgument, kind)
}
