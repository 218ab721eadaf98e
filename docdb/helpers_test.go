package docdb_test

import (
	"time"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/internal/memdb"
	"github.com/joshuapare/dockv/internal/packing"
)

// Column ids shared by the test tables.
const (
	colK1 = format.ColumnID(1)
	colK2 = format.ColumnID(2)
	colC1 = format.ColumnID(10)
	colC2 = format.ColumnID(11)
)

// rangeSchema is a table keyed by one range column: k1, with value columns
// c1 (string) and c2 (int64).
func rangeSchema() *docdb.Schema {
	return &docdb.Schema{
		Columns: []docdb.ColumnSchema{
			{ID: colK1, Name: "k1", Type: format.ValueInt64},
			{ID: colC1, Name: "c1", Type: format.ValueString},
			{ID: colC2, Name: "c2", Type: format.ValueInt64},
		},
		RangeKeyColumns: 1,
	}
}

// hashSchema is keyed by one hashed column and one range column.
func hashSchema() *docdb.Schema {
	return &docdb.Schema{
		Columns: []docdb.ColumnSchema{
			{ID: colK1, Name: "h", Type: format.ValueInt64},
			{ID: colK2, Name: "r", Type: format.ValueString},
			{ID: colC1, Name: "c1", Type: format.ValueString},
		},
		HashKeyColumns:  1,
		RangeKeyColumns: 1,
	}
}

func rowKey(id int64) []byte {
	return format.AppendDocKey(nil, 0, nil, []format.KeyEntryValue{format.KeyEntryInt64(id)})
}

func hashRowKey(hash uint16, h int64, r string) []byte {
	return format.AppendDocKey(nil, hash,
		[]format.KeyEntryValue{format.KeyEntryInt64(h)},
		[]format.KeyEntryValue{format.KeyEntryString(r)})
}

func columnKey(docKey []byte, id format.ColumnID) []byte {
	return format.KeyEntryColumn(id).AppendToKey(append([]byte(nil), docKey...))
}

func livenessKey(docKey []byte) []byte {
	return format.LivenessColumn.AppendToKey(append([]byte(nil), docKey...))
}

func encodeValue(v format.Value) []byte {
	return format.AppendPrimitiveValue(nil, v)
}

func encodeValueTTL(v format.Value, ttl time.Duration) []byte {
	f := format.ValueControlFields{Timestamp: format.InvalidUserTimestamp, TTL: ttl}
	return format.AppendPrimitiveValue(f.AppendControlFields(nil), v)
}

func putColumn(db *memdb.DB, docKey []byte, id format.ColumnID, ht format.HybridTime, v format.Value) {
	db.PutRecord(columnKey(docKey, id), ht, encodeValue(v))
}

func putColumnTTL(
	db *memdb.DB, docKey []byte, id format.ColumnID, ht format.HybridTime,
	v format.Value, ttl time.Duration,
) {
	db.PutRecord(columnKey(docKey, id), ht, encodeValueTTL(v, ttl))
}

func putLiveness(db *memdb.DB, docKey []byte, ht format.HybridTime) {
	db.PutRecord(livenessKey(docKey), ht, encodeValue(format.NullValue()))
}

func putLivenessTTL(db *memdb.DB, docKey []byte, ht format.HybridTime, ttl time.Duration) {
	db.PutRecord(livenessKey(docKey), ht, encodeValueTTL(format.NullValue(), ttl))
}

// testPackings registers packing version 1 over (c1, c2).
func testPackings() *packing.Storage {
	s := packing.NewStorage()
	s.Register(packing.NewSchemaPacking(1, []format.ColumnID{colC1, colC2}))
	return s
}

func putPackedRow(
	db *memdb.DB, packings *packing.Storage, docKey []byte, ht format.HybridTime,
	values map[format.ColumnID]format.Value,
) {
	p, err := packings.Get(1)
	if err != nil {
		panic(err)
	}
	encoded := make(map[format.ColumnID][]byte, len(values))
	for id, v := range values {
		encoded[id] = encodeValue(v)
	}
	db.PutRecord(docKey, ht, packing.AppendPackedRow(nil, p, encoded))
}

func readAt(us uint64) docdb.ReadHybridTime {
	return docdb.ReadHybridTime{Read: format.HybridTimeFromMicros(us)}
}

func ht(us uint64) format.HybridTime {
	return format.HybridTimeFromMicros(us)
}

// newReader builds a TableReader over db for the given projection columns.
func newReader(
	db *memdb.DB, packings *packing.Storage, tableType docdb.TableType,
	read docdb.ReadHybridTime, schema *docdb.Schema,
) (*docdb.TableReader, docdb.IntentAwareIterator) {
	iter := db.NewIterator(docdb.IterOptions{ReadTime: read})
	projection := docdb.MakeReaderProjection(schema)
	reader := docdb.NewTableReader(iter, time.Time{}, projection, tableType, packings)
	return reader, iter
}
