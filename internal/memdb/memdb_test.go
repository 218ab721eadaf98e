package memdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
)

func key(id int64) []byte {
	return format.AppendDocKey(nil, 0, nil, []format.KeyEntryValue{format.KeyEntryInt64(id)})
}

func subkey(docKey []byte, col format.ColumnID) []byte {
	return format.KeyEntryColumn(col).AppendToKey(append([]byte(nil), docKey...))
}

func value(s string) []byte {
	return format.AppendPrimitiveValue(nil, format.StringValue(s))
}

func readAt(us uint64) docdb.ReadHybridTime {
	return docdb.ReadHybridTime{Read: format.HybridTimeFromMicros(us)}
}

func ht(us uint64) format.HybridTime {
	return format.HybridTimeFromMicros(us)
}

func TestIteratorSeesNewestVisibleVersion(t *testing.T) {
	db := New()
	k := subkey(key(1), 10)
	db.PutRecord(k, ht(5), value("old"))
	db.PutRecord(k, ht(10), value("new"))
	db.PutRecord(k, ht(30), value("future"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.Seek(nil)
	require.False(t, it.IsOutOfRecords())
	entry, err := it.FetchKey()
	require.NoError(t, err)
	assert.Equal(t, k, entry.Key)
	assert.Equal(t, ht(10), entry.WriteTime.Decode())
	assert.Equal(t, value("new"), it.Value())

	// The future version was observed while skipping.
	assert.Equal(t, ht(30), it.MaxSeenHT())
}

func TestSeekPastSubKeySkipsVersionsNotChildren(t *testing.T) {
	db := New()
	parent := subkey(key(1), 10)
	child := format.KeyEntryString("c").AppendToKey(append([]byte(nil), parent...))
	db.PutRecord(parent, ht(5), value("v1"))
	db.PutRecord(parent, ht(10), value("v2"))
	db.PutRecord(child, ht(7), value("child"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.Seek(parent)
	entry, err := it.FetchKey()
	require.NoError(t, err)
	require.Equal(t, parent, entry.Key)

	it.SeekPastSubKey(parent)
	require.False(t, it.IsOutOfRecords())
	entry, err = it.FetchKey()
	require.NoError(t, err)
	assert.Equal(t, child, entry.Key)
}

func TestSeekOutOfSubDocSkipsChildren(t *testing.T) {
	db := New()
	row1 := key(1)
	row2 := key(2)
	db.PutRecord(subkey(row1, 10), ht(5), value("a"))
	db.PutRecord(subkey(row1, 11), ht(5), value("b"))
	db.PutRecord(subkey(row2, 10), ht(5), value("c"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.Seek(row1)
	it.SeekOutOfSubDoc(row1)
	require.False(t, it.IsOutOfRecords())
	entry, err := it.FetchKey()
	require.NoError(t, err)
	assert.Equal(t, subkey(row2, 10), entry.Key)
}

func TestPrevDocKeyAndSeekToLast(t *testing.T) {
	db := New()
	for id := int64(1); id <= 3; id++ {
		db.PutRecord(subkey(key(id), 10), ht(5), value("v"))
		db.PutRecord(subkey(key(id), 11), ht(5), value("w"))
	}

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.SeekToLastDocKey()
	require.False(t, it.IsOutOfRecords())
	entry, err := it.FetchKey()
	require.NoError(t, err)
	// Positioned at the FIRST record of the LAST doc key.
	assert.Equal(t, subkey(key(3), 10), entry.Key)

	it.PrevDocKey(key(3))
	entry, err = it.FetchKey()
	require.NoError(t, err)
	assert.Equal(t, subkey(key(2), 10), entry.Key)

	it.PrevDocKey(key(1))
	assert.True(t, it.IsOutOfRecords())
}

func TestSeekForwardNeverMovesBack(t *testing.T) {
	db := New()
	db.PutRecord(subkey(key(1), 10), ht(5), value("a"))
	db.PutRecord(subkey(key(2), 10), ht(5), value("b"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.Seek(key(2))
	entry, err := it.FetchKey()
	require.NoError(t, err)
	require.Equal(t, subkey(key(2), 10), entry.Key)

	it.SeekForward(key(1))
	entry, err = it.FetchKey()
	require.NoError(t, err)
	assert.Equal(t, subkey(key(2), 10), entry.Key)
}

func TestPrefixAndUpperbound(t *testing.T) {
	db := New()
	db.PutRecord(subkey(key(1), 10), ht(5), value("a"))
	db.PutRecord(subkey(key(2), 10), ht(5), value("b"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it.SetPrefix(key(1))
	it.Seek(key(1))
	require.False(t, it.IsOutOfRecords())
	it.SeekOutOfSubDoc(key(1))
	assert.True(t, it.IsOutOfRecords())
	it.SetPrefix(nil)
	assert.False(t, it.IsOutOfRecords())

	it2 := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	it2.SetUpperbound(key(2))
	it2.Seek(key(1))
	require.False(t, it2.IsOutOfRecords())
	it2.SeekOutOfSubDoc(key(1))
	assert.True(t, it2.IsOutOfRecords())
}

func TestFindLatestRecord(t *testing.T) {
	db := New()
	k := key(1)
	db.PutRecord(k, ht(5), value("old"))
	db.PutRecord(k, ht(10), value("new"))
	db.PutRecord(subkey(k, 10), ht(7), value("column"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	wt, v, err := it.FindLatestRecord(k)
	require.NoError(t, err)
	assert.Equal(t, ht(10), wt.Decode())
	assert.Equal(t, value("new"), v)

	// No record at this exact key.
	wt, v, err = it.FindLatestRecord(key(9))
	require.NoError(t, err)
	assert.True(t, wt.IsMin())
	assert.Nil(t, v)
}

func TestSnapshotIsolation(t *testing.T) {
	db := New()
	db.PutRecord(subkey(key(1), 10), ht(5), value("a"))

	it := db.NewIterator(docdb.IterOptions{ReadTime: readAt(20)})
	db.PutRecord(subkey(key(0), 10), ht(6), value("before"))

	it.Seek(nil)
	entry, err := it.FetchKey()
	require.NoError(t, err)
	// The write after iterator creation is invisible to the snapshot.
	assert.Equal(t, subkey(key(1), 10), entry.Key)
}
