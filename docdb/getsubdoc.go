package docdb

import (
	"bytes"
	"time"

	"github.com/joshuapare/dockv/internal/packing"
)

// GetSubDocument reads the nested document under subDocKey at readTime.
// Returns (nil, false, nil) when no such document exists. projection may be
// nil to materialize every stored subkey.
func GetSubDocument(
	db DocDB, subDocKey []byte, projection ReaderProjection,
	deadline time.Time, readTime ReadHybridTime, packings *packing.Storage,
) (*SubDocument, bool, error) {
	iter := db.Store.NewIterator(IterOptions{
		BloomMode:        UseBloomFilter,
		UserKeyForFilter: subDocKey,
		Deadline:         deadline,
		ReadTime:         readTime,
	})

	iter.Seek(subDocKey)
	if iter.IsOutOfRecords() {
		return nil, false, nil
	}
	entry, err := iter.FetchKey()
	if err != nil {
		return nil, false, err
	}
	if !bytes.HasPrefix(entry.Key, subDocKey) {
		return nil, false, nil
	}

	reader := NewTableReader(iter, deadline, projection, YQLTableType, packings)
	tombstoneTime, err := GetTableTombstoneTime(db.Store, subDocKey, deadline, readTime)
	if err != nil {
		return nil, false, err
	}
	reader.UpdateTableTombstoneTime(tombstoneTime)

	result := NewSubDocument()
	found, err := reader.Get(subDocKey, result)
	if err != nil || !found {
		return nil, false, err
	}
	return result, true, nil
}
