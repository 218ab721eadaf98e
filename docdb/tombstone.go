package docdb

import (
	"time"

	"github.com/joshuapare/dockv/pkg/types"

	"github.com/joshuapare/dockv/internal/format"
)

// GetTableTombstoneTime looks up the table-level tombstone governing
// rootDocKey: colocated tables are dropped by writing one tombstone under
// the bare table prefix, which then dominates every older record of that
// table. Returns the zero time when the key is not colocated or no
// tombstone exists.
func GetTableTombstoneTime(
	store Store, rootDocKey []byte, deadline time.Time, readTime ReadHybridTime,
) (format.EncodedHybridTime, error) {
	tombstoneKey := format.TableTombstoneKey(rootDocKey)
	if tombstoneKey == nil {
		return format.EncodedHybridTime{}, nil
	}

	iter := store.NewIterator(IterOptions{
		BloomMode:        UseBloomFilter,
		UserKeyForFilter: tombstoneKey,
		Deadline:         deadline,
		ReadTime:         readTime,
	})
	iter.Seek(tombstoneKey)

	writeTime, value, err := iter.FindLatestRecord(tombstoneKey)
	if err != nil {
		return format.EncodedHybridTime{}, err
	}
	if len(value) == 0 {
		return format.EncodedHybridTime{}, nil
	}
	tombstoned, err := format.IsTombstoned(value)
	if err != nil {
		return format.EncodedHybridTime{}, types.CorruptionWrap(err, "table tombstone value")
	}
	if !tombstoned {
		return format.EncodedHybridTime{}, nil
	}
	if writeTime.IsMin() {
		return format.EncodedHybridTime{}, types.Corruptionf("invalid hybrid time for table tombstone")
	}
	return writeTime, nil
}
