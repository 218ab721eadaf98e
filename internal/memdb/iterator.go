package memdb

import (
	"bytes"

	"github.com/google/btree"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/pkg/types"
)

// iterator walks the snapshot's visible records: for each user key, the
// newest version at or before the read time. Invisible versions are skipped
// in place, which preserves the store's "versions sort newest-first"
// contract for the layers above.
type iterator struct {
	tree     *btree.BTreeG[record]
	readTime docdb.ReadHybridTime

	prefix     []byte
	upperbound []byte

	cur       record
	curUser   []byte
	curWrite  format.EncodedHybridTime
	valid     bool
	corrupted error

	maxSeen format.HybridTime
}

var _ docdb.IntentAwareIterator = (*iterator)(nil)

// seekVisible positions at the first visible record with full key >= target.
func (it *iterator) seekVisible(target []byte) {
	it.valid = false
	it.tree.AscendGreaterOrEqual(record{key: target}, func(r record) bool {
		userKey, writeTime, err := format.SplitRecordKey(r.key)
		if err != nil {
			it.corrupted = types.CorruptionWrap(err, "record key")
			return false
		}
		ht := writeTime.Decode()
		if ht > it.maxSeen {
			it.maxSeen = ht
		}
		if ht > it.readTime.Read {
			// Written after the read time: invisible to this
			// iterator, keep walking.
			return true
		}
		it.cur = r
		it.curUser = userKey
		it.curWrite = writeTime
		it.valid = true
		return false
	})
}

func (it *iterator) Seek(target []byte) {
	it.seekVisible(target)
}

func (it *iterator) SeekForward(target []byte) {
	if it.valid && bytes.Compare(it.cur.key, target) >= 0 {
		return
	}
	it.seekVisible(target)
}

func (it *iterator) SeekPastSubKey(userKey []byte) {
	it.seekVisible(format.SubKeySuccessor(userKey))
}

func (it *iterator) SeekOutOfSubDoc(userKey []byte) {
	succ := format.PrefixSuccessor(userKey)
	if succ == nil {
		it.valid = false
		return
	}
	it.seekVisible(succ)
}

func (it *iterator) SeekToLastDocKey() {
	last, ok := it.lastVisibleBefore(nil)
	if !ok {
		it.valid = false
		return
	}
	it.seekToRowOf(last)
}

func (it *iterator) PrevDocKey(key []byte) {
	last, ok := it.lastVisibleBefore(key)
	if !ok {
		it.valid = false
		return
	}
	it.seekToRowOf(last)
}

// lastVisibleBefore returns the user key of the last visible record below
// bound (or in the whole store when bound is nil).
func (it *iterator) lastVisibleBefore(bound []byte) ([]byte, bool) {
	var found []byte
	walk := func(r record) bool {
		userKey, writeTime, err := format.SplitRecordKey(r.key)
		if err != nil {
			it.corrupted = types.CorruptionWrap(err, "record key")
			return false
		}
		ht := writeTime.Decode()
		if ht > it.maxSeen {
			it.maxSeen = ht
		}
		if ht > it.readTime.Read {
			return true
		}
		found = userKey
		return false
	}
	if bound == nil {
		it.tree.Descend(walk)
	} else {
		it.tree.DescendLessOrEqual(record{key: bound}, walk)
	}
	return found, found != nil
}

// seekToRowOf positions at the first visible record of userKey's DocKey.
func (it *iterator) seekToRowOf(userKey []byte) {
	sizes, err := format.DecodeDocKeySizes(userKey)
	if err != nil {
		it.corrupted = types.CorruptionWrap(err, "doc key")
		it.valid = false
		return
	}
	it.seekVisible(userKey[:sizes.DocKeySize])
}

func (it *iterator) FetchKey() (docdb.FetchedEntry, error) {
	if it.corrupted != nil {
		return docdb.FetchedEntry{}, it.corrupted
	}
	if !it.valid {
		return docdb.FetchedEntry{}, types.Internalf("fetch on exhausted iterator")
	}
	return docdb.FetchedEntry{Key: it.curUser, WriteTime: it.curWrite}, nil
}

func (it *iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.cur.value
}

func (it *iterator) IsOutOfRecords() bool {
	if !it.valid || it.corrupted != nil {
		return true
	}
	if it.prefix != nil && !bytes.HasPrefix(it.curUser, it.prefix) {
		return true
	}
	if it.upperbound != nil && bytes.Compare(it.curUser, it.upperbound) >= 0 {
		return true
	}
	return false
}

func (it *iterator) SetUpperbound(upperbound []byte) {
	if upperbound == nil {
		it.upperbound = nil
		return
	}
	it.upperbound = append([]byte(nil), upperbound...)
}

func (it *iterator) SetPrefix(prefix []byte) {
	if prefix == nil {
		it.prefix = nil
		return
	}
	it.prefix = append([]byte(nil), prefix...)
}

func (it *iterator) FindLatestRecord(prefix []byte) (format.EncodedHybridTime, []byte, error) {
	var writeTime format.EncodedHybridTime
	var value []byte
	var failure error
	it.tree.AscendGreaterOrEqual(record{key: prefix}, func(r record) bool {
		userKey, wt, err := format.SplitRecordKey(r.key)
		if err != nil {
			failure = types.CorruptionWrap(err, "record key")
			return false
		}
		if !bytes.Equal(userKey, prefix) {
			return false
		}
		ht := wt.Decode()
		if ht > it.maxSeen {
			it.maxSeen = ht
		}
		if ht > it.readTime.Read {
			return true
		}
		writeTime = wt
		value = r.value
		return false
	})
	return writeTime, value, failure
}

func (it *iterator) ReadTime() docdb.ReadHybridTime {
	return it.readTime
}

func (it *iterator) RestartReadHt() format.HybridTime {
	// The snapshot holds no provisional records, so reads never need to
	// restart.
	return format.HybridTimeInvalid
}

func (it *iterator) MaxSeenHT() format.HybridTime {
	return it.maxSeen
}
