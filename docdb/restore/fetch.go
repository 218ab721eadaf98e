package restore

import (
	"bytes"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
	"github.com/joshuapare/dockv/pkg/types"
)

// keyWriteEntry is one level of the fetch stack: a key prefix (the doc key,
// or the doc key extended by subkey segments) and the most recent write time
// seen at that level.
type keyWriteEntry struct {
	key  []byte
	time format.EncodedHybridTime
}

// FetchState walks the visible records under a prefix, one entry per live
// subkey, skipping entries superseded by newer writes at an enclosing level.
// Hybrid times along the stack are nondecreasing: a write at a parent at
// time T invalidates all children older than T.
type FetchState struct {
	iter   docdb.IntentAwareIterator
	prefix []byte

	key       []byte
	writeTime format.EncodedHybridTime

	stack      []keyWriteEntry
	numRows    int
	lastRowKey []byte
	finished   bool
}

// NewFetchState wraps a fresh iterator over store at readTime. The state
// owns the iterator.
func NewFetchState(store docdb.Store, readTime docdb.ReadHybridTime) *FetchState {
	return &FetchState{
		iter: store.NewIterator(docdb.IterOptions{
			BloomMode: docdb.DontUseBloomFilter,
			ReadTime:  readTime,
		}),
	}
}

// SetPrefix scopes the cursor to keys under prefix and positions it at the
// first valid entry.
func (s *FetchState) SetPrefix(prefix []byte) error {
	s.prefix = append(s.prefix[:0], prefix...)
	s.stack = s.stack[:0]
	s.lastRowKey = s.lastRowKey[:0]
	s.finished = false
	s.iter.SetPrefix(s.prefix)
	s.iter.Seek(s.prefix)
	return s.next(false)
}

// Finished reports whether the stream is exhausted.
func (s *FetchState) Finished() bool {
	return s.finished
}

// Key returns the current entry's user key.
func (s *FetchState) Key() []byte {
	return s.key
}

// Value returns the current entry's encoded value.
func (s *FetchState) Value() []byte {
	return s.iter.Value()
}

// WriteTime returns the current entry's write time.
func (s *FetchState) WriteTime() format.EncodedHybridTime {
	return s.writeTime
}

// NumRows returns the number of distinct rows with at least one valid entry
// seen so far.
func (s *FetchState) NumRows() int {
	return s.numRows
}

// Next advances to the next valid entry.
func (s *FetchState) Next() error {
	return s.next(true)
}

func (s *FetchState) next(moveForward bool) error {
	for {
		if moveForward {
			s.iter.SeekPastSubKey(s.key)
		}
		moveForward = true
		if s.iter.IsOutOfRecords() {
			s.finished = true
			return nil
		}
		entry, err := s.iter.FetchKey()
		if err != nil {
			return err
		}
		s.key = entry.Key
		s.writeTime = entry.WriteTime

		ok, err := s.update()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// update folds the current record into the key/write stack and reports
// whether the entry is valid (not superseded, not a delete).
func (s *FetchState) update() (bool, error) {
	ends, err := keySegmentEnds(s.key)
	if err != nil {
		return false, types.CorruptionWrap(err, "fetched key")
	}

	// Pop levels that no longer prefix the key, keep the matching ones.
	keep := 0
	for keep < len(s.stack) && keep < len(ends) &&
		bytes.Equal(s.stack[keep].key, s.key[:ends[keep]]) {
		keep++
	}
	s.stack = s.stack[:keep]

	if keep > 0 && s.writeTime.Less(s.stack[keep-1].time) {
		// An enclosing level was rewritten after this record.
		return false, nil
	}
	for i := keep; i < len(ends); i++ {
		s.stack = append(s.stack, keyWriteEntry{
			key:  append([]byte(nil), s.key[:ends[i]]...),
			time: s.writeTime,
		})
	}

	tombstoned, err := format.IsTombstoned(s.iter.Value())
	if err != nil {
		return false, types.CorruptionWrap(err, "fetched value")
	}
	if tombstoned {
		// The delete itself is not an entry, but its time stays on the
		// stack so older children are invalidated.
		return false, nil
	}

	if !bytes.Equal(s.lastRowKey, s.key[:ends[0]]) {
		s.numRows++
		s.lastRowKey = append(s.lastRowKey[:0], s.key[:ends[0]]...)
	}
	return true, nil
}

// keySegmentEnds returns the end offsets of the key's nesting levels: the
// doc key, then each subkey segment.
func keySegmentEnds(key []byte) ([]int, error) {
	sizes, err := format.DecodeDocKeySizes(key)
	if err != nil {
		return nil, err
	}
	ends := []int{sizes.DocKeySize}
	rest := key[sizes.DocKeySize:]
	for len(rest) > 0 {
		_, remainder, err := format.DecodeKeyEntryValue(rest)
		if err != nil {
			return nil, err
		}
		rest = remainder
		ends = append(ends, len(key)-len(rest))
	}
	return ends, nil
}
