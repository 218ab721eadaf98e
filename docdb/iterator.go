package docdb

import (
	"time"

	"github.com/joshuapare/dockv/internal/format"
)

// ReadHybridTime is the timestamp a read operates at. Records with a write
// time past Read are invisible to the operation.
type ReadHybridTime struct {
	Read format.HybridTime
}

// FetchedEntry is the current record of an intent-aware iterator: the user
// key (hybrid time suffix stripped) and the record's write time.
type FetchedEntry struct {
	Key       []byte
	WriteTime format.EncodedHybridTime
}

// BloomFilterMode selects whether point-lookup bloom filters may prune
// storage files for an iterator. Range scans must not use them: a file
// without the seek key may still hold keys inside the range.
type BloomFilterMode int

const (
	DontUseBloomFilter BloomFilterMode = iota
	UseBloomFilter
)

// IterOptions configures one intent-aware iterator.
type IterOptions struct {
	BloomMode BloomFilterMode
	// UserKeyForFilter is the point-lookup key when BloomMode is
	// UseBloomFilter.
	UserKeyForFilter []byte
	QueryID          uint64
	Deadline         time.Time
	ReadTime         ReadHybridTime
}

// IntentAwareIterator is the low-level cursor the read path drives. It
// merges committed records with provisional records of open transactions and
// presents, for each user key, its versions newest-first.
//
// All Seek* calls position the iterator at the first visible record at or
// after the target (in iteration order); FetchKey and Value read the current
// record without moving.
type IntentAwareIterator interface {
	// Seek positions at the first record with key >= target.
	Seek(target []byte)
	// SeekForward is Seek that never moves the iterator backwards.
	SeekForward(target []byte)
	// SeekPastSubKey skips the remaining (older) versions of userKey
	// without skipping its children.
	SeekPastSubKey(userKey []byte)
	// SeekOutOfSubDoc skips every record prefixed by userKey, children
	// included.
	SeekOutOfSubDoc(userKey []byte)
	// SeekToLastDocKey positions at the first record of the last DocKey
	// in the store.
	SeekToLastDocKey()
	// PrevDocKey positions at the first record of the DocKey preceding
	// key.
	PrevDocKey(key []byte)

	// FetchKey returns the current record's user key and write time.
	FetchKey() (FetchedEntry, error)
	// Value returns the current record's encoded value. The slice is
	// only valid until the iterator moves.
	Value() []byte
	// IsOutOfRecords reports whether the cursor has left the scoped
	// range (prefix, upper bound, or the store's end).
	IsOutOfRecords() bool

	// SetUpperbound restricts the iterator to keys below upperbound
	// (exclusive). Nil removes the bound.
	SetUpperbound(upperbound []byte)
	// SetPrefix restricts the iterator to keys having the prefix. Nil
	// removes the restriction.
	SetPrefix(prefix []byte)

	// FindLatestRecord returns the write time and value of the newest
	// visible record whose user key equals prefix exactly, or a zero
	// write time when none exists.
	FindLatestRecord(prefix []byte) (format.EncodedHybridTime, []byte, error)

	// ReadTime returns the read time the iterator was built with.
	ReadTime() ReadHybridTime
	// RestartReadHt returns the time a caller should restart the read
	// at after observing records in the uncertainty window, or an
	// invalid time when no restart is needed.
	RestartReadHt() format.HybridTime
	// MaxSeenHT returns the highest write time the iterator has
	// observed, visible or not.
	MaxSeenHT() format.HybridTime
}

// Store creates intent-aware iterators. It is the boundary to the sorted
// key/value store and its provisional-record overlay.
type Store interface {
	NewIterator(opts IterOptions) IntentAwareIterator
}

// RetentionPolicy exposes the history cutoff used to classify obsolete keys
// that compaction could already have removed.
type RetentionPolicy interface {
	ProposedHistoryCutoff() format.HybridTime
}

// DocDB bundles the store handle with its optional policies. The caller
// owns it; iterators and readers borrow it.
type DocDB struct {
	Store     Store
	Retention RetentionPolicy
	Metrics   *Metrics
}
