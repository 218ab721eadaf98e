// Package memdb provides an in-memory sorted record store implementing the
// intent-aware iterator surface of the read path. It backs the package
// tests; the production store lives behind the same interfaces.
package memdb

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/joshuapare/dockv/docdb"
	"github.com/joshuapare/dockv/internal/format"
)

type record struct {
	key   []byte // full record key: user key plus hybrid time suffix
	value []byte
}

// DB is a sorted map of full record keys to values. Writers and readers may
// run concurrently; iterators operate on a copy-on-write snapshot taken at
// creation.
type DB struct {
	mu   sync.Mutex
	tree *btree.BTreeG[record]
}

// New returns an empty store.
func New() *DB {
	return &DB{tree: btree.NewG(32, func(a, b record) bool {
		return bytes.Compare(a.key, b.key) < 0
	})}
}

// PutRecord stores value under userKey at write time ht.
func (db *DB) PutRecord(userKey []byte, ht format.HybridTime, value []byte) {
	recordKey := format.AppendHybridTime(append([]byte(nil), userKey...), ht)
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tree.ReplaceOrInsert(record{key: recordKey, value: append([]byte(nil), value...)})
}

// PutTombstone stores a deletion marker under userKey at write time ht.
func (db *DB) PutTombstone(userKey []byte, ht format.HybridTime) {
	db.PutRecord(userKey, ht, format.TombstoneValue())
}

// Len returns the stored record count, all versions included.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tree.Len()
}

// AscendRecords visits every record in key order until fn returns false.
func (db *DB) AscendRecords(fn func(recordKey, value []byte) bool) {
	db.snapshot().Ascend(func(r record) bool {
		return fn(r.key, r.value)
	})
}

func (db *DB) snapshot() *btree.BTreeG[record] {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tree.Clone()
}

// NewIterator implements docdb.Store.
func (db *DB) NewIterator(opts docdb.IterOptions) docdb.IntentAwareIterator {
	return &iterator{
		tree:     db.snapshot(),
		readTime: opts.ReadTime,
	}
}
