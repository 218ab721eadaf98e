// Package restore implements the dual-cursor diff engine of the snapshot
// restore path: two prefix-scoped record streams (the live state and the
// snapshot state) are aligned key by key, producing the minimal write batch
// that transforms one into the other.
package restore

import "github.com/joshuapare/dockv/internal/format"

// WriteOpKind tags one operation of a DocWriteBatch.
type WriteOpKind int

const (
	// WriteOpPut sets a key to a value.
	WriteOpPut WriteOpKind = iota
	// WriteOpDelete tombstones a key.
	WriteOpDelete
)

// WriteOp is one buffered write.
type WriteOp struct {
	Kind  WriteOpKind
	Key   []byte
	Value []byte
}

// DocWriteBatch buffers the writes a restore produces. Operations are
// applied in order at a single write time chosen by the caller.
type DocWriteBatch struct {
	ops []WriteOp
}

// Put buffers a set of key to value.
func (b *DocWriteBatch) Put(key, value []byte) {
	b.ops = append(b.ops, WriteOp{
		Kind:  WriteOpPut,
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
}

// Delete buffers a tombstone for key.
func (b *DocWriteBatch) Delete(key []byte) {
	b.ops = append(b.ops, WriteOp{
		Kind: WriteOpDelete,
		Key:  append([]byte(nil), key...),
	})
}

// Len returns the buffered operation count.
func (b *DocWriteBatch) Len() int {
	return len(b.ops)
}

// Ops returns the buffered operations in order.
func (b *DocWriteBatch) Ops() []WriteOp {
	return b.ops
}

// RecordWriter is the sink a batch applies to.
type RecordWriter interface {
	PutRecord(userKey []byte, ht format.HybridTime, value []byte)
}

// ApplyTo writes the batch into w at write time ht.
func (b *DocWriteBatch) ApplyTo(w RecordWriter, ht format.HybridTime) {
	for _, op := range b.ops {
		switch op.Kind {
		case WriteOpPut:
			w.PutRecord(op.Key, ht, op.Value)
		case WriteOpDelete:
			w.PutRecord(op.Key, ht, format.TombstoneValue())
		}
	}
}
