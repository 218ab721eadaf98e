package docdb

import (
	"strings"

	"github.com/joshuapare/dockv/internal/format"
)

// SubDocument is the nested result of a document read. A node is either a
// container (ValueObject with children keyed by subkey) or a leaf holding a
// decoded scalar. Freshly allocated children start out invalid; an invalid
// leaf reads as NULL.
type SubDocument struct {
	valueType format.ValueEntryType
	scalar    format.Value

	// Per-leaf read metadata.
	writeTimeMicros int64
	hasWriteTime    bool
	ttlSeconds      int64

	children map[string]*SubDocument
}

// NewSubDocument returns an empty container.
func NewSubDocument() *SubDocument {
	return &SubDocument{valueType: format.ValueObject, ttlSeconds: -1}
}

// ValueType returns the node's type tag. ValueInvalid means "allocated but
// never written".
func (d *SubDocument) ValueType() format.ValueEntryType {
	return d.valueType
}

// IsContainer reports whether the node holds children.
func (d *SubDocument) IsContainer() bool {
	return d.valueType == format.ValueObject
}

// Scalar returns the leaf value; NULL for invalid nodes.
func (d *SubDocument) Scalar() format.Value {
	if d.valueType == format.ValueInvalid || d.valueType == format.ValueTombstone {
		return format.NullValue()
	}
	return d.scalar
}

// SetScalar turns the node into a leaf holding v.
func (d *SubDocument) SetScalar(v format.Value) {
	d.valueType = v.Type
	d.scalar = v
	d.children = nil
}

// MarkTombstone records that the node's newest visible version is a delete.
func (d *SubDocument) MarkTombstone() {
	d.valueType = format.ValueTombstone
	d.children = nil
}

// SetWriteTime records the microsecond write time reported to the caller.
func (d *SubDocument) SetWriteTime(micros int64) {
	d.writeTimeMicros = micros
	d.hasWriteTime = true
}

// WriteTime returns the recorded write time and whether one was set.
func (d *SubDocument) WriteTime() (int64, bool) {
	return d.writeTimeMicros, d.hasWriteTime
}

// SetTTL records the remaining TTL seconds (-1 when no TTL applies).
func (d *SubDocument) SetTTL(seconds int64) {
	d.ttlSeconds = seconds
}

// TTL returns the remaining TTL seconds recorded for the node.
func (d *SubDocument) TTL() int64 {
	return d.ttlSeconds
}

// AllocateChild returns the child under subkey, creating an invalid node
// when absent. Allocating under a leaf upgrades it to a container.
func (d *SubDocument) AllocateChild(subkey format.KeyEntryValue) *SubDocument {
	if d.children == nil {
		d.children = make(map[string]*SubDocument)
		if d.valueType != format.ValueObject {
			d.valueType = format.ValueObject
			d.scalar = format.Value{}
		}
	}
	k := string(subkey.Encoded())
	if c, ok := d.children[k]; ok {
		return c
	}
	c := &SubDocument{valueType: format.ValueInvalid, ttlSeconds: -1}
	d.children[k] = c
	return c
}

// GetChild returns the child under subkey, or nil.
func (d *SubDocument) GetChild(subkey format.KeyEntryValue) *SubDocument {
	if d.children == nil {
		return nil
	}
	return d.children[string(subkey.Encoded())]
}

// DeleteChild removes the child under subkey.
func (d *SubDocument) DeleteChild(subkey format.KeyEntryValue) {
	delete(d.children, string(subkey.Encoded()))
}

// NumChildren returns the container's child count.
func (d *SubDocument) NumChildren() int {
	return len(d.children)
}

// ClearChildren drops all children, keeping the container type.
func (d *SubDocument) ClearChildren() {
	d.children = nil
}

func (d *SubDocument) String() string {
	if d == nil {
		return "<nil>"
	}
	if d.IsContainer() {
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		for k, c := range d.children {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			if v, _, err := format.DecodeKeyEntryValue([]byte(k)); err == nil {
				sb.WriteString(v.String())
			} else {
				sb.WriteString("?")
			}
			sb.WriteString(": ")
			sb.WriteString(c.String())
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return d.Scalar().String()
}
