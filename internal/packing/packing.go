// Package packing maps column ids to byte slices inside packed row blobs.
//
// A packed row stores every column written by one row-level write under a
// single record. The blob layout is a table of 4-byte little-endian end
// offsets, one per column of the packing descriptor, followed by the
// concatenated encoded column values. Which columns are present, and in what
// order, is fixed by the SchemaPacking registered for the blob's schema
// version.
package packing

import (
	"encoding/binary"
	"fmt"

	"github.com/joshuapare/dockv/internal/format"
)

// SchemaVersion identifies one registered packing layout.
type SchemaVersion uint32

// SchemaPacking is the immutable descriptor for one packed layout: the
// stored columns in blob order. It is shared by reference across readers.
type SchemaPacking struct {
	version SchemaVersion
	columns []format.ColumnID
	index   map[format.ColumnID]int
}

// NewSchemaPacking builds a descriptor for the given columns in blob order.
func NewSchemaPacking(version SchemaVersion, columns []format.ColumnID) *SchemaPacking {
	p := &SchemaPacking{
		version: version,
		columns: append([]format.ColumnID(nil), columns...),
		index:   make(map[format.ColumnID]int, len(columns)),
	}
	for i, id := range p.columns {
		p.index[id] = i
	}
	return p
}

// Version returns the packing's schema version.
func (p *SchemaPacking) Version() SchemaVersion {
	return p.version
}

// Columns returns the stored columns in blob order.
func (p *SchemaPacking) Columns() []format.ColumnID {
	return p.columns
}

// headerSize is the byte length of the end-offset table.
func (p *SchemaPacking) headerSize() int {
	return 4 * len(p.columns)
}

// GetValue returns the encoded value slice of column id inside blob, or
// (nil, false) when the column is not part of this packing. A present column
// with a zero-length slice is a stored NULL.
func (p *SchemaPacking) GetValue(id format.ColumnID, blob []byte) ([]byte, bool, error) {
	idx, ok := p.index[id]
	if !ok {
		return nil, false, nil
	}
	header := p.headerSize()
	if len(blob) < header {
		return nil, false, fmt.Errorf("packed row of %d bytes, need %d header bytes: %w",
			len(blob), header, format.ErrTruncated)
	}
	start := 0
	if idx > 0 {
		start = int(binary.LittleEndian.Uint32(blob[4*(idx-1):]))
	}
	end := int(binary.LittleEndian.Uint32(blob[4*idx:]))
	if start > end || header+end > len(blob) {
		return nil, false, fmt.Errorf("packed column %d spans [%d, %d) of %d: %w",
			id, start, end, len(blob)-header, format.ErrTruncated)
	}
	return blob[header+start : header+end], true, nil
}

// PackRow builds a blob for this packing. Columns absent from values are
// stored as zero-length slices (NULL).
func (p *SchemaPacking) PackRow(values map[format.ColumnID][]byte) []byte {
	header := p.headerSize()
	size := header
	for _, id := range p.columns {
		size += len(values[id])
	}
	blob := make([]byte, header, size)
	end := 0
	for i, id := range p.columns {
		end += len(values[id])
		binary.LittleEndian.PutUint32(blob[4*i:], uint32(end))
	}
	for _, id := range p.columns {
		blob = append(blob, values[id]...)
	}
	return blob
}
