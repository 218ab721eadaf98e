package docdb

import (
	"bytes"
	"sort"
	"time"

	"github.com/joshuapare/dockv/internal/format"
)

// TableType distinguishes the two table families served by the read path.
type TableType int

const (
	// YQLTableType tables may hold arbitrarily nested documents and honor
	// per-record TTL.
	YQLTableType TableType = iota
	// PGSQLTableType tables are flat (at most one subkey per record) and
	// ignore TTL.
	PGSQLTableType
)

// ColumnSchema describes one column.
type ColumnSchema struct {
	ID   format.ColumnID
	Name string
	Type format.ValueEntryType
}

// Schema describes a table (or a projection of one): key columns first
// (hashed, then range), value columns after.
type Schema struct {
	Columns         []ColumnSchema
	HashKeyColumns  int
	RangeKeyColumns int

	CotableID     *format.CotableID
	ColocationID  uint32
	HasColocation bool

	// TableTTL is the table-level default TTL; zero means the table has none
	// (see TableTTLOrMax).
	TableTTL time.Duration

	// KeyOffsets caches the encoded DocKey split points when every key
	// column has a fixed-size encoding. Nil otherwise.
	KeyOffsets *format.DocKeySizes
}

// NumKeyColumns returns the number of primary-key columns.
func (s *Schema) NumKeyColumns() int {
	return s.HashKeyColumns + s.RangeKeyColumns
}

// NumColumns returns the total column count.
func (s *Schema) NumColumns() int {
	return len(s.Columns)
}

// Column returns the i-th column.
func (s *Schema) Column(i int) ColumnSchema {
	return s.Columns[i]
}

// ColumnID returns the i-th column's id.
func (s *Schema) ColumnID(i int) format.ColumnID {
	return s.Columns[i].ID
}

// FindColumnByID returns the index of the column with the given id, or -1.
func (s *Schema) FindColumnByID(id format.ColumnID) int {
	for i := range s.Columns {
		if s.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// EncodedPrefix returns the encoded cotable/colocation prefix every DocKey
// of this table starts with; empty for plain tables.
func (s *Schema) EncodedPrefix() []byte {
	switch {
	case s.CotableID != nil:
		return format.AppendCotablePrefix(nil, *s.CotableID)
	case s.HasColocation:
		return format.AppendColocationPrefix(nil, s.ColocationID)
	}
	return nil
}

// DocKeyBelongsTo reports whether an encoded key belongs to this table's
// key space. Colocated tablets interleave several tables in one store, so a
// scan can run past its own table's rows.
func (s *Schema) DocKeyBelongsTo(key []byte) bool {
	prefix := s.EncodedPrefix()
	if len(prefix) > 0 {
		return bytes.HasPrefix(key, prefix)
	}
	if len(key) == 0 {
		return true
	}
	t := format.KeyEntryType(key[0])
	return t != format.KeyTableID && t != format.KeyColocationID
}

// TableTTLOrMax returns the table default TTL, MaxTTL when zero.
func (s *Schema) TableTTLOrMax() time.Duration {
	if s.TableTTL == 0 {
		return format.MaxTTL
	}
	return s.TableTTL
}

// ProjectedColumn is one entry of a reader projection: the encoded subkey to
// scan for and the type the caller expects back.
type ProjectedColumn struct {
	Subkey format.KeyEntryValue
	Type   format.ValueEntryType
}

// ReaderProjection is the ordered column list a TableReader materializes.
// Entries are sorted by encoded subkey so a forward scan visits them
// monotonically; index 0 is always the synthetic liveness column.
type ReaderProjection []ProjectedColumn

// MakeReaderProjection builds the reader projection for a projection
// schema: the liveness column plus the projection's value columns, sorted by
// subkey order.
func MakeReaderProjection(projection *Schema) ReaderProjection {
	out := make(ReaderProjection, 0, projection.NumColumns()-projection.NumKeyColumns()+1)
	out = append(out, ProjectedColumn{Subkey: format.LivenessColumn, Type: format.ValueNullLow})
	for i := projection.NumKeyColumns(); i < projection.NumColumns(); i++ {
		col := projection.Column(i)
		out = append(out, ProjectedColumn{
			Subkey: format.KeyEntryColumn(col.ID),
			Type:   col.Type,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Subkey.Encoded(), out[j].Subkey.Encoded()) < 0
	})
	return out
}
