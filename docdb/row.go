package docdb

import "github.com/joshuapare/dockv/internal/format"

// RowCell is one materialized column of a row.
type RowCell struct {
	Value           format.Value
	TTLSeconds      int64
	WriteTimeMicros int64
	HasWriteTime    bool
}

// TableRow is a materialized row keyed by column id. Primary-key columns are
// filled from the DocKey; value columns from the reader's output.
type TableRow struct {
	cells map[format.ColumnID]*RowCell
}

// NewTableRow returns an empty row.
func NewTableRow() *TableRow {
	return &TableRow{cells: make(map[format.ColumnID]*RowCell)}
}

// AllocColumn returns the cell for id, creating it when absent.
func (r *TableRow) AllocColumn(id format.ColumnID) *RowCell {
	if c, ok := r.cells[id]; ok {
		return c
	}
	c := &RowCell{Value: format.NullValue(), TTLSeconds: -1}
	r.cells[id] = c
	return c
}

// Column returns the cell for id if the row has one.
func (r *TableRow) Column(id format.ColumnID) (*RowCell, bool) {
	c, ok := r.cells[id]
	return c, ok
}

// Len returns the number of materialized cells.
func (r *TableRow) Len() int {
	return len(r.cells)
}

// Clear empties the row for reuse across iterations.
func (r *TableRow) Clear() {
	for k := range r.cells {
		delete(r.cells, k)
	}
}
