package spout

// Row is an ordered, sparse-capable mapping from column index to Cell.
// Cells may be set at arbitrary indices, leaving holes; NumCells always
// reports max(used index)+1 rather than the count of set cells, which is
// what preserves column alignment in formats with implicit trailing empties.
type Row struct {
	cells []*Cell // nil entries are holes
	style *Style
}

// NewRow builds a row from the given cells, in order, with no row style.
func NewRow(cells ...*Cell) *Row {
	r := &Row{}
	r.SetCells(cells)
	return r
}

// NewRowFromValues builds a row whose cells wrap the given raw values.
func NewRowFromValues(values ...any) *Row {
	cells := make([]*Cell, len(values))
	for i, v := range values {
		cells[i] = NewCell(v)
	}
	return NewRow(cells...)
}

// SetCells replaces the row's cells wholesale.  Prior cells, including any
// holes, are discarded.
func (r *Row) SetCells(cells []*Cell) *Row {
	r.cells = make([]*Cell, 0, len(cells))
	for _, c := range cells {
		r.AddCell(c)
	}
	return r
}

// AddCell appends a cell after the last used index.
func (r *Row) AddCell(cell *Cell) *Row {
	r.cells = append(r.cells, cell)
	return r
}

// SetCellAt places a cell at the given column index, growing the row and
// leaving nil holes for any skipped indices.  Negative indices are ignored.
func (r *Row) SetCellAt(cell *Cell, index int) *Row {
	if index < 0 {
		return r
	}
	for len(r.cells) <= index {
		r.cells = append(r.cells, nil)
	}
	r.cells[index] = cell
	return r
}

// CellAt returns the cell at the given index.  Holes and indices past the
// last used column yield an empty-typed cell, never an error: callers can
// iterate [0, NumCells()) without nil checks.
func (r *Row) CellAt(index int) *Cell {
	if index < 0 || index >= len(r.cells) || r.cells[index] == nil {
		return NewCell(nil)
	}
	return r.cells[index]
}

// NumCells returns max(used index)+1, counting holes, or 0 for a row with no
// cells at all.
func (r *Row) NumCells() int { return len(r.cells) }

// Style returns the row style, never nil.
func (r *Row) Style() *Style {
	if r.style == nil {
		return NewStyle()
	}
	return r.style
}

// SetStyle replaces the row style.  A nil style resets to the empty style.
func (r *Row) SetStyle(style *Style) *Row {
	if style == nil {
		style = NewStyle()
	}
	r.style = style
	return r
}

// Values flattens the row into raw values, one per column including holes
// (reported as nil) up to NumCells.  Error-typed cells flatten to nil,
// matching Cell.Value.
func (r *Row) Values() []any {
	out := make([]any, len(r.cells))
	for i := range r.cells {
		out[i] = r.CellAt(i).Value()
	}
	return out
}

// IsEmpty reports whether every cell in the row is empty-typed.  A row with
// zero cells is empty.
func (r *Row) IsEmpty() bool {
	for i := range r.cells {
		if !r.CellAt(i).IsEmpty() {
			return false
		}
	}
	return true
}
