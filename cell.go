package spout

import (
	"fmt"
	"time"
)

// CellType classifies the value held by a Cell.
type CellType int

const (
	// CellTypeEmpty marks a cell holding nil or the empty string.
	CellTypeEmpty CellType = iota
	// CellTypeBoolean marks a cell holding a bool.
	CellTypeBoolean
	// CellTypeNumeric marks a cell holding any integer or float value.
	CellTypeNumeric
	// CellTypeString marks a cell holding a non-empty string.
	CellTypeString
	// CellTypeDate marks a cell holding a time.Time or time.Duration value.
	CellTypeDate
	// CellTypeError marks a cell whose value shape is not supported.
	// Writers refuse to serialize such cells.
	CellTypeError
)

// String returns the lower-case name of the cell type.
func (t CellType) String() string {
	switch t {
	case CellTypeEmpty:
		return "empty"
	case CellTypeBoolean:
		return "boolean"
	case CellTypeNumeric:
		return "numeric"
	case CellTypeString:
		return "string"
	case CellTypeDate:
		return "date"
	case CellTypeError:
		return "error"
	}
	return fmt.Sprintf("CellType(%d)", int(t))
}

// Cell holds one raw value plus its derived type tag.  The tag is recomputed
// whenever the value is reset, so it can never drift out of sync with the
// value.  Construction never fails: unsupported value shapes degrade to
// CellTypeError instead of raising.
type Cell struct {
	value any
	typ   CellType
	style *Style
}

// NewCell builds a cell around value with no explicit style.
func NewCell(value any) *Cell {
	return &Cell{value: value, typ: ClassifyValue(value)}
}

// NewCellWithStyle builds a cell around value carrying the given style.
// A nil style is treated as the empty style.
func NewCellWithStyle(value any, style *Style) *Cell {
	c := NewCell(value)
	c.SetStyle(style)
	return c
}

// Value returns the cell value, or nil when the cell's type is
// CellTypeError.  Returning nil for error-typed cells prevents unsupported
// values from being silently written to an output document.
func (c *Cell) Value() any {
	if c.typ == CellTypeError {
		return nil
	}
	return c.value
}

// ValueEvenIfError returns the raw value regardless of the cell's type.
func (c *Cell) ValueEvenIfError() any { return c.value }

// SetValue replaces the cell value and recomputes the type tag.
func (c *Cell) SetValue(value any) {
	c.value = value
	c.typ = ClassifyValue(value)
}

// Type returns the cell's derived type tag.
func (c *Cell) Type() CellType { return c.typ }

// Style returns the cell style.  It is never nil: cells without an explicit
// style report the empty style.
func (c *Cell) Style() *Style {
	if c.style == nil {
		return NewStyle()
	}
	return c.style
}

// SetStyle attaches a style to the cell.  A nil style resets the cell to the
// empty style.
func (c *Cell) SetStyle(style *Style) {
	if style == nil {
		style = NewStyle()
	}
	c.style = style
}

// IsEmpty reports whether the cell's type is CellTypeEmpty.
func (c *Cell) IsEmpty() bool { return c.typ == CellTypeEmpty }

// IsError reports whether the cell's type is CellTypeError.
func (c *Cell) IsError() bool { return c.typ == CellTypeError }

// String renders the cell value with fmt.Sprint, or "" for error cells.
func (c *Cell) String() string {
	v := c.Value()
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ClassifyValue maps a raw value to its CellType.  The classification order
// is fixed: nil or "" → Empty; bool → Boolean; any integer or float type →
// Numeric; string → String; time.Time or time.Duration → Date; anything
// else → Error.  The function is total: it returns exactly one type for
// every possible value.
func ClassifyValue(value any) CellType {
	if value == nil {
		return CellTypeEmpty
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return CellTypeEmpty
		}
		return CellTypeString
	case bool:
		return CellTypeBoolean
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return CellTypeNumeric
	case time.Time, time.Duration:
		return CellTypeDate
	}
	return CellTypeError
}
