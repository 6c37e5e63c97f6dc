package xlsx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/xmlparse"
	"github.com/silecs/spout/numfmt"
)

type iterState int

const (
	stateNotStarted iterState = iota
	stateBuffered
	stateExhausted
)

// rowIterator is a forward cursor over one worksheet part.  It buffers one
// decoded row ahead; gap rows and gap cells are materialized as empty so
// callers always see dense output.
type rowIterator struct {
	sheet *sheetMeta
	entry io.ReadCloser
	cur   *xmlparse.Cursor

	state iterState
	row   *spout.Row
	err   error

	preserve    bool
	formatDates bool

	nextRowNum   int // 1-based row number the caller expects next
	pendingEmpty int
	stashed      *spout.Row
}

func newRowIterator(s *sheetMeta) *rowIterator {
	return &rowIterator{
		sheet:       s,
		preserve:    s.r.opts.Bool(spout.OptionPreserveEmptyRows, false),
		formatDates: s.r.opts.Bool(spout.OptionFormatDates, false),
		nextRowNum:  1,
	}
}

func (it *rowIterator) open() error {
	entry, err := it.sheet.r.archive.Entry(it.sheet.partPath)
	if err != nil {
		return fmt.Errorf("xlsx: %w: opening sheet part %s: %v",
			spout.ErrMalformed, it.sheet.partPath, err)
	}
	it.entry = entry
	it.cur = xmlparse.NewCursor(entry)
	return nil
}

func (it *rowIterator) Next() bool {
	switch it.state {
	case stateExhausted:
		return false
	case stateNotStarted:
		if err := it.open(); err != nil {
			it.err = err
			it.state = stateExhausted
			return false
		}
		it.state = stateBuffered
	}
	ok, err := it.advance()
	if err != nil {
		it.err = err
		it.state = stateExhausted
		return false
	}
	if !ok {
		it.state = stateExhausted
	}
	return ok
}

func (it *rowIterator) Row() *spout.Row { return it.row }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error {
	it.state = stateExhausted
	if it.entry == nil {
		return nil
	}
	entry := it.entry
	it.entry = nil
	if err := entry.Close(); err != nil {
		return fmt.Errorf("xlsx: closing sheet part: %w", err)
	}
	return nil
}

func (it *rowIterator) advance() (bool, error) {
	for {
		if it.pendingEmpty > 0 {
			it.pendingEmpty--
			it.row = spout.NewRow()
			return true, nil
		}
		if it.stashed != nil {
			it.row = it.stashed
			it.stashed = nil
			return true, nil
		}

		se, err := it.nextRowStart()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("xlsx: %w: parsing sheet %s: %v",
				spout.ErrMalformed, it.sheet.partPath, err)
		}

		rowNum := it.nextRowNum
		if v := xmlparse.Attr(se, "r"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				rowNum = n
			}
		}

		row, err := it.decodeRow()
		if err != nil {
			return false, fmt.Errorf("xlsx: %w: parsing sheet %s: %v",
				spout.ErrMalformed, it.sheet.partPath, err)
		}

		if it.preserve && rowNum > it.nextRowNum {
			it.pendingEmpty = rowNum - it.nextRowNum
			it.stashed = row
			it.nextRowNum = rowNum + 1
			continue
		}
		it.nextRowNum = rowNum + 1

		if !it.preserve && row.IsEmpty() {
			continue
		}
		it.row = row
		return true, nil
	}
}

// nextRowStart advances to the next <row> start element, returning io.EOF
// at the end of the sheet data.
func (it *rowIterator) nextRowStart() (xml.StartElement, error) {
	for {
		tok, err := it.cur.Next()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := xmlparse.IsStart(tok, "row"); ok {
			return se, nil
		}
		if xmlparse.IsEnd(tok, "sheetData") {
			return xml.StartElement{}, io.EOF
		}
	}
}

// decodeRow consumes one <row> subtree into a dense Row.  Cells carrying an
// explicit reference fill any column gap since the previous cell with empty
// cells.
func (it *rowIterator) decodeRow() (*spout.Row, error) {
	row := spout.NewRow()
	nextCol := 0
	for {
		tok, err := it.cur.Next()
		if err != nil {
			return nil, err
		}
		if xmlparse.IsEnd(tok, "row") {
			return row, nil
		}
		se, ok := xmlparse.IsStart(tok, "c")
		if !ok {
			continue
		}

		col := nextCol
		if ref := xmlparse.Attr(se, "r"); ref != "" {
			if c, _, err := parseCellRef(ref); err == nil {
				col = c
			}
		}

		cell, err := it.decodeCell(se)
		if err != nil {
			return nil, err
		}
		row.SetCellAt(cell, col)
		nextCol = col + 1
	}
}

// decodeCell resolves one <c> subtree into a Cell, honoring the declared
// cell type.  Formulas are skipped, never evaluated; only cached values
// surface.
func (it *rowIterator) decodeCell(se xml.StartElement) (*spout.Cell, error) {
	typ := xmlparse.Attr(se, "t")
	styleID := 0
	if v := xmlparse.Attr(se, "s"); v != "" {
		styleID, _ = strconv.Atoi(v)
	}

	var rawValue string
	var inline string
	hasValue := false
	depth := 1
	for depth > 0 {
		tok, err := it.cur.Next()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "v":
				s, err := it.cur.CollectText()
				if err != nil {
					return nil, err
				}
				rawValue = s
				hasValue = true
			case "is":
				s, err := it.cur.CollectText()
				if err != nil {
					return nil, err
				}
				inline = s
				hasValue = true
			case "f":
				if err := it.cur.Skip(); err != nil {
					return nil, err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}

	if !hasValue {
		return spout.NewCell(nil), nil
	}

	switch typ {
	case "s":
		idx, err := strconv.Atoi(rawValue)
		if err != nil {
			return nil, fmt.Errorf("shared string reference %q: %w", rawValue, err)
		}
		s, err := it.sheet.r.sst.get(idx)
		if err != nil {
			return nil, err
		}
		return spout.NewCell(s), nil
	case "inlineStr":
		return spout.NewCell(inline), nil
	case "b":
		return spout.NewCell(rawValue == "1"), nil
	case "e", "str":
		return spout.NewCell(rawValue), nil
	default:
		return it.numericCell(rawValue, styleID)
	}
}

// numericCell turns a raw numeric literal into a Numeric cell, or a Date
// cell when the style's number format is a date/time one.
func (it *rowIterator) numericCell(raw string, styleID int) (*spout.Cell, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("numeric cell value %q: %w", raw, err)
	}
	r := it.sheet.r
	if !r.styles.isDateStyle(styleID) {
		return spout.NewCell(f), nil
	}
	if it.formatDates {
		fmtID, fmtStr := r.styles.formatFor(styleID)
		return spout.NewCell(numfmt.FormatValue(f, fmtID, fmtStr, r.date1904)), nil
	}
	t, err := spout.SerialToTime(f, r.date1904)
	if err != nil {
		return nil, fmt.Errorf("date cell: %w", err)
	}
	return spout.NewCell(t), nil
}
