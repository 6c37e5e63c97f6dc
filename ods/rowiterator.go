package ods

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/xmlparse"
)

type iterState int

const (
	stateNotStarted iterState = iota
	stateBuffered
	stateExhausted
)

// dateValueLayouts are the office:date-value forms, with and without a time
// component.
var dateValueLayouts = []string{"2006-01-02T15:04:05", "2006-01-02"}

// rowIterator is the forward cursor over one table's rows.  Repeated rows
// arrive as one table-row element with a repeat count; non-empty ones are
// re-emitted that many times, while the trailing filler row spreadsheet
// applications pad the table with is emitted once instead of materialized.
type rowIterator struct {
	sheet *sheetMeta
	rc    io.ReadCloser
	c     *xmlparse.Cursor

	state iterState
	row   *spout.Row
	err   error

	preserve    bool
	formatDates bool

	stashed    xml.Token // lookahead token, replayed before the cursor
	repeatRow  *spout.Row
	repeatLeft int
}

func newRowIterator(sheet *sheetMeta) *rowIterator {
	return &rowIterator{
		sheet:       sheet,
		preserve:    sheet.r.opts.Bool(spout.OptionPreserveEmptyRows, false),
		formatDates: sheet.r.opts.Bool(spout.OptionFormatDates, false),
	}
}

// open positions a fresh cursor just inside this sheet's table element.
func (it *rowIterator) open() error {
	rc, err := it.sheet.r.archive.Entry(contentPath)
	if err != nil {
		return fmt.Errorf("ods: %w: reading %s: %v", spout.ErrMalformed, contentPath, err)
	}
	c := xmlparse.NewCursor(rc)

	seen := 0
	for {
		se, err := c.NextStart()
		if err != nil {
			rc.Close()
			return fmt.Errorf("ods: %w: table %d not found in %s", spout.ErrMalformed, it.sheet.index, contentPath)
		}
		if se.Name.Local != "table" {
			continue
		}
		if seen == it.sheet.index {
			break
		}
		seen++
		if err := c.Skip(); err != nil {
			rc.Close()
			return fmt.Errorf("ods: %w: parsing %s: %v", spout.ErrMalformed, contentPath, err)
		}
	}

	it.rc = rc
	it.c = c
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
	if err := it.advance(); err != nil {
		if err != io.EOF {
			it.err = err
		}
		it.state = stateExhausted
		return false
	}
	return true
}

func (it *rowIterator) Row() *spout.Row { return it.row }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error {
	it.state = stateExhausted
	if it.rc != nil {
		err := it.rc.Close()
		it.rc = nil
		if err != nil {
			return fmt.Errorf("ods: closing row cursor: %w", err)
		}
	}
	return nil
}

// next returns the stashed lookahead token if one is pending, otherwise the
// next cursor token.
func (it *rowIterator) next() (xml.Token, error) {
	if it.stashed != nil {
		tok := it.stashed
		it.stashed = nil
		return tok, nil
	}
	return it.c.Next()
}

// advance buffers the next row, returning io.EOF at the end of the table.
func (it *rowIterator) advance() error {
	if it.repeatLeft > 0 {
		it.repeatLeft--
		it.row = spout.NewRowFromValues(it.repeatRow.Values()...)
		return nil
	}

	for {
		tok, err := it.next()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "table" {
				return io.EOF
			}
		case xml.StartElement:
			if t.Name.Local != "table-row" {
				if err := it.c.Skip(); err != nil {
					return fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
				}
				continue
			}

			repeat := tableIntAttr(t, "number-rows-repeated", 1)
			row, err := it.decodeRow()
			if err != nil {
				return err
			}
			last, err := it.peekTableEnd()
			if err != nil {
				return err
			}

			if row.IsEmpty() && !it.preserve {
				continue
			}
			// The trailing repeated row is the application's filler, not
			// data; interior repeats are materialized.
			if !last && repeat > 1 {
				it.repeatRow = row
				it.repeatLeft = repeat - 1
			}
			it.row = row
			return nil
		}
	}
}

// peekTableEnd reports whether the next structural token closes the table,
// stashing whatever was read for the following advance.
func (it *rowIterator) peekTableEnd() (bool, error) {
	for {
		tok, err := it.next()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
		}
		if _, ok := tok.(xml.CharData); ok {
			continue
		}
		it.stashed = xml.CopyToken(tok)
		ee, ok := tok.(xml.EndElement)
		return ok && ee.Name.Local == "table", nil
	}
}

// cellGroup is one table-cell element plus its horizontal repeat count.
type cellGroup struct {
	value  any
	repeat int
}

// decodeRow consumes one table-row subtree into a Row.  The trailing cell
// group, when empty, is the column filler and collapses to a single cell.
func (it *rowIterator) decodeRow() (*spout.Row, error) {
	var groups []cellGroup
	for {
		tok, err := it.next()
		if err != nil {
			return nil, fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "table-row" {
				return buildRow(groups), nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "table-cell":
				repeat := tableIntAttr(t, "number-columns-repeated", 1)
				value, err := it.decodeCell(t)
				if err != nil {
					return nil, err
				}
				groups = append(groups, cellGroup{value: value, repeat: repeat})
			case "covered-table-cell":
				repeat := tableIntAttr(t, "number-columns-repeated", 1)
				if err := it.c.Skip(); err != nil {
					return nil, fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
				}
				groups = append(groups, cellGroup{repeat: repeat})
			default:
				if err := it.c.Skip(); err != nil {
					return nil, fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
				}
			}
		}
	}
}

func buildRow(groups []cellGroup) *spout.Row {
	row := spout.NewRow()
	for i, g := range groups {
		n := g.repeat
		if i == len(groups)-1 && isEmptyValue(g.value) {
			n = 1
		}
		for ; n > 0; n-- {
			row.AddCell(spout.NewCell(g.value))
		}
	}
	return row
}

func isEmptyValue(v any) bool { return v == nil || v == "" }

// decodeCell extracts the typed value of one table-cell element, consuming
// its whole subtree.
func (it *rowIterator) decodeCell(se xml.StartElement) (any, error) {
	valueType := officeAttr(se, "value-type")

	paras, err := it.collectParagraphs()
	if err != nil {
		return nil, fmt.Errorf("ods: %w: parsing table %q: %v", spout.ErrMalformed, it.sheet.name, err)
	}

	switch valueType {
	case "string":
		return strings.Join(paras, "\n"), nil
	case "float", "percentage":
		raw := officeAttr(se, "value")
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("ods: %w: invalid numeric value %q in table %q", spout.ErrMalformed, raw, it.sheet.name)
		}
		return f, nil
	case "currency":
		value := officeAttr(se, "value")
		if code := officeAttr(se, "currency"); code != "" {
			return value + " " + code, nil
		}
		return value, nil
	case "boolean":
		return officeAttr(se, "boolean-value") == "true", nil
	case "date":
		if it.formatDates {
			return firstPara(paras), nil
		}
		raw := officeAttr(se, "date-value")
		for _, layout := range dateValueLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("ods: %w: invalid date value %q in table %q", spout.ErrMalformed, raw, it.sheet.name)
	case "time":
		if it.formatDates {
			return firstPara(paras), nil
		}
		d, err := parseISODuration(officeAttr(se, "time-value"))
		if err != nil {
			return nil, fmt.Errorf("ods: %w: %v", spout.ErrMalformed, err)
		}
		return d, nil
	default: // "void" or untyped
		return nil, nil
	}
}

func firstPara(paras []string) string {
	if len(paras) == 0 {
		return ""
	}
	return paras[0]
}

// collectParagraphs walks a table-cell subtree and returns the text of each
// text:p child.  The whitespace elements s, tab and line-break expand to
// their literal runs; span and a contribute their nested text; anything
// else inside a paragraph (annotations and the like) is suppressed.
func (it *rowIterator) collectParagraphs() ([]string, error) {
	var paras []string
	var sb *strings.Builder
	depth := 1
	suppressBelow := -1

	for depth > 0 {
		tok, err := it.next()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if suppressBelow < 0 {
				switch t.Name.Local {
				case "p":
					sb = &strings.Builder{}
				case "s":
					if sb != nil {
						sb.WriteString(strings.Repeat(" ", tableIntAttr(t, "c", 1)))
					}
				case "tab":
					if sb != nil {
						sb.WriteByte('\t')
					}
				case "line-break":
					if sb != nil {
						sb.WriteByte('\n')
					}
				case "span", "a":
					// text flows through
				default:
					suppressBelow = depth
				}
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == suppressBelow {
				suppressBelow = -1
			}
			if suppressBelow < 0 && t.Name.Local == "p" && sb != nil {
				paras = append(paras, sb.String())
				sb = nil
			}
		case xml.CharData:
			if sb != nil && suppressBelow < 0 {
				sb.Write(t)
			}
		}
	}
	return paras, nil
}

// tableIntAttr reads an integer attribute by local name, tolerating junk by
// falling back to def.
func tableIntAttr(se xml.StartElement, local string, def int) int {
	raw := xmlparse.Attr(se, local)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
