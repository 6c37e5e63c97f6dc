package xlsx

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/ziputil"
)

// defaultDateFormat is applied to date cells whose style carries no format,
// so serial floats render as dates instead of bare numbers.
const defaultDateFormat = "m/d/yy h:mm"

const worksheetHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheetData>`

const worksheetFooter = `</sheetData></worksheet>`

// Writer streams rows into an XLSX archive.  Each sheet gets its own
// scratch file that rows are serialized to as they arrive; the archive is
// only assembled at Close.  Any failure mid-session aborts the whole write:
// scratch files and partial output are removed before the error propagates.
type Writer struct {
	path    string
	opts    *spout.Options
	log     *slog.Logger
	tempDir string

	registry *styleRegistry
	names    *spout.SheetNameRegistry
	strings  *stringTable

	sheets  []*writerSheet
	current *writerSheet

	inlineStrings   bool
	autoPaginate    bool
	use1904         bool
	defaultRowStyle *spout.Style

	closed bool
	err    error
}

type writerSheet struct {
	index    int
	name     string
	f        *os.File
	bw       *bufio.Writer
	rowCount int
}

// stringTable accumulates the shared strings of a write session,
// deduplicated, in first-use order.
type stringTable struct {
	ids   map[string]int
	list  []string
	total int // every reference, for the count attribute
}

func newStringTable() *stringTable {
	return &stringTable{ids: make(map[string]int)}
}

func (st *stringTable) add(s string) int {
	st.total++
	if id, ok := st.ids[s]; ok {
		return id
	}
	id := len(st.list)
	st.list = append(st.list, s)
	st.ids[s] = id
	return id
}

func writerSupportedOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionInlineStrings,
		spout.OptionAutoPaginate,
		spout.OptionUse1904Epoch,
		spout.OptionDefaultRowStyle,
		spout.OptionTempDir,
		spout.OptionLogger,
	)
}

// Create starts a write session targeting path, with a first sheet named
// "Sheet1" already open.
func Create(path string, opts ...spout.Option) (*Writer, error) {
	o := writerSupportedOptions()
	o.Apply(opts)

	tempDir, err := os.MkdirTemp(o.String(spout.OptionTempDir, ""), "spout-xlsx-")
	if err != nil {
		return nil, fmt.Errorf("xlsx: creating scratch directory: %w", err)
	}

	w := &Writer{
		path:          path,
		opts:          o,
		log:           o.Logger(),
		tempDir:       tempDir,
		registry:      newStyleRegistry(),
		names:         spout.NewSheetNameRegistry(),
		strings:       newStringTable(),
		inlineStrings: o.Bool(spout.OptionInlineStrings, false),
		autoPaginate:  o.Bool(spout.OptionAutoPaginate, true),
		use1904:       o.Bool(spout.OptionUse1904Epoch, false),
	}
	if v, ok := o.Get(spout.OptionDefaultRowStyle); ok {
		if style, ok := v.(*spout.Style); ok {
			w.defaultRowStyle = style
		}
	}

	if err := w.AddSheet(""); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	return w, nil
}

// AddSheet appends a sheet and makes it current.  An empty name picks the
// next free "SheetN" name.  Invalid or duplicate names fail with a
// *spout.SheetNameError listing every violated rule.
func (w *Writer) AddSheet(name string) error {
	if w.closed {
		return spout.ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}
	index := len(w.sheets)
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if err := w.names.Validate(name, index); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(w.tempDir, fmt.Sprintf("sheet%d.xml", index+1)))
	if err != nil {
		return w.abort(fmt.Errorf("xlsx: creating sheet scratch file: %w", err))
	}
	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(worksheetHeader); err != nil {
		f.Close()
		return w.abort(fmt.Errorf("xlsx: writing sheet header: %w", err))
	}

	w.names.Register(name, index)
	sheet := &writerSheet{index: index, name: name, f: f, bw: bw}
	w.sheets = append(w.sheets, sheet)
	w.current = sheet
	return nil
}

// SetCurrentSheet redirects subsequent rows to the sheet at the given
// 0-based index.  Writing resumes after the rows that sheet already holds.
func (w *Writer) SetCurrentSheet(index int) error {
	if w.closed {
		return spout.ErrWriterClosed
	}
	if index < 0 || index >= len(w.sheets) {
		return fmt.Errorf("xlsx: %w: sheet index %d", spout.ErrSheetNotFound, index)
	}
	w.current = w.sheets[index]
	return nil
}

// AddRow serializes one row to the current sheet.  At the sheet's row
// ceiling the writer either paginates to a fresh sheet or silently drops
// the row, per the auto-paginate option.
func (w *Writer) AddRow(row *spout.Row) error {
	if w.closed {
		return spout.ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}

	if w.current.rowCount >= MaxRowsPerSheet {
		if !w.autoPaginate {
			w.log.Debug("row ceiling reached, dropping row",
				"sheet", w.current.name, "ceiling", MaxRowsPerSheet)
			return nil
		}
		if err := w.AddSheet(""); err != nil {
			return err
		}
		w.log.Debug("row ceiling reached, paginated to new sheet", "sheet", w.current.name)
	}

	xmlRow, err := w.rowXML(row, w.current.rowCount+1)
	if err != nil {
		return w.abort(err)
	}
	if _, err := w.current.bw.WriteString(xmlRow); err != nil {
		return w.abort(fmt.Errorf("xlsx: writing row: %w", err))
	}
	w.current.rowCount++
	return nil
}

// AddRows serializes rows in order, stopping at the first failure.
func (w *Writer) AddRows(rows []*spout.Row) error {
	for _, row := range rows {
		if err := w.AddRow(row); err != nil {
			return err
		}
	}
	return nil
}

// rowXML renders one <row> fragment.  The row style sits under each cell's
// own style; the merged result is registered for a style ID.
func (w *Writer) rowXML(row *spout.Row, rowNum int) (string, error) {
	rowStyle := row.Style()
	if w.defaultRowStyle != nil {
		rowStyle = rowStyle.Merge(w.defaultRowStyle)
	}

	numCells := row.NumCells()
	var sb strings.Builder
	fmt.Fprintf(&sb, `<row r="%d">`, rowNum)
	for i := 0; i < numCells; i++ {
		cell := row.CellAt(i)
		if cell.IsError() {
			return "", fmt.Errorf("xlsx: cell %s%d: %w", colName(i), rowNum, spout.ErrUnsupportedValue)
		}
		style := w.effectiveStyle(cell, rowStyle)
		styleID := w.registry.register(style)
		if err := w.cellXML(&sb, cell, styleID, i, rowNum); err != nil {
			return "", err
		}
	}
	sb.WriteString(`</row>`)
	return sb.String(), nil
}

// effectiveStyle merges the row style under the cell style and fills in the
// adjustments serialization needs: wrapping for embedded newlines, a
// default date format for date cells that specify none.
func (w *Writer) effectiveStyle(cell *spout.Cell, rowStyle *spout.Style) *spout.Style {
	style := cell.Style().Merge(rowStyle)
	if s, ok := cell.Value().(string); ok && strings.Contains(s, "\n") && !style.HasWrapText() {
		style.SetShouldWrapText()
	}
	if cell.Type() == spout.CellTypeDate && !style.HasFormat() {
		style.SetFormat(defaultDateFormat)
	}
	return style
}

func (w *Writer) cellXML(sb *strings.Builder, cell *spout.Cell, styleID, col, rowNum int) error {
	ref := colName(col) + strconv.Itoa(rowNum)

	switch cell.Type() {
	case spout.CellTypeEmpty:
		// Unstyled empty cells are implicit; styled ones must be written so
		// the style shows.
		if styleID > 0 {
			fmt.Fprintf(sb, `<c r="%s" s="%d"/>`, ref, styleID)
		}
		return nil
	case spout.CellTypeBoolean:
		v := "0"
		if cell.Value().(bool) {
			v = "1"
		}
		fmt.Fprintf(sb, `<c r="%s" s="%d" t="b"><v>%s</v></c>`, ref, styleID, v)
		return nil
	case spout.CellTypeNumeric:
		fmt.Fprintf(sb, `<c r="%s" s="%d"><v>%s</v></c>`, ref, styleID, numericLiteral(cell.Value()))
		return nil
	case spout.CellTypeDate:
		var serial float64
		switch v := cell.Value().(type) {
		case time.Time:
			serial = spout.TimeToSerial(v, w.use1904)
		case time.Duration:
			serial = spout.DurationToSerial(v)
		}
		fmt.Fprintf(sb, `<c r="%s" s="%d"><v>%s</v></c>`, ref, styleID,
			strconv.FormatFloat(serial, 'f', -1, 64))
		return nil
	case spout.CellTypeString:
		s := cell.Value().(string)
		if len([]rune(s)) > MaxCharsPerCell {
			return fmt.Errorf("xlsx: cell %s: %w (%d characters)", ref, spout.ErrStringTooLong, len([]rune(s)))
		}
		if w.inlineStrings {
			fmt.Fprintf(sb, `<c r="%s" s="%d" t="inlineStr"><is><t xml:space="preserve">%s</t></is></c>`,
				ref, styleID, escapeXML(s))
		} else {
			fmt.Fprintf(sb, `<c r="%s" s="%d" t="s"><v>%d</v></c>`, ref, styleID, w.strings.add(s))
		}
		return nil
	default:
		return fmt.Errorf("xlsx: cell %s: %w", ref, spout.ErrUnsupportedValue)
	}
}

func numericLiteral(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	default:
		return fmt.Sprint(v)
	}
}

// abort tears the session down after an unrecoverable failure: scratch
// files are removed and no output file is produced.
func (w *Writer) abort(err error) error {
	w.err = err
	for _, sheet := range w.sheets {
		if sheet.f != nil {
			sheet.f.Close()
			sheet.f = nil
		}
	}
	os.RemoveAll(w.tempDir)
	return err
}

// Close finalizes every sheet and assembles the archive.  After a prior
// write failure Close releases what is left without reporting that failure
// again.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.err != nil {
		// abort already cleaned up
		return nil
	}
	defer os.RemoveAll(w.tempDir)

	for _, sheet := range w.sheets {
		if _, err := sheet.bw.WriteString(worksheetFooter); err != nil {
			return fmt.Errorf("xlsx: finalizing sheet %q: %w", sheet.name, err)
		}
		if err := sheet.bw.Flush(); err != nil {
			return fmt.Errorf("xlsx: finalizing sheet %q: %w", sheet.name, err)
		}
	}

	if err := w.assemble(); err != nil {
		os.Remove(w.path)
		return err
	}

	for _, sheet := range w.sheets {
		if err := sheet.f.Close(); err != nil {
			return fmt.Errorf("xlsx: closing scratch file: %w", err)
		}
		sheet.f = nil
	}
	return nil
}

// assemble writes the final archive from the structural parts and the
// per-sheet scratch files.
func (w *Writer) assemble() error {
	builder, err := ziputil.NewBuilder(w.path)
	if err != nil {
		return fmt.Errorf("xlsx: creating output: %w", err)
	}

	fail := func(err error) error {
		builder.Abort()
		return err
	}

	if err := builder.AddBytes("[Content_Types].xml", w.contentTypesXML()); err != nil {
		return fail(fmt.Errorf("xlsx: writing content types: %w", err))
	}
	if err := builder.AddBytes("_rels/.rels", []byte(rootRelsXML)); err != nil {
		return fail(fmt.Errorf("xlsx: writing root relationships: %w", err))
	}
	if err := builder.AddBytes(workbookPath, w.workbookXML()); err != nil {
		return fail(fmt.Errorf("xlsx: writing workbook: %w", err))
	}
	if err := builder.AddBytes(workbookRelsPath, w.workbookRelsXML()); err != nil {
		return fail(fmt.Errorf("xlsx: writing workbook relationships: %w", err))
	}
	if err := builder.AddBytes(stylesPath, w.registry.stylesXML()); err != nil {
		return fail(fmt.Errorf("xlsx: writing styles: %w", err))
	}
	if !w.inlineStrings {
		if err := builder.AddBytes(sharedStringsPath, w.sharedStringsXML()); err != nil {
			return fail(fmt.Errorf("xlsx: writing shared strings: %w", err))
		}
	}
	for _, sheet := range w.sheets {
		if _, err := sheet.f.Seek(0, 0); err != nil {
			return fail(fmt.Errorf("xlsx: rereading sheet %q: %w", sheet.name, err))
		}
		name := fmt.Sprintf("xl/worksheets/sheet%d.xml", sheet.index+1)
		if err := builder.AddFromReader(name, sheet.f); err != nil {
			return fail(fmt.Errorf("xlsx: writing sheet %q: %w", sheet.name, err))
		}
	}

	if err := builder.Close(); err != nil {
		return fmt.Errorf("xlsx: finalizing output: %w", err)
	}
	return nil
}

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
	`</Relationships>`

func (w *Writer) contentTypesXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	sb.WriteString(`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>`)
	sb.WriteString(`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>`)
	if !w.inlineStrings {
		sb.WriteString(`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>`)
	}
	for _, sheet := range w.sheets {
		fmt.Fprintf(&sb, `<Override PartName="/xl/worksheets/sheet%d.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>`,
			sheet.index+1)
	}
	sb.WriteString(`</Types>`)
	return []byte(sb.String())
}

func (w *Writer) workbookXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">`)
	if w.use1904 {
		sb.WriteString(`<workbookPr date1904="1"/>`)
	}
	sb.WriteString(`<sheets>`)
	for _, sheet := range w.sheets {
		fmt.Fprintf(&sb, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`,
			escapeXML(sheet.name), sheet.index+1, sheet.index+1)
	}
	sb.WriteString(`</sheets></workbook>`)
	return []byte(sb.String())
}

func (w *Writer) workbookRelsXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for _, sheet := range w.sheets {
		fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`,
			sheet.index+1, sheet.index+1)
	}
	fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`,
		len(w.sheets)+1)
	if !w.inlineStrings {
		fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings" Target="sharedStrings.xml"/>`,
			len(w.sheets)+2)
	}
	sb.WriteString(`</Relationships>`)
	return []byte(sb.String())
}

func (w *Writer) sharedStringsXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	fmt.Fprintf(&sb, `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`,
		w.strings.total, len(w.strings.list))
	for _, s := range w.strings.list {
		fmt.Fprintf(&sb, `<si><t xml:space="preserve">%s</t></si>`, escapeXML(s))
	}
	sb.WriteString(`</sst>`)
	return []byte(sb.String())
}
