package ods

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/ziputil"
)

// dateDisplayFormat is the text rendered into a date cell's paragraph, the
// value consumers show without consulting the data style.
const dateDisplayFormat = "02/01/2006 15:04"

// Writer streams rows into an ODS archive.  Each sheet gets a scratch file
// holding its table-row fragments; Close splices them between the
// structural sections of content.xml.  Runs of consecutive cells holding
// the same value collapse into one element with a repeat count, the
// format's own compression for uniform rows.
type Writer struct {
	path    string
	opts    *spout.Options
	log     *slog.Logger
	tempDir string

	registry *styleRegistry
	names    *spout.SheetNameRegistry

	sheets  []*writerSheet
	current *writerSheet

	autoPaginate    bool
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
	maxCols  int
}

func writerSupportedOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionAutoPaginate,
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

	tempDir, err := os.MkdirTemp(o.String(spout.OptionTempDir, ""), "spout-ods-")
	if err != nil {
		return nil, fmt.Errorf("ods: creating scratch directory: %w", err)
	}

	w := &Writer{
		path:         path,
		opts:         o,
		log:          o.Logger(),
		tempDir:      tempDir,
		registry:     newStyleRegistry(),
		names:        spout.NewSheetNameRegistry(),
		autoPaginate: o.Bool(spout.OptionAutoPaginate, true),
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

	f, err := os.Create(filepath.Join(w.tempDir, fmt.Sprintf("table%d.xml", index+1)))
	if err != nil {
		return w.abort(fmt.Errorf("ods: creating sheet scratch file: %w", err))
	}

	w.names.Register(name, index)
	sheet := &writerSheet{index: index, name: name, f: f, bw: bufio.NewWriter(f)}
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
		return fmt.Errorf("ods: %w: sheet index %d", spout.ErrSheetNotFound, index)
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

	xmlRow, err := w.rowXML(row)
	if err != nil {
		return w.abort(err)
	}
	if _, err := w.current.bw.WriteString(xmlRow); err != nil {
		return w.abort(fmt.Errorf("ods: writing row: %w", err))
	}
	w.current.rowCount++
	if n := row.NumCells(); n > w.current.maxCols {
		w.current.maxCols = n
	}
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

// rowXML renders one table-row fragment.  Consecutive cells with the same
// value become one cell element repeated; the run takes the first cell's
// style.
func (w *Writer) rowXML(row *spout.Row) (string, error) {
	rowStyle := row.Style()
	if w.defaultRowStyle != nil {
		rowStyle = rowStyle.Merge(w.defaultRowStyle)
	}

	numCells := row.NumCells()
	var sb strings.Builder
	sb.WriteString(`<table:table-row table:style-name="ro1">`)
	for i := 0; i < numCells; {
		cell := row.CellAt(i)
		if cell.IsError() {
			return "", fmt.Errorf("ods: cell %d of row %d: %w",
				i, w.current.rowCount+1, spout.ErrUnsupportedValue)
		}
		run := 1
		for i+run < numCells {
			next := row.CellAt(i + run)
			if next.IsError() || next.Value() != cell.Value() {
				break
			}
			run++
		}

		style := w.effectiveStyle(cell, rowStyle)
		styleID := w.registry.register(style, dataStyleFor(cell.Type()))
		w.cellXML(&sb, cell, styleID, run)
		i += run
	}
	sb.WriteString(`</table:table-row>`)
	return sb.String(), nil
}

// effectiveStyle merges the row style under the cell style, adding text
// wrapping when the value embeds newlines.
func (w *Writer) effectiveStyle(cell *spout.Cell, rowStyle *spout.Style) *spout.Style {
	style := cell.Style().Merge(rowStyle)
	if s, ok := cell.Value().(string); ok && strings.Contains(s, "\n") && !style.HasWrapText() {
		style.SetShouldWrapText()
	}
	return style
}

func (w *Writer) cellXML(sb *strings.Builder, cell *spout.Cell, styleID, repeat int) {
	fmt.Fprintf(sb, `<table:table-cell table:style-name="ce%d"`, styleID+1)
	if repeat > 1 {
		fmt.Fprintf(sb, ` table:number-columns-repeated="%d"`, repeat)
	}

	switch cell.Type() {
	case spout.CellTypeEmpty:
		sb.WriteString(`/>`)
	case spout.CellTypeBoolean:
		v := "false"
		if cell.Value().(bool) {
			v = "true"
		}
		fmt.Fprintf(sb, ` office:value-type="boolean" calcext:value-type="boolean" office:boolean-value="%s">`, v)
		fmt.Fprintf(sb, `<text:p>%s</text:p>`, v)
		sb.WriteString(`</table:table-cell>`)
	case spout.CellTypeNumeric:
		lit := numericLiteral(cell.Value())
		fmt.Fprintf(sb, ` office:value-type="float" calcext:value-type="float" office:value="%s">`, lit)
		fmt.Fprintf(sb, `<text:p>%s</text:p>`, lit)
		sb.WriteString(`</table:table-cell>`)
	case spout.CellTypeDate:
		switch v := cell.Value().(type) {
		case time.Time:
			fmt.Fprintf(sb, ` office:value-type="date" office:date-value="%s" calcext:value-type="date">`,
				v.Format("2006-01-02T15:04:05"))
			fmt.Fprintf(sb, `<text:p>%s</text:p>`, v.Format(dateDisplayFormat))
		case time.Duration:
			fmt.Fprintf(sb, ` office:value-type="time" office:time-value="%s" calcext:value-type="time">`,
				formatISODuration(v))
			fmt.Fprintf(sb, `<text:p>%s</text:p>`, formatDurationClock(v))
		}
		sb.WriteString(`</table:table-cell>`)
	case spout.CellTypeString:
		sb.WriteString(` office:value-type="string" calcext:value-type="string">`)
		for _, line := range strings.Split(cell.Value().(string), "\n") {
			fmt.Fprintf(sb, `<text:p>%s</text:p>`, escapeXML(line))
		}
		sb.WriteString(`</table:table-cell>`)
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
		if err := sheet.bw.Flush(); err != nil {
			return fmt.Errorf("ods: finalizing sheet %q: %w", sheet.name, err)
		}
	}

	if err := w.assemble(); err != nil {
		os.Remove(w.path)
		return err
	}

	for _, sheet := range w.sheets {
		if err := sheet.f.Close(); err != nil {
			return fmt.Errorf("ods: closing scratch file: %w", err)
		}
		sheet.f = nil
	}
	return nil
}

// assemble writes the final archive.  The mimetype entry goes first and
// uncompressed; content.xml streams the per-sheet scratch files between
// its structural sections.
func (w *Writer) assemble() error {
	builder, err := ziputil.NewBuilder(w.path)
	if err != nil {
		return fmt.Errorf("ods: creating output: %w", err)
	}

	fail := func(err error) error {
		builder.Abort()
		return err
	}

	if err := builder.AddStoredBytes(mimetypePath, []byte(mimetypeValue)); err != nil {
		return fail(fmt.Errorf("ods: writing mimetype: %w", err))
	}
	if err := builder.AddFromReader(contentPath, w.contentReader()); err != nil {
		return fail(fmt.Errorf("ods: writing content: %w", err))
	}
	if err := builder.AddBytes(stylesPath, w.registry.stylesXMLContent(len(w.sheets))); err != nil {
		return fail(fmt.Errorf("ods: writing styles: %w", err))
	}
	if err := builder.AddBytes(settingsPath, w.settingsXML()); err != nil {
		return fail(fmt.Errorf("ods: writing settings: %w", err))
	}
	if err := builder.AddBytes(manifestPath, []byte(manifestXML)); err != nil {
		return fail(fmt.Errorf("ods: writing manifest: %w", err))
	}
	if err := builder.AddBytes(metaPath, w.metaXML()); err != nil {
		return fail(fmt.Errorf("ods: writing meta: %w", err))
	}

	if err := builder.Close(); err != nil {
		return fmt.Errorf("ods: finalizing output: %w", err)
	}
	return nil
}

// contentReader stitches content.xml together as one stream: prologue,
// then per sheet its table element wrapped around the scratch file, then
// the epilogue.
func (w *Writer) contentReader() io.Reader {
	parts := []io.Reader{strings.NewReader(w.contentPrologue())}
	for _, sheet := range w.sheets {
		parts = append(parts,
			strings.NewReader(w.tableStart(sheet)),
			&scratchReader{f: sheet.f},
			strings.NewReader(`</table:table>`),
		)
	}
	parts = append(parts, strings.NewReader(`</office:spreadsheet></office:body></office:document-content>`))
	return io.MultiReader(parts...)
}

// scratchReader rewinds its file on first read, so assembly sees the whole
// fragment regardless of the write position left behind.
type scratchReader struct {
	f      *os.File
	rewind bool
}

func (r *scratchReader) Read(p []byte) (int, error) {
	if !r.rewind {
		if _, err := r.f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		r.rewind = true
	}
	return r.f.Read(p)
}

func (w *Writer) contentPrologue() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<office:document-content office:version="1.2"` +
		` xmlns:calcext="urn:org:documentfoundation:names:experimental:calc:xmlns:calcext:1.0"` +
		` xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"` +
		` xmlns:number="urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0"` +
		` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"` +
		` xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"` +
		` xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"` +
		` xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"` +
		` xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"` +
		` xmlns:xlink="http://www.w3.org/1999/xlink">`)
	sb.WriteString(w.registry.fontFaceDeclsXML())
	sb.WriteString(w.registry.contentAutomaticStylesXML(w.sheets))
	sb.WriteString(`<office:body><office:spreadsheet>`)
	return sb.String()
}

func (w *Writer) tableStart(sheet *writerSheet) string {
	cols := sheet.maxCols
	if cols < 1 {
		cols = 1
	}
	return fmt.Sprintf(`<table:table table:style-name="ta%d" table:name="%s">`+
		`<table:table-column table:default-cell-style-name="ce1" table:style-name="co1" table:number-columns-repeated="%d"/>`,
		sheet.index+1, escapeXML(sheet.name), cols)
}

func (w *Writer) settingsXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<office:document-settings office:version="1.2"` +
		` xmlns:config="urn:oasis:names:tc:opendocument:xmlns:config:1.0"` +
		` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0">`)
	sb.WriteString(`<office:settings><config:config-item-set config:name="ooo:view-settings">` +
		`<config:config-item-map-indexed config:name="Views"><config:config-item-map-entry>`)
	fmt.Fprintf(&sb, `<config:config-item config:name="ActiveTable" config:type="string">%s</config:config-item>`,
		escapeXML(w.current.name))
	sb.WriteString(`</config:config-item-map-entry></config:config-item-map-indexed>` +
		`</config:config-item-set></office:settings></office:document-settings>`)
	return []byte(sb.String())
}

const manifestXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<manifest:manifest manifest:version="1.2" xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0">` +
	`<manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.spreadsheet"/>` +
	`<manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>` +
	`<manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>` +
	`<manifest:file-entry manifest:full-path="settings.xml" manifest:media-type="text/xml"/>` +
	`<manifest:file-entry manifest:full-path="meta.xml" manifest:media-type="text/xml"/>` +
	`</manifest:manifest>`

func (w *Writer) metaXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<office:document-meta office:version="1.2"` +
		` xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0"` +
		` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0">`)
	fmt.Fprintf(&sb, `<office:meta><meta:generator>spout</meta:generator>`+
		`<meta:creation-date>%s</meta:creation-date></office:meta>`,
		time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString(`</office:document-meta>`)
	return []byte(sb.String())
}
