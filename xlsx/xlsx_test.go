package xlsx

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silecs/spout"
)

// buildArchive writes a zip file from part name → content, for reader tests
// that need structures the writer never produces.
func buildArchive(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.xlsx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const fixtureWorkbook = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Data" sheetId="1" r:id="rId1"/></sheets></workbook>`

const fixtureWorkbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

func sheetPart(rows string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` +
		rows + `</sheetData></worksheet>`
}

func fixture(t *testing.T, rows string, extra map[string]string) string {
	parts := map[string]string{
		"xl/workbook.xml":            fixtureWorkbook,
		"xl/_rels/workbook.xml.rels": fixtureWorkbookRels,
		"xl/worksheets/sheet1.xml":   sheetPart(rows),
	}
	for name, content := range extra {
		parts[name] = content
	}
	return buildArchive(t, parts)
}

func readAllRows(t *testing.T, path string, opts ...spout.Option) [][]any {
	t.Helper()
	r, err := Open(path, opts...)
	require.NoError(t, err)
	defer r.Close()

	var out [][]any
	sheets := r.Sheets()
	for sheets.Next() {
		rows := sheets.Sheet().Rows()
		for rows.Next() {
			out = append(out, rows.Row().Values())
		}
		require.NoError(t, rows.Err())
	}
	return out
}

func TestRoundTripValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	when := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRows([]*spout.Row{
		spout.NewRowFromValues("hello", "with <xml> & \"quotes\""),
		spout.NewRowFromValues(42, 1.5, true, false),
		spout.NewRowFromValues(when),
	}))
	require.NoError(t, w.Close())

	got := readAllRows(t, path)
	require.Len(t, got, 3)
	assert.Equal(t, []any{"hello", "with <xml> & \"quotes\""}, got[0])
	assert.Equal(t, []any{42.0, 1.5, true, false}, got[1])

	gotTime, ok := got[2][0].(time.Time)
	require.True(t, ok, "date cell should come back as time.Time, got %T", got[2][0])
	assert.True(t, when.Equal(gotTime), "want %v, got %v", when, gotTime)
}

func TestRoundTripInlineStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path, spout.WithInlineStrings(true))
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues("inline", "strings")))
	require.NoError(t, w.Close())

	got := readAllRows(t, path)
	require.Equal(t, [][]any{{"inline", "strings"}}, got)
}

func TestRoundTrip1904(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	when := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

	w, err := Create(path, spout.With1904Epoch(true))
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues(when)))
	require.NoError(t, w.Close())

	got := readAllRows(t, path)
	gotTime, ok := got[0][0].(time.Time)
	require.True(t, ok)
	assert.True(t, when.Equal(gotTime), "want %v, got %v", when, gotTime)
}

func TestRoundTripMultipleSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues("first")))
	require.NoError(t, w.AddSheet("Extras"))
	require.NoError(t, w.AddRow(spout.NewRowFromValues("second")))
	require.NoError(t, w.SetCurrentSheet(0))
	require.NoError(t, w.AddRow(spout.NewRowFromValues("first again")))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	var rowCounts []int
	sheets := r.Sheets()
	for sheets.Next() {
		s := sheets.Sheet()
		names = append(names, s.Name())
		n := 0
		rows := s.Rows()
		for rows.Next() {
			n++
		}
		require.NoError(t, rows.Err())
		rowCounts = append(rowCounts, n)
	}
	assert.Equal(t, []string{"Sheet1", "Extras"}, names)
	assert.Equal(t, []int{2, 1}, rowCounts)
}

func TestRoundTripSparseRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)

	row := spout.NewRow()
	row.SetCellAt(spout.NewCell("far"), 3)
	require.NoError(t, w.AddRow(row))
	require.NoError(t, w.Close())

	got := readAllRows(t, path)
	require.Equal(t, [][]any{{nil, nil, nil, "far"}}, got)
}

func TestWriterStringTooLong(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)

	long := make([]byte, MaxCharsPerCell+1)
	for i := range long {
		long[i] = 'a'
	}
	err = w.AddRow(spout.NewRowFromValues(string(long)))
	require.ErrorIs(t, err, spout.ErrStringTooLong)

	// The session is dead: no output file may appear.
	require.NoError(t, w.Close())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriterRejectsErrorCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)
	err = w.AddRow(spout.NewRowFromValues(struct{ X int }{1}))
	require.ErrorIs(t, err, spout.ErrUnsupportedValue)
}

func TestWriterSheetNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	var nameErr *spout.SheetNameError
	err = w.AddSheet(`bad[name]\with/invalidchars and far far far too long`)
	require.ErrorAs(t, err, &nameErr)
	assert.True(t, len(nameErr.Violations) >= 2, "want every violated rule listed, got %v", nameErr.Violations)

	err = w.AddSheet("Sheet1")
	require.ErrorAs(t, err, &nameErr)
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.AddRow(spout.NewRowFromValues("x")), spout.ErrWriterClosed)
}

func TestReaderRowAndCellGaps(t *testing.T) {
	rows := `<row r="1"><c r="A1" t="inlineStr"><is><t>a</t></is></c></row>` +
		`<row r="3"><c r="C3" t="inlineStr"><is><t>c</t></is></c></row>`

	t.Run("gaps skipped by default", func(t *testing.T) {
		got := readAllRows(t, fixture(t, rows, nil))
		require.Equal(t, [][]any{{"a"}, {nil, nil, "c"}}, got)
	})

	t.Run("gap rows preserved", func(t *testing.T) {
		got := readAllRows(t, fixture(t, rows, nil), spout.WithPreserveEmptyRows(true))
		require.Len(t, got, 3)
		assert.Equal(t, []any{"a"}, got[0])
		assert.Empty(t, got[1])
		assert.Equal(t, []any{nil, nil, "c"}, got[2])
	})
}

func TestReaderSharedStringsRichText(t *testing.T) {
	sst := `<?xml version="1.0"?><sst xmlns="x" uniqueCount="2">` +
		`<si><t>plain</t></si>` +
		`<si><r><t>rich </t></r><r><t>text</t></r><rPh sb="0" eb="1"><t>skip me</t></rPh></si></sst>`
	rows := `<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>`
	got := readAllRows(t, fixture(t, rows, map[string]string{"xl/sharedStrings.xml": sst}))
	require.Equal(t, [][]any{{"plain", "rich text"}}, got)
}

func TestReaderSharedStringsDiskSpill(t *testing.T) {
	sst := `<?xml version="1.0"?><sst xmlns="x" uniqueCount="3">` +
		`<si><t>one</t></si><si><t>two</t></si><si><t>three</t></si></sst>`
	rows := `<row r="1"><c t="s"><v>2</v></c><c t="s"><v>0</v></c></row>`
	path := fixture(t, rows, map[string]string{"xl/sharedStrings.xml": sst})

	// A one-string budget forces the file-backed index.
	got := readAllRows(t, path, spout.WithSharedStringsMemoryBudget(perStringCostEstimate))
	require.Equal(t, [][]any{{"three", "one"}}, got)
}

func TestReaderDateStyles(t *testing.T) {
	styles := `<?xml version="1.0"?><styleSheet xmlns="x">` +
		`<numFmts count="1"><numFmt numFmtId="164" formatCode="yyyy-mm-dd"/></numFmts>` +
		`<cellXfs count="3">` +
		`<xf numFmtId="0"/><xf numFmtId="14"/><xf numFmtId="164"/>` +
		`</cellXfs></styleSheet>`
	// 45366 is 2024-03-15 in the 1900 system.
	rows := `<row r="1">` +
		`<c r="A1" s="0"><v>45366</v></c>` +
		`<c r="B1" s="1"><v>45366</v></c>` +
		`<c r="C1" s="2"><v>45366</v></c>` +
		`</row>`
	path := fixture(t, rows, map[string]string{"xl/styles.xml": styles})

	got := readAllRows(t, path)
	require.Len(t, got, 1)
	assert.Equal(t, 45366.0, got[0][0])
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for col := 1; col <= 2; col++ {
		gotTime, ok := got[0][col].(time.Time)
		require.True(t, ok, "column %d should be a date, got %T", col, got[0][col])
		assert.True(t, want.Equal(gotTime))
	}
}

func TestReaderFormatDates(t *testing.T) {
	styles := `<?xml version="1.0"?><styleSheet xmlns="x">` +
		`<numFmts count="1"><numFmt numFmtId="164" formatCode="yyyy-mm-dd"/></numFmts>` +
		`<cellXfs count="1"><xf numFmtId="164"/></cellXfs></styleSheet>`
	rows := `<row r="1"><c r="A1" s="0"><v>45366</v></c></row>`
	path := fixture(t, rows, map[string]string{"xl/styles.xml": styles})

	got := readAllRows(t, path, spout.WithFormatDates(true))
	require.Equal(t, [][]any{{"2024-03-15"}}, got)
}

func TestReaderSkipsFormulaElements(t *testing.T) {
	rows := `<row r="1"><c r="A1"><f>1+1</f><v>2</v></c></row>`
	got := readAllRows(t, fixture(t, rows, nil))
	require.Equal(t, [][]any{{2.0}}, got)
}

func TestReaderBooleansAndErrors(t *testing.T) {
	rows := `<row r="1">` +
		`<c r="A1" t="b"><v>1</v></c>` +
		`<c r="B1" t="b"><v>0</v></c>` +
		`<c r="C1" t="e"><v>#DIV/0!</v></c>` +
		`</row>`
	got := readAllRows(t, fixture(t, rows, nil))
	require.Equal(t, [][]any{{true, false, "#DIV/0!"}}, got)
}

func TestReaderMissingWorkbook(t *testing.T) {
	path := buildArchive(t, map[string]string{"foo.txt": "not a workbook"})
	_, err := Open(path)
	require.ErrorIs(t, err, spout.ErrMalformed)
}

func TestReaderRejectsDoctype(t *testing.T) {
	rows := `<row r="1"><c r="A1"><v>1</v></c></row>`
	bomb := `<?xml version="1.0"?><!DOCTYPE lolz [<!ENTITY lol "lol">]>` + sheetPart(rows)
	path := buildArchive(t, map[string]string{
		"xl/workbook.xml":            fixtureWorkbook,
		"xl/_rels/workbook.xml.rels": fixtureWorkbookRels,
		"xl/worksheets/sheet1.xml":   bomb,
	})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	sheets := r.Sheets()
	require.True(t, sheets.Next())
	rowsIt := sheets.Sheet().Rows()
	assert.False(t, rowsIt.Next())
	require.ErrorIs(t, rowsIt.Err(), spout.ErrMalformed)
}

func TestReaderHiddenSheet(t *testing.T) {
	wb := `<?xml version="1.0"?><workbook xmlns="x" xmlns:r="y">` +
		`<bookViews><workbookView activeTab="1"/></bookViews>` +
		`<sheets>` +
		`<sheet name="Shown" sheetId="1" r:id="rId1"/>` +
		`<sheet name="Hidden" sheetId="2" state="hidden" r:id="rId2"/>` +
		`</sheets></workbook>`
	rls := `<?xml version="1.0"?><Relationships xmlns="z">` +
		`<Relationship Id="rId1" Target="worksheets/sheet1.xml"/>` +
		`<Relationship Id="rId2" Target="worksheets/sheet2.xml"/>` +
		`</Relationships>`
	path := buildArchive(t, map[string]string{
		"xl/workbook.xml":            wb,
		"xl/_rels/workbook.xml.rels": rls,
		"xl/worksheets/sheet1.xml":   sheetPart(""),
		"xl/worksheets/sheet2.xml":   sheetPart(""),
	})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	sheets := r.Sheets()
	require.True(t, sheets.Next())
	assert.True(t, sheets.Sheet().IsVisible())
	assert.False(t, sheets.Sheet().IsActive())
	require.True(t, sheets.Next())
	assert.False(t, sheets.Sheet().IsVisible())
	assert.True(t, sheets.Sheet().IsActive())
}

func TestStyleRegistry(t *testing.T) {
	reg := newStyleRegistry()

	bold := spout.NewStyle().SetFontBold()
	id1 := reg.register(bold)
	assert.Equal(t, 1, id1)

	// Same property set deduplicates to the same ID.
	id2 := reg.register(spout.NewStyle().SetFontBold())
	assert.Equal(t, id1, id2)

	// Background colors allocate fill IDs from 2.
	bg := spout.NewStyle().SetBackgroundColor("FF0000")
	idBg := reg.register(bg)
	assert.Equal(t, 2, reg.fillForStyle[idBg])

	// Borders allocate from 1.
	withBorder := spout.NewStyle().SetBorder(spout.NewBorder(spout.BorderPart{Name: spout.BorderLeft}))
	idBorder := reg.register(withBorder)
	assert.Equal(t, 1, reg.borderForStyle[idBorder])

	// Built-in formats map to reserved IDs; customs start at 164.
	builtin := reg.register(spout.NewStyle().SetFormat("0.00"))
	assert.Equal(t, 2, reg.formatForStyle[builtin])
	custom := reg.register(spout.NewStyle().SetFormat("0.000"))
	assert.Equal(t, firstCustomFormatID, reg.formatForStyle[custom])
}

func TestColName(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{0, "A"}, {25, "Z"}, {26, "AA"}, {27, "AB"}, {51, "AZ"}, {52, "BA"}, {701, "ZZ"}, {702, "AAA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, colName(tt.col), "col %d", tt.col)
	}
}

func TestParseCellRef(t *testing.T) {
	col, row, err := parseCellRef("C5")
	require.NoError(t, err)
	assert.Equal(t, 2, col)
	assert.Equal(t, 5, row)

	_, _, err = parseCellRef("5C")
	require.Error(t, err)
	_, _, err = parseCellRef("ABC")
	require.Error(t, err)
}
