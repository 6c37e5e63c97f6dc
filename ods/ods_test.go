package ods

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silecs/spout"
)

// buildArchive writes a zip file from entry name → content, for reader
// tests that need structures the writer never produces.
func buildArchive(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.ods")
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

const contentHeader = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content office:version="1.2" xmlns:calcext="urn:org:documentfoundation:names:experimental:calc:xmlns:calcext:1.0" xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">`

// fixture builds an archive whose content.xml holds one table named "Data"
// with the given row elements.
func fixture(t *testing.T, rows string, extra map[string]string) string {
	parts := map[string]string{
		contentPath: contentHeader +
			`<office:body><office:spreadsheet>` +
			`<table:table table:name="Data">` + rows + `</table:table>` +
			`</office:spreadsheet></office:body></office:document-content>`,
	}
	for name, content := range extra {
		parts[name] = content
	}
	return buildArchive(t, parts)
}

func stringCell(text string) string {
	return `<table:table-cell office:value-type="string"><text:p>` + text + `</text:p></table:table-cell>`
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

// entryContent extracts one entry of a finished archive.
func entryContent(t *testing.T, path, name string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			return string(data)
		}
	}
	t.Fatalf("entry %q not in archive", name)
	return ""
}

func TestRoundTripValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)

	when := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, w.AddRows([]*spout.Row{
		spout.NewRowFromValues("plain", "two\nlines", "a<b&c"),
		spout.NewRowFromValues(42.5, true, false),
		spout.NewRowFromValues(when, 90*time.Minute),
	}))
	require.NoError(t, w.Close())

	rows := readAllRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"plain", "two\nlines", "a<b&c"}, rows[0])
	assert.Equal(t, []any{42.5, true, false}, rows[1])
	assert.Equal(t, []any{when, 90 * time.Minute}, rows[2])
}

func TestRoundTripMultipleSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, w.AddRow(spout.NewRowFromValues("first")))
	require.NoError(t, w.AddSheet("Extras"))
	require.NoError(t, w.AddRow(spout.NewRowFromValues("second")))
	require.NoError(t, w.SetCurrentSheet(0))
	require.NoError(t, w.AddRow(spout.NewRowFromValues("back on first")))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	var counts []int
	var active []bool
	sheets := r.Sheets()
	for sheets.Next() {
		sheet := sheets.Sheet()
		names = append(names, sheet.Name())
		active = append(active, sheet.IsActive())
		n := 0
		rows := sheet.Rows()
		for rows.Next() {
			n++
		}
		require.NoError(t, rows.Err())
		counts = append(counts, n)
	}
	assert.Equal(t, []string{"Sheet1", "Extras"}, names)
	assert.Equal(t, []int{2, 1}, counts)
	// SetCurrentSheet(0) left Sheet1 selected at save time
	assert.Equal(t, []bool{true, false}, active)
}

func TestRoundTripSparseRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues(nil, nil, nil, "far")))
	require.NoError(t, w.Close())

	rows := readAllRows(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{nil, nil, nil, "far"}, rows[0])
}

func TestWriterCollapsesEqualRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues("x", "x", "x", "y")))
	require.NoError(t, w.Close())

	content := entryContent(t, path, contentPath)
	assert.Contains(t, content, `table:number-columns-repeated="3"`)

	rows := readAllRows(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"x", "x", "x", "y"}, rows[0])
}

func TestWriterMimetypeStoredFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues("a")))
	require.NoError(t, w.Close())

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	require.NotEmpty(t, zr.File)
	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Equal(t, mimetypeValue, entryContent(t, path, "mimetype"))
}

func TestWriterRejectsErrorCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)

	err = w.AddRow(spout.NewRowFromValues("fine", struct{ X int }{1}))
	require.ErrorIs(t, err, spout.ErrUnsupportedValue)

	require.NoError(t, w.Close())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "aborted session must not leave output")
}

func TestWriterSheetNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.AddSheet("bad[name]that:is/way'too long to be accepted here'")
	var nameErr *spout.SheetNameError
	require.ErrorAs(t, err, &nameErr)
	assert.GreaterOrEqual(t, len(nameErr.Violations), 2)

	err = w.AddSheet("Sheet1")
	require.ErrorAs(t, err, &nameErr)
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ods")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.AddRow(spout.NewRowFromValues("late")), spout.ErrWriterClosed)
	assert.ErrorIs(t, w.AddSheet("More"), spout.ErrWriterClosed)
	assert.NoError(t, w.Close())
}

func TestReaderRepeatedRows(t *testing.T) {
	rows := `<table:table-row table:number-rows-repeated="3"><table:table-cell office:value-type="string"><text:p>A</text:p></table:table-cell></table:table-row>` +
		`<table:table-row table:number-rows-repeated="2"><table:table-cell/></table:table-row>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>B</text:p></table:table-cell></table:table-row>` +
		`<table:table-row table:number-rows-repeated="1048575"><table:table-cell/></table:table-row>`
	path := fixture(t, rows, nil)

	got := readAllRows(t, path)
	assert.Equal(t, [][]any{{"A"}, {"A"}, {"A"}, {"B"}}, got)

	// Interior empty repeats materialize; the trailing filler run does not.
	got = readAllRows(t, path, spout.WithPreserveEmptyRows(true))
	assert.Equal(t, [][]any{{"A"}, {"A"}, {"A"}, {nil}, {nil}, {"B"}, {nil}}, got)
}

func TestReaderRepeatedCells(t *testing.T) {
	rows := `<table:table-row>` +
		`<table:table-cell office:value-type="float" office:value="7" table:number-columns-repeated="3"><text:p>7</text:p></table:table-cell>` +
		stringCell("end") +
		`<table:table-cell table:number-columns-repeated="1020"/>` +
		`</table:table-row>`
	got := readAllRows(t, fixture(t, rows, nil))
	require.Len(t, got, 1)
	assert.Equal(t, []any{7.0, 7.0, 7.0, "end", nil}, got[0])
}

func TestReaderWhitespaceElements(t *testing.T) {
	rows := `<table:table-row><table:table-cell office:value-type="string">` +
		`<text:p>a<text:s text:c="3"/>b<text:tab/>c<text:line-break/>d<text:span>e</text:span></text:p>` +
		`<text:p>second</text:p>` +
		`</table:table-cell></table:table-row>`
	got := readAllRows(t, fixture(t, rows, nil))
	require.Len(t, got, 1)
	assert.Equal(t, []any{"a   b\tc\nde\nsecond"}, got[0])
}

func TestReaderValueTypes(t *testing.T) {
	rows := `<table:table-row>` +
		`<table:table-cell office:value-type="float" office:value="1.25"><text:p>1.25</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="percentage" office:value="0.5"><text:p>50%</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="boolean" office:boolean-value="true"><text:p>true</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="currency" office:value="9.99" office:currency="USD"><text:p>$9.99</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="void"/>` +
		stringCell("tail") +
		`</table:table-row>`
	got := readAllRows(t, fixture(t, rows, nil))
	require.Len(t, got, 1)
	assert.Equal(t, []any{1.25, 0.5, true, "9.99 USD", nil, "tail"}, got[0])
}

func TestReaderDates(t *testing.T) {
	rows := `<table:table-row>` +
		`<table:table-cell office:value-type="date" office:date-value="2024-03-15T10:30:00"><text:p>15/03/2024 10:30</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="date" office:date-value="2024-03-15"><text:p>15/03/2024</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="time" office:time-value="PT1H30M0S"><text:p>1:30:00</text:p></table:table-cell>` +
		`</table:table-row>`
	path := fixture(t, rows, nil)

	got := readAllRows(t, path)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), got[0][0])
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got[0][1])
	assert.Equal(t, 90*time.Minute, got[0][2])

	got = readAllRows(t, path, spout.WithFormatDates(true))
	assert.Equal(t, []any{"15/03/2024 10:30", "15/03/2024", "1:30:00"}, got[0])
}

func TestReaderHiddenAndActiveSheets(t *testing.T) {
	content := contentHeader +
		`<office:automatic-styles>` +
		`<style:style style:family="table" style:name="ta1"><style:table-properties table:display="true"/></style:style>` +
		`<style:style style:family="table" style:name="ta2"><style:table-properties table:display="false"/></style:style>` +
		`</office:automatic-styles>` +
		`<office:body><office:spreadsheet>` +
		`<table:table table:name="Visible" table:style-name="ta1"/>` +
		`<table:table table:name="Hidden" table:style-name="ta2"/>` +
		`</office:spreadsheet></office:body></office:document-content>`
	settings := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-settings office:version="1.2" xmlns:config="urn:oasis:names:tc:opendocument:xmlns:config:1.0" xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0">
<office:settings><config:config-item-set config:name="ooo:view-settings"><config:config-item-map-indexed config:name="Views"><config:config-item-map-entry>
<config:config-item config:name="ActiveTable" config:type="string">Hidden</config:config-item>
</config:config-item-map-entry></config:config-item-map-indexed></config:config-item-set></office:settings></office:document-settings>`

	path := buildArchive(t, map[string]string{
		contentPath:  content,
		settingsPath: settings,
	})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	sheets := r.Sheets()
	require.True(t, sheets.Next())
	first := sheets.Sheet()
	assert.Equal(t, "Visible", first.Name())
	assert.True(t, first.IsVisible())
	assert.False(t, first.IsActive())

	require.True(t, sheets.Next())
	second := sheets.Sheet()
	assert.Equal(t, "Hidden", second.Name())
	assert.False(t, second.IsVisible())
	assert.True(t, second.IsActive())

	require.False(t, sheets.Next())
}

func TestReaderMissingContent(t *testing.T) {
	path := buildArchive(t, map[string]string{"meta.xml": "<x/>"})
	_, err := Open(path)
	require.ErrorIs(t, err, spout.ErrMalformed)
}

func TestReaderRejectsDoctype(t *testing.T) {
	content := `<?xml version="1.0"?>
<!DOCTYPE office:document-content [<!ENTITY boom "x">]>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0">
<office:body><office:spreadsheet><table:table table:name="Data"/></office:spreadsheet></office:body></office:document-content>`
	path := buildArchive(t, map[string]string{contentPath: content})
	_, err := Open(path)
	require.ErrorIs(t, err, spout.ErrMalformed)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"PT13H24M0S", 13*time.Hour + 24*time.Minute, true},
		{"PT0H1M30S", 90 * time.Second, true},
		{"PT2H", 2 * time.Hour, true},
		{"PT1.5S", 1500 * time.Millisecond, true},
		{"-PT1H0M0S", -time.Hour, true},
		{"P1DT1H", 0, false},
		{"13H", 0, false},
		{"PT", 0, false},
	}
	for _, tt := range tests {
		got, err := parseISODuration(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatISODuration(t *testing.T) {
	assert.Equal(t, "PT1H30M0S", formatISODuration(90*time.Minute))
	assert.Equal(t, "-PT0H0M45S", formatISODuration(-45*time.Second))

	// values survive the round trip through the wire form
	for _, d := range []time.Duration{0, time.Second, 26*time.Hour + 3*time.Minute + 7*time.Second} {
		back, err := parseISODuration(formatISODuration(d))
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}
