package csv

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silecs/spout"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
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
	require.NoError(t, sheets.Err())
	return out
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddRows([]*spout.Row{
		spout.NewRowFromValues("a", "b,c"),
		spout.NewRowFromValues("d"),
	}))
	require.NoError(t, w.Close())

	got := readAllRows(t, path)
	require.Equal(t, [][]any{{"a", "b,c"}, {"d"}}, got)
}

func TestReaderSingleSheet(t *testing.T) {
	path := writeFile(t, []byte("x\n"))
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	sheets := r.Sheets()
	require.True(t, sheets.Next())
	s := sheets.Sheet()
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, "Sheet1", s.Name())
	assert.True(t, s.IsActive())
	assert.True(t, s.IsVisible())
	assert.False(t, sheets.Next())
}

func TestReaderCustomDelimiter(t *testing.T) {
	path := writeFile(t, []byte("a;b;c\n1;2;3\n"))
	got := readAllRows(t, path, spout.WithFieldDelimiter(';'))
	require.Equal(t, [][]any{{"a", "b", "c"}, {"1", "2", "3"}}, got)
}

func TestReaderSkipsUTF8BOM(t *testing.T) {
	path := writeFile(t, append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n")...))
	got := readAllRows(t, path)
	require.Equal(t, [][]any{{"a", "b"}}, got)
}

func TestReaderWindows1252(t *testing.T) {
	// "café" with é as the single byte 0xE9.
	path := writeFile(t, []byte{'c', 'a', 'f', 0xE9, '\n'})
	got := readAllRows(t, path, spout.WithEncoding("windows-1252"))
	require.Equal(t, [][]any{{"café"}}, got)
}

func TestReaderUTF16LE(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE}) // BOM, matches the declared encoding
	for _, r := range "hi,yo\n" {
		buf.WriteByte(byte(r))
		buf.WriteByte(0)
	}
	path := writeFile(t, buf.Bytes())
	got := readAllRows(t, path, spout.WithEncoding("utf-16le"))
	require.Equal(t, [][]any{{"hi", "yo"}}, got)
}

func TestReaderUnknownEncoding(t *testing.T) {
	path := writeFile(t, []byte("a\n"))
	_, err := Open(path, spout.WithEncoding("no-such-encoding"))
	require.Error(t, err)
}

func TestReaderRejectsCustomEnclosure(t *testing.T) {
	path := writeFile(t, []byte("a\n"))
	_, err := Open(path, spout.WithFieldEnclosure('|'))
	require.Error(t, err)
}

func TestReaderEmptyRows(t *testing.T) {
	data := []byte("a\n\n\nb\n")

	t.Run("skipped by default", func(t *testing.T) {
		got := readAllRows(t, writeFile(t, data))
		require.Equal(t, [][]any{{"a"}, {"b"}}, got)
	})

	t.Run("preserved on request", func(t *testing.T) {
		// A preserved empty row is a single empty-string cell, not a
		// zero-cell row.
		got := readAllRows(t, writeFile(t, data), spout.WithPreserveEmptyRows(true))
		require.Equal(t, [][]any{{"a"}, {""}, {""}, {"b"}}, got)
	})
}

func TestReaderSurfacesMalformedRecords(t *testing.T) {
	// LazyQuotes forgives most quoting damage on the regular path, so drive
	// the cursor with a strict record reader to hit a mid-file parse error.
	it := &rowIterator{
		state: stateBuffered,
		cr:    csv.NewReader(strings.NewReader("a,b\n\"unterminated\nc,d\n")),
	}
	it.cr.FieldsPerRecord = -1

	require.True(t, it.Next())
	require.Equal(t, []any{"a", "b"}, it.Row().Values())
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), spout.ErrMalformed)
	require.False(t, it.Next())
}

func TestReaderQuotedNewline(t *testing.T) {
	path := writeFile(t, []byte("\"a\nb\",c\nd\n"))
	got := readAllRows(t, path, spout.WithPreserveEmptyRows(true))
	require.Equal(t, [][]any{{"a\nb", "c"}, {"d"}}, got)
}

func TestReaderIgnoresForeignOptions(t *testing.T) {
	// Options belonging to other formats must be silently ignored.
	path := writeFile(t, []byte("a\n"))
	got := readAllRows(t, path, spout.WithInlineStrings(true), spout.WithAutoPaginate(true))
	require.Equal(t, [][]any{{"a"}}, got)
}

func TestWriterBOM(t *testing.T) {
	t.Run("default on", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		w, err := Create(path)
		require.NoError(t, err)
		require.NoError(t, w.AddRow(spout.NewRowFromValues("x")))
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	})

	t.Run("disabled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		w, err := Create(path, spout.WithBOM(false))
		require.NoError(t, err)
		require.NoError(t, w.AddRow(spout.NewRowFromValues("x")))
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "x\n", string(data))
	})
}

func TestWriterQuoting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path, spout.WithBOM(false))
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues(`say "hi"`, "a,b")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"say \"\"hi\"\"\",\"a,b\"\n", string(data))
}

func TestWriterCustomEnclosure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path, spout.WithBOM(false), spout.WithFieldEnclosure('|'))
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues("a,b", "plain")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "|a,b|,plain\n", string(data))
}

func TestWriterValueRendering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path, spout.WithBOM(false))
	require.NoError(t, err)
	require.NoError(t, w.AddRow(spout.NewRowFromValues(42, 1.5, true, false, nil)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42,1.5,1,0,\n", string(data))
}

func TestWriterRejectsErrorCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.AddRow(spout.NewRowFromValues(struct{ X int }{1}))
	require.ErrorIs(t, err, spout.ErrUnsupportedValue)
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.AddRow(spout.NewRowFromValues("x")), spout.ErrWriterClosed)
	require.NoError(t, w.Close())
}

func TestWriterSparseRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path, spout.WithBOM(false))
	require.NoError(t, err)

	row := spout.NewRow()
	row.SetCellAt(spout.NewCell("z"), 2)
	require.NoError(t, w.AddRow(row))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ",,z\n", string(data))
}
