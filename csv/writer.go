package csv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/transcode"
)

// Writer streams rows out as delimited records.  Output is always UTF-8,
// prefixed with a byte-order mark unless disabled.  The stream is flushed
// every flushThreshold rows, not per row.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
	cw *csv.Writer // nil when a non-default enclosure forces manual quoting

	delimiter rune
	enclosure rune
	log       *slog.Logger

	rowsSinceFlush int
	writeErr       error
	closed         bool
}

func writerOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionFieldDelimiter,
		spout.OptionFieldEnclosure,
		spout.OptionAddBOM,
		spout.OptionLogger,
	)
}

// Create opens path for writing and emits the UTF-8 byte-order mark when the
// BOM option is on (the default).
func Create(path string, opts ...spout.Option) (*Writer, error) {
	o := writerOptions()
	o.Apply(opts)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: creating file: %w", err)
	}
	bw := bufio.NewWriter(f)

	if o.Bool(spout.OptionAddBOM, true) {
		if _, err := bw.Write(transcode.BOMUTF8); err != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("csv: writing byte-order mark: %w", err)
		}
	}

	w := &Writer{
		f:         f,
		bw:        bw,
		delimiter: delimiterRune(o),
		enclosure: enclosureRune(o),
		log:       o.Logger(),
	}
	if w.enclosure == '"' {
		cw := csv.NewWriter(bw)
		cw.Comma = w.delimiter
		w.cw = cw
	}
	return w, nil
}

// AddRow serializes one row as a delimited record.  Error-typed cells make
// the whole row fail without partial output.
func (w *Writer) AddRow(row *spout.Row) error {
	if w.closed {
		return spout.ErrWriterClosed
	}
	if w.writeErr != nil {
		return w.writeErr
	}

	record := make([]string, row.NumCells())
	for i := range record {
		cell := row.CellAt(i)
		if cell.IsError() {
			return fmt.Errorf("csv: cell %d: %w", i, spout.ErrUnsupportedValue)
		}
		record[i] = fieldString(cell)
	}

	if err := w.writeRecord(record); err != nil {
		w.writeErr = fmt.Errorf("csv: writing record: %w", err)
		return w.writeErr
	}

	w.rowsSinceFlush++
	if w.rowsSinceFlush >= flushThreshold {
		w.rowsSinceFlush = 0
		if err := w.flush(); err != nil {
			w.writeErr = fmt.Errorf("csv: flushing: %w", err)
			return w.writeErr
		}
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

// Close flushes and closes the file.  After a write failure Close still
// releases the file but does not report that failure again.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.writeErr != nil {
		w.f.Close()
		return nil
	}
	if err := w.flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("csv: flushing: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("csv: closing file: %w", err)
	}
	return nil
}

func (w *Writer) flush() error {
	if w.cw != nil {
		w.cw.Flush()
		if err := w.cw.Error(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

func (w *Writer) writeRecord(record []string) error {
	if w.cw != nil {
		return w.cw.Write(record)
	}
	return w.writeRecordManual(record)
}

// writeRecordManual emits one record with a non-default enclosure rune,
// which encoding/csv cannot produce.  Fields containing the delimiter, the
// enclosure, or a line break are enclosed, with embedded enclosures doubled.
func (w *Writer) writeRecordManual(record []string) error {
	for i, field := range record {
		if i > 0 {
			if _, err := w.bw.WriteRune(w.delimiter); err != nil {
				return err
			}
		}
		if err := w.writeField(field); err != nil {
			return err
		}
	}
	return w.bw.WriteByte('\n')
}

func (w *Writer) writeField(field string) error {
	enc := string(w.enclosure)
	if !strings.ContainsAny(field, enc+string(w.delimiter)+"\n\r") {
		_, err := w.bw.WriteString(field)
		return err
	}
	if _, err := w.bw.WriteString(enc); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(strings.ReplaceAll(field, enc, enc+enc)); err != nil {
		return err
	}
	_, err := w.bw.WriteString(enc)
	return err
}

// fieldString renders a cell value as record text.  CSV carries no type
// information, so everything flattens to its display form.
func fieldString(cell *spout.Cell) string {
	switch v := cell.Value().(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format("2006-01-02T15:04:05")
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func enclosureRune(o *spout.Options) rune {
	s := o.String(spout.OptionFieldEnclosure, defaultEnclosure)
	for _, r := range s {
		return r
	}
	return '"'
}
