// Package csv reads and writes delimited text files behind the same
// streaming Reader/Writer surface as the xlsx and ods packages.  A CSV file
// presents as a document with exactly one sheet.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/transcode"
)

const (
	defaultDelimiter = ","
	defaultEnclosure = `"`

	// flushThreshold bounds writer buffering: the stream is flushed every
	// this many rows rather than per row.
	flushThreshold = 500
)

// Reader opens a CSV file for streaming row access.
type Reader struct {
	path   string
	opts   *spout.Options
	log    *slog.Logger
	iters  []*rowIterator
	closed bool
}

func readerOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionFieldDelimiter,
		spout.OptionFieldEnclosure,
		spout.OptionEncoding,
		spout.OptionPreserveEmptyRows,
		spout.OptionLogger,
	)
}

// Open prepares path for reading.  The configured source encoding is
// validated here; the file itself is opened lazily per row cursor.
func Open(path string, opts ...spout.Option) (*Reader, error) {
	o := readerOptions()
	o.Apply(opts)

	if _, err := transcode.Lookup(o.String(spout.OptionEncoding, "")); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if enc := o.String(spout.OptionFieldEnclosure, defaultEnclosure); enc != defaultEnclosure {
		return nil, fmt.Errorf("csv: field enclosure %q is not supported on read, only %q is", enc, defaultEnclosure)
	}

	// Probe the file now so a bad path fails at Open, not mid-iteration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: opening file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("csv: opening file: %w", err)
	}

	return &Reader{path: path, opts: o, log: o.Logger()}, nil
}

// Sheets returns the document's sheet iterator.  A CSV file always has one
// sheet, named "Sheet1".
func (r *Reader) Sheets() spout.SheetIterator {
	return &sheetIterator{r: r}
}

// Close closes every row cursor handed out by this reader.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var first error
	for _, it := range r.iters {
		if err := it.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.iters = nil
	return first
}

type sheetIterator struct {
	r    *Reader
	done bool
}

func (it *sheetIterator) Next() bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}

func (it *sheetIterator) Sheet() spout.Sheet { return &sheet{r: it.r} }

func (it *sheetIterator) Err() error { return nil }

type sheet struct {
	r *Reader
}

func (s *sheet) Index() int      { return 0 }
func (s *sheet) Name() string    { return "Sheet1" }
func (s *sheet) IsActive() bool  { return true }
func (s *sheet) IsVisible() bool { return true }

// Rows returns a fresh cursor reading the file from the beginning.
func (s *sheet) Rows() spout.RowIterator {
	it := &rowIterator{r: s.r}
	s.r.iters = append(s.r.iters, it)
	return it
}

type iterState int

const (
	stateNotStarted iterState = iota
	stateBuffered
	stateExhausted
)

// rowIterator pulls one record ahead of the caller.  Blank lines, which
// encoding/csv silently swallows, are recovered from record line positions
// so that PreserveEmptyRows can emit them.
type rowIterator struct {
	r  *Reader
	f  *os.File
	cr *csv.Reader

	state iterState
	row   *spout.Row
	err   error

	preserve bool

	pendingEmpty int      // blank-line rows owed before nextRecord
	nextRecord   []string // record read past a blank-line gap
	prevLine     int      // line where the previous record started
	prevSpan     int      // lines the previous record occupied
}

// open prepares the underlying file: skip the byte-order mark matching the
// configured encoding, then stack the transcoder and the record reader.
func (it *rowIterator) open() error {
	o := it.r.opts
	encName := o.String(spout.OptionEncoding, "")
	it.preserve = o.Bool(spout.OptionPreserveEmptyRows, false)

	f, err := os.Open(it.r.path)
	if err != nil {
		return fmt.Errorf("csv: opening file: %w", err)
	}

	probe := make([]byte, 4)
	n, err := io.ReadFull(f, probe)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return fmt.Errorf("csv: probing byte-order mark: %w", err)
	}
	skip := transcode.BOMLength(probe[:n], encName)
	if _, err := f.Seek(int64(skip), io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("csv: seeking past byte-order mark: %w", err)
	}

	rd, err := transcode.Reader(f, encName)
	if err != nil {
		f.Close()
		return fmt.Errorf("csv: %w", spout.ErrEncodingConversion)
	}

	cr := csv.NewReader(rd)
	cr.Comma = delimiterRune(o)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	it.f = f
	it.cr = cr
	it.prevLine = 1
	it.prevSpan = 0
	return nil
}

// Next advances the cursor.  It reports false at end of data or on error;
// Err distinguishes the two.
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
	return it.advance()
}

func (it *rowIterator) advance() bool {
	for {
		if it.pendingEmpty > 0 {
			it.pendingEmpty--
			// An empty row carries a single empty-string cell, matching the
			// record a lone delimiter-free blank line would decode to.
			it.row = spout.NewRowFromValues("")
			return true
		}

		var record []string
		if it.nextRecord != nil {
			record = it.nextRecord
			it.nextRecord = nil
		} else {
			var err error
			record, err = it.cr.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					var perr *csv.ParseError
					if errors.As(err, &perr) {
						it.err = fmt.Errorf("csv: reading record: %w: %v", spout.ErrMalformed, err)
					} else {
						it.err = fmt.Errorf("csv: reading record: %w", err)
					}
				}
				it.state = stateExhausted
				return false
			}
			if it.preserve {
				line, _ := it.cr.FieldPos(0)
				if gap := line - (it.prevLine + it.prevSpan); gap > 0 {
					it.pendingEmpty = gap
				}
				it.prevLine = line
				it.prevSpan = recordSpan(record)
				if it.pendingEmpty > 0 {
					it.nextRecord = record
					continue
				}
			}
		}

		if isSkipCandidate(record) && !it.preserve {
			continue
		}
		it.row = recordToRow(record)
		return true
	}
}

// Row returns the buffered row.  Only valid after Next returned true.
func (it *rowIterator) Row() *spout.Row { return it.row }

// Err returns the error that ended the iteration early, if any.
func (it *rowIterator) Err() error { return it.err }

// Close releases the underlying file.  It is safe to call more than once.
func (it *rowIterator) Close() error {
	it.state = stateExhausted
	if it.f == nil {
		return nil
	}
	f := it.f
	it.f = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("csv: closing file: %w", err)
	}
	return nil
}

// isSkipCandidate reports whether record decodes from a line carrying no
// data (a single empty field).
func isSkipCandidate(record []string) bool {
	return len(record) == 1 && record[0] == ""
}

// recordSpan counts the source lines a record occupied, accounting for
// newlines inside quoted fields.
func recordSpan(record []string) int {
	span := 1
	for _, field := range record {
		span += strings.Count(field, "\n")
	}
	return span
}

func recordToRow(record []string) *spout.Row {
	values := make([]any, len(record))
	for i, field := range record {
		values[i] = field
	}
	return spout.NewRowFromValues(values...)
}

func delimiterRune(o *spout.Options) rune {
	s := o.String(spout.OptionFieldDelimiter, defaultDelimiter)
	for _, r := range s {
		return r
	}
	return ','
}
