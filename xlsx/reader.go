package xlsx

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/rels"
	"github.com/silecs/spout/internal/xmlparse"
	"github.com/silecs/spout/internal/ziputil"
)

// Reader opens an XLSX archive for streaming row access.  The shared-strings
// table is fully indexed at Open, before any row is resolved, because cells
// reference strings by table position.
type Reader struct {
	archive *ziputil.Archive
	opts    *spout.Options
	log     *slog.Logger

	date1904 bool
	sheets   []*sheetMeta
	sst      *sharedStrings
	styles   *stylesheet

	iters  []*rowIterator
	closed bool
}

type sheetMeta struct {
	r        *Reader
	index    int
	name     string
	partPath string
	active   bool
	visible  bool
}

func readerOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionPreserveEmptyRows,
		spout.OptionFormatDates,
		spout.OptionTempDir,
		spout.OptionSharedStringsMemoryBudget,
		spout.OptionLogger,
	)
}

// Open reads the workbook structure of the archive at p: sheet list, 1904
// flag, style classification tables, and the shared-strings index.  A
// missing or unparsable workbook part fails here, not mid-iteration.
func Open(p string, opts ...spout.Option) (*Reader, error) {
	o := readerOptions()
	o.Apply(opts)

	archive, err := ziputil.Open(p)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w: %v", spout.ErrMalformed, err)
	}

	r := &Reader{archive: archive, opts: o, log: o.Logger()}
	if err := r.loadWorkbook(); err != nil {
		archive.Close()
		return nil, err
	}
	if err := r.loadStylesheet(); err != nil {
		archive.Close()
		return nil, err
	}
	if err := r.loadSharedStrings(); err != nil {
		archive.Close()
		return nil, err
	}
	return r, nil
}

// Sheets returns an iterator over the workbook's sheets in workbook order.
func (r *Reader) Sheets() spout.SheetIterator {
	return &sheetIterator{r: r, pos: -1}
}

// Close releases the archive, open row cursors, and the shared-strings
// scratch file, if one was used.
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
	if r.sst != nil {
		if err := r.sst.close(); err != nil && first == nil {
			first = err
		}
	}
	if err := r.archive.Close(); err != nil && first == nil {
		first = fmt.Errorf("xlsx: closing archive: %w", err)
	}
	return first
}

// loadWorkbook parses xl/workbook.xml and its relationships part into sheet
// metadata and the workbook-level flags.
func (r *Reader) loadWorkbook() error {
	relData, err := r.archive.EntryBytes(workbookRelsPath)
	if err != nil {
		return fmt.Errorf("xlsx: %w: reading %s: %v", spout.ErrMalformed, workbookRelsPath, err)
	}
	relMap, err := rels.Parse(relData)
	if err != nil {
		return fmt.Errorf("xlsx: %w: %v", spout.ErrMalformed, err)
	}

	wb, err := r.archive.Entry(workbookPath)
	if err != nil {
		return fmt.Errorf("xlsx: %w: reading %s: %v", spout.ErrMalformed, workbookPath, err)
	}
	defer wb.Close()

	activeTab := 0
	cur := xmlparse.NewCursor(wb)
	for {
		se, err := cur.NextStart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("xlsx: %w: parsing workbook: %v", spout.ErrMalformed, err)
		}
		switch se.Name.Local {
		case "workbookPr":
			r.date1904 = isXMLTrue(xmlparse.Attr(se, "date1904"))
		case "workbookView":
			if v := xmlparse.Attr(se, "activeTab"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					activeTab = n
				}
			}
		case "sheet":
			target, ok := relMap[xmlparse.Attr(se, "id")]
			if !ok {
				return fmt.Errorf("xlsx: %w: sheet %q has no relationship target",
					spout.ErrMalformed, xmlparse.Attr(se, "name"))
			}
			r.sheets = append(r.sheets, &sheetMeta{
				r:        r,
				index:    len(r.sheets),
				name:     xmlparse.Attr(se, "name"),
				partPath: resolvePartPath(target),
				visible:  xmlparse.Attr(se, "state") != "hidden",
			})
		}
	}
	if len(r.sheets) == 0 {
		return fmt.Errorf("xlsx: %w: workbook has no sheets", spout.ErrMalformed)
	}
	if activeTab >= 0 && activeTab < len(r.sheets) {
		r.sheets[activeTab].active = true
	}
	return nil
}

func (r *Reader) loadStylesheet() error {
	if !r.archive.Has(stylesPath) {
		r.styles = &stylesheet{}
		return nil
	}
	entry, err := r.archive.Entry(stylesPath)
	if err != nil {
		return fmt.Errorf("xlsx: %w: reading %s: %v", spout.ErrMalformed, stylesPath, err)
	}
	defer entry.Close()
	ss, err := parseStylesheet(entry)
	if err != nil {
		return fmt.Errorf("xlsx: %w: %v", spout.ErrMalformed, err)
	}
	r.styles = ss
	return nil
}

func (r *Reader) loadSharedStrings() error {
	if !r.archive.Has(sharedStringsPath) {
		r.sst = &sharedStrings{}
		return nil
	}
	entry, err := r.archive.Entry(sharedStringsPath)
	if err != nil {
		return fmt.Errorf("xlsx: %w: reading %s: %v", spout.ErrMalformed, sharedStringsPath, err)
	}
	defer entry.Close()

	sst, err := indexSharedStrings(entry, indexConfig{
		memoryBudget: r.opts.Int(spout.OptionSharedStringsMemoryBudget, defaultMemoryBudget),
		tempDir:      r.opts.String(spout.OptionTempDir, ""),
		log:          r.log,
	})
	if err != nil {
		return fmt.Errorf("xlsx: %w: %v", spout.ErrMalformed, err)
	}
	r.sst = sst
	return nil
}

// resolvePartPath turns a workbook-relative relationship target into an
// archive entry name.
func resolvePartPath(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean("xl/" + target)
}

func isXMLTrue(v string) bool {
	return v == "1" || v == "true"
}

type sheetIterator struct {
	r   *Reader
	pos int
}

func (it *sheetIterator) Next() bool {
	if it.pos+1 >= len(it.r.sheets) {
		return false
	}
	it.pos++
	return true
}

func (it *sheetIterator) Sheet() spout.Sheet { return it.r.sheets[it.pos] }

func (it *sheetIterator) Err() error { return nil }

func (s *sheetMeta) Index() int      { return s.index }
func (s *sheetMeta) Name() string    { return s.name }
func (s *sheetMeta) IsActive() bool  { return s.active }
func (s *sheetMeta) IsVisible() bool { return s.visible }

// Rows returns a fresh cursor over the sheet's worksheet part.
func (s *sheetMeta) Rows() spout.RowIterator {
	it := newRowIterator(s)
	s.r.iters = append(s.r.iters, it)
	return it
}
