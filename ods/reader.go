package ods

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/xmlparse"
	"github.com/silecs/spout/internal/ziputil"
)

// Reader opens an ODS archive for streaming row access.  Sheet metadata is
// resolved at Open with one structural pass over content.xml: table
// visibility lives in the automatic-styles section, which the format places
// ahead of the tables themselves, and the active sheet name comes from
// settings.xml.
type Reader struct {
	archive *ziputil.Archive
	opts    *spout.Options
	log     *slog.Logger

	sheets []*sheetMeta

	iters  []*rowIterator
	closed bool
}

type sheetMeta struct {
	r       *Reader
	index   int
	name    string
	active  bool
	visible bool
}

func readerOptions() *spout.Options {
	return spout.NewOptions(
		spout.OptionPreserveEmptyRows,
		spout.OptionFormatDates,
		spout.OptionLogger,
	)
}

// Open reads the document structure of the archive at p.  A missing or
// unparsable content part fails here, not mid-iteration.
func Open(p string, opts ...spout.Option) (*Reader, error) {
	o := readerOptions()
	o.Apply(opts)

	archive, err := ziputil.Open(p)
	if err != nil {
		return nil, fmt.Errorf("ods: %w: %v", spout.ErrMalformed, err)
	}

	r := &Reader{archive: archive, opts: o, log: o.Logger()}
	if err := r.loadStructure(); err != nil {
		archive.Close()
		return nil, err
	}
	return r, nil
}

// Sheets returns an iterator over the document's sheets in table order.
func (r *Reader) Sheets() spout.SheetIterator {
	return &sheetIterator{r: r, pos: -1}
}

// Close releases the archive and any open row cursors.
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
	if err := r.archive.Close(); err != nil && first == nil {
		first = fmt.Errorf("ods: closing archive: %w", err)
	}
	return first
}

// loadStructure builds the sheet list from content.xml and marks the active
// sheet per settings.xml.
func (r *Reader) loadStructure() error {
	activeName := r.activeSheetName()

	rc, err := r.archive.Entry(contentPath)
	if err != nil {
		return fmt.Errorf("ods: %w: reading %s: %v", spout.ErrMalformed, contentPath, err)
	}
	defer rc.Close()

	// style name → table:display, filled before the tables reference them
	visibility := make(map[string]bool)

	c := xmlparse.NewCursor(rc)
	for {
		se, err := c.NextStart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("ods: %w: parsing %s: %v", spout.ErrMalformed, contentPath, err)
		}
		switch se.Name.Local {
		case "automatic-styles":
			if err := collectTableVisibility(c, visibility); err != nil {
				return fmt.Errorf("ods: %w: parsing %s: %v", spout.ErrMalformed, contentPath, err)
			}
		case "table":
			name := xmlparse.Attr(se, "name")
			styleName := xmlparse.Attr(se, "style-name")
			visible := true
			if v, ok := visibility[styleName]; ok {
				visible = v
			}
			meta := &sheetMeta{
				r:       r,
				index:   len(r.sheets),
				name:    name,
				visible: visible,
			}
			r.sheets = append(r.sheets, meta)
			if err := c.Skip(); err != nil {
				return fmt.Errorf("ods: %w: parsing %s: %v", spout.ErrMalformed, contentPath, err)
			}
		}
	}
	if len(r.sheets) == 0 {
		return fmt.Errorf("ods: %w: no tables in %s", spout.ErrMalformed, contentPath)
	}

	marked := false
	for _, s := range r.sheets {
		if s.name == activeName {
			s.active = true
			marked = true
			break
		}
	}
	if !marked {
		r.sheets[0].active = true
	}
	return nil
}

// collectTableVisibility records the display flag of every table-family
// style inside an automatic-styles section.
func collectTableVisibility(c *xmlparse.Cursor, out map[string]bool) error {
	depth := 1
	for depth > 0 {
		tok, err := c.Next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "style" && xmlparse.Attr(t, "family") == "table" {
				name := xmlparse.Attr(t, "name")
				display := true
				if err := scanTableProperties(c, &display); err != nil {
					return err
				}
				out[name] = display
				continue // subtree already consumed
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// scanTableProperties consumes a style:style subtree, reading table:display
// off the table-properties child when present.
func scanTableProperties(c *xmlparse.Cursor, display *bool) error {
	depth := 1
	for depth > 0 {
		tok, err := c.Next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "table-properties" {
				if xmlparse.Attr(t, "display") == "false" {
					*display = false
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// activeSheetName extracts the ActiveTable view setting.  Documents without
// a settings part fall back to the first sheet.
func (r *Reader) activeSheetName() string {
	if !r.archive.Has(settingsPath) {
		return ""
	}
	rc, err := r.archive.Entry(settingsPath)
	if err != nil {
		return ""
	}
	defer rc.Close()

	c := xmlparse.NewCursor(rc)
	for {
		se, err := c.NextStart()
		if err != nil {
			return ""
		}
		if se.Name.Local == "config-item" && xmlparse.Attr(se, "name") == "ActiveTable" {
			name, err := c.CollectText()
			if err != nil {
				return ""
			}
			return name
		}
	}
}

// ── sheet handles ──

func (s *sheetMeta) Index() int      { return s.index }
func (s *sheetMeta) Name() string    { return s.name }
func (s *sheetMeta) IsActive() bool  { return s.active }
func (s *sheetMeta) IsVisible() bool { return s.visible }

// Rows opens a fresh forward cursor over the sheet's rows, re-reading
// content.xml from the start.
func (s *sheetMeta) Rows() spout.RowIterator {
	it := newRowIterator(s)
	s.r.iters = append(s.r.iters, it)
	return it
}

type sheetIterator struct {
	r   *Reader
	pos int
}

func (si *sheetIterator) Next() bool {
	if si.pos+1 >= len(si.r.sheets) {
		return false
	}
	si.pos++
	return true
}

func (si *sheetIterator) Sheet() spout.Sheet { return si.r.sheets[si.pos] }

func (si *sheetIterator) Err() error { return nil }
