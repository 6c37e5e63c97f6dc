package xlsx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/xmlparse"
)

// stylesheet is the read-side projection of xl/styles.xml: just enough to
// classify a cell's style index as date/time-formatted.  Everything else in
// the part is skipped.
type stylesheet struct {
	xfs           []xfInfo
	customFormats map[int]string

	dateMemo map[int]bool
}

type xfInfo struct {
	numFmtID    int
	applyNumFmt bool
}

// parseStylesheet walks the styles part, collecting custom number formats
// and the cellXfs records.  cellStyleXfs records are deliberately skipped;
// cells reference cellXfs only.
func parseStylesheet(r io.Reader) (*stylesheet, error) {
	ss := &stylesheet{customFormats: make(map[int]string)}
	cur := xmlparse.NewCursor(r)
	for {
		tok, err := cur.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stylesheet: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "numFmt":
			id, err := strconv.Atoi(xmlparse.Attr(se, "numFmtId"))
			if err == nil {
				ss.customFormats[id] = xmlparse.Attr(se, "formatCode")
			}
			if err := cur.Skip(); err != nil {
				return nil, fmt.Errorf("stylesheet: %w", err)
			}
		case "cellStyleXfs":
			if err := cur.Skip(); err != nil {
				return nil, fmt.Errorf("stylesheet: %w", err)
			}
		case "cellXfs":
			if err := ss.parseCellXfs(cur); err != nil {
				return nil, err
			}
		}
	}
	return ss, nil
}

func (ss *stylesheet) parseCellXfs(cur *xmlparse.Cursor) error {
	for {
		tok, err := cur.Next()
		if err != nil {
			return fmt.Errorf("stylesheet: cellXfs: %w", err)
		}
		if xmlparse.IsEnd(tok, "cellXfs") {
			return nil
		}
		se, ok := xmlparse.IsStart(tok, "xf")
		if !ok {
			continue
		}
		xf := xfInfo{applyNumFmt: true}
		if v := xmlparse.Attr(se, "numFmtId"); v != "" {
			xf.numFmtID, _ = strconv.Atoi(v)
		}
		// An explicit applyNumberFormat="0" disables the format, and with it
		// date conversion, for cells using this record.
		if v := xmlparse.Attr(se, "applyNumberFormat"); v == "0" || v == "false" {
			xf.applyNumFmt = false
		}
		ss.xfs = append(ss.xfs, xf)
		if err := cur.Skip(); err != nil {
			return fmt.Errorf("stylesheet: cellXfs: %w", err)
		}
	}
}

// isDateStyle reports whether the given cell style index carries a
// date/time number format.  Results are memoized: sheets reference the same
// few styles millions of times.
func (ss *stylesheet) isDateStyle(styleID int) bool {
	if styleID < 0 || styleID >= len(ss.xfs) {
		return false
	}
	if v, ok := ss.dateMemo[styleID]; ok {
		return v
	}
	xf := ss.xfs[styleID]
	v := xf.applyNumFmt && spout.IsDateFormat(xf.numFmtID, ss.customFormats[xf.numFmtID])
	if ss.dateMemo == nil {
		ss.dateMemo = make(map[int]bool)
	}
	ss.dateMemo[styleID] = v
	return v
}

// formatFor returns the number format in force for a cell style index, for
// rendering cell values as display strings.
func (ss *stylesheet) formatFor(styleID int) (fmtID int, fmtStr string) {
	if styleID < 0 || styleID >= len(ss.xfs) {
		return 0, ""
	}
	xf := ss.xfs[styleID]
	if !xf.applyNumFmt {
		return 0, ""
	}
	return xf.numFmtID, ss.customFormats[xf.numFmtID]
}
