// Package xlsx reads and writes Office Open XML spreadsheets as streams of
// rows.  The reader walks one worksheet part at a time with a forward XML
// cursor; the writer serializes each added row straight to a per-sheet
// scratch file and only assembles the archive at Close.
package xlsx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

const (
	// MaxRowsPerSheet is the worksheet row ceiling of the format.
	MaxRowsPerSheet = 1_048_576
	// MaxCharsPerCell is the longest string a cell may hold.
	MaxCharsPerCell = 32_767
)

// Fixed part names inside the archive.
const (
	workbookPath      = "xl/workbook.xml"
	workbookRelsPath  = "xl/_rels/workbook.xml.rels"
	sharedStringsPath = "xl/sharedStrings.xml"
	stylesPath        = "xl/styles.xml"
)

// colName converts a 0-based column index to its A1-style letters.
func colName(col int) string {
	name := make([]byte, 0, 3)
	for col >= 0 {
		name = append(name, byte('A'+col%26))
		col = col/26 - 1
	}
	for i, j := 0, len(name)-1; i < j; i, j = i+1, j-1 {
		name[i], name[j] = name[j], name[i]
	}
	return string(name)
}

// parseCellRef splits an A1-style reference ("C5") into a 0-based column
// index and 1-based row number.
func parseCellRef(ref string) (col, row int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("xlsx: malformed cell reference %q", ref)
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("xlsx: malformed cell reference %q", ref)
	}
	return col - 1, row, nil
}

// escapeXML escapes s for use in element content or attribute values.
func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
