// Package ods reads and writes OpenDocument spreadsheets as streams of
// rows.  Unlike XLSX, everything lives in one content.xml part: the reader
// walks it with a forward XML cursor and skips ahead to the requested
// table, the writer serializes rows to per-sheet scratch files and splices
// them between the structural sections at Close.
package ods

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxRowsPerSheet is the table row ceiling of the format.
const MaxRowsPerSheet = 1_048_576

// Fixed entry names inside the archive.
const (
	mimetypePath = "mimetype"
	contentPath  = "content.xml"
	stylesPath   = "styles.xml"
	settingsPath = "settings.xml"
	metaPath     = "meta.xml"
	manifestPath = "META-INF/manifest.xml"
)

// mimetypeValue must be the first archive entry, stored uncompressed, so
// magic-byte sniffers can identify the file without unpacking it.
const mimetypeValue = "application/vnd.oasis.opendocument.spreadsheet"

// nsOffice is the namespace of the office:* attributes.  Cell elements
// carry both office:value-type and calcext:value-type, which share a local
// name, so lookups on cells must be namespace-aware.
const nsOffice = "urn:oasis:names:tc:opendocument:xmlns:office:1.0"

// officeAttr returns the office-namespaced attribute with the given local
// name on se, or "" when absent.  Attributes from documents that never
// declared the prefix resolve with Space "office" and are accepted too.
func officeAttr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local && (a.Name.Space == nsOffice || a.Name.Space == "office") {
			return a.Value
		}
	}
	return ""
}

// escapeXML escapes s for use in element content or attribute values.
func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// parseISODuration parses the ISO 8601 duration form used by
// office:time-value, e.g. "PT13H24M5.5S".  Date components (years, months,
// days before the T) are not produced by spreadsheet applications and are
// rejected.
func parseISODuration(s string) (time.Duration, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "PT") {
		return 0, fmt.Errorf("ods: malformed duration %q", orig)
	}
	s = s[2:]
	if s == "" {
		return 0, fmt.Errorf("ods: malformed duration %q", orig)
	}

	var total time.Duration
	for s != "" {
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("ods: malformed duration %q", orig)
		}
		n, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("ods: malformed duration %q", orig)
		}
		switch s[i] {
		case 'H':
			total += time.Duration(n * float64(time.Hour))
		case 'M':
			total += time.Duration(n * float64(time.Minute))
		case 'S':
			total += time.Duration(n * float64(time.Second))
		default:
			return 0, fmt.Errorf("ods: malformed duration %q", orig)
		}
		s = s[i+1:]
	}
	if neg {
		total = -total
	}
	return total, nil
}

// formatISODuration renders d in the office:time-value form.
func formatISODuration(d time.Duration) string {
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	sb.WriteString("PT")
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d.Seconds()
	fmt.Fprintf(&sb, "%dH%dM", h, m)
	if sec == float64(int64(sec)) {
		fmt.Fprintf(&sb, "%dS", int64(sec))
	} else {
		fmt.Fprintf(&sb, "%sS", strconv.FormatFloat(sec, 'f', -1, 64))
	}
	return sb.String()
}

// formatDurationClock renders d as the H:MM:SS display text of a time cell.
func formatDurationClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}
