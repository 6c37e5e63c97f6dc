// Package spout provides streaming readers and writers for CSV, XLSX and
// ODS spreadsheet files.  Workbooks are never loaded whole: both directions
// operate on forward-only row cursors, so memory stays flat regardless of
// how many rows a sheet holds.
//
// # Quick start
//
//	r, err := xlsx.Open("Book1.xlsx")
//	if err != nil { ... }
//	defer r.Close()
//
//	sheets := r.Sheets()
//	for sheets.Next() {
//	    rows := sheets.Sheet().Rows()
//	    for rows.Next() {
//	        row := rows.Row()
//	        _ = row.Values()
//	    }
//	    if err := rows.Err(); err != nil { ... }
//	}
//
// Writing mirrors reading: each AddRow call serializes the row straight to
// the current sheet's backing store, and Close assembles the final document.
//
//	w, err := xlsx.Create("out.xlsx")
//	if err != nil { ... }
//	if err := w.AddRow(spout.NewRowFromValues("a", 1, true)); err != nil { ... }
//	if err := w.Close(); err != nil { ... }
//
// The root package carries the entity model (Cell, Row, Style, Border)
// shared by the three format adapters, plus the date-serial conversion
// helpers spreadsheet formats store timestamps with.
package spout

import (
	"fmt"
	"math"
	"time"

	"github.com/silecs/spout/internal/dateformat"
)

// Version is the current version of the spout library.
const Version = "1.0.0"

// Spreadsheet serial numbers count days since an epoch, with the fractional
// part carrying the time of day.  The 1900 system inherits the Lotus 1-2-3
// bug that treated 1900 as a leap year: the epoch base is shifted to
// 1899-12-30 so that serials from 61 up (1900-03-01 onward) land on the
// correct calendar day, while serials 0 and 1 decode to 1899-12-30 and
// 1899-12-31.  That two-day offset is deliberate and must round-trip
// exactly.  The 1904 system has no phantom leap day: serial 0 is 1904-01-01.
const (
	// maxSerial1900 is one above the last representable 1900-system serial
	// (9999-12-31).  Larger values would overflow duration arithmetic.
	maxSerial1900 = 2_958_466
	// serial1904Offset is the day distance between the two epoch bases.
	serial1904Offset = 1462
)

func epochBase(date1904 bool) time.Time {
	if date1904 {
		return time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
}

// SerialToTime converts a spreadsheet date serial to a time.Time in UTC.
// Pass date1904=true for workbooks using the 1904 date system.
func SerialToTime(serial float64, date1904 bool) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, fmt.Errorf("spout: SerialToTime: invalid serial %v", serial)
	}
	if serial < 0 {
		return time.Time{}, fmt.Errorf("spout: SerialToTime: negative serial %v not supported", serial)
	}
	max := float64(maxSerial1900)
	if date1904 {
		max -= serial1904Offset
	}
	if serial > max {
		return time.Time{}, fmt.Errorf("spout: SerialToTime: serial %v exceeds maximum %v", serial, max)
	}

	fracSec, dayRollover := serialFracSeconds(serial)
	days := int(serial) + dayRollover
	t := epochBase(date1904).
		Add(time.Duration(days)*24*time.Hour + time.Duration(fracSec)*time.Second)
	return t, nil
}

// TimeToSerial converts a time.Time to a spreadsheet date serial for the
// given date system.  It is the inverse of SerialToTime up to whole-second
// precision.
func TimeToSerial(t time.Time, date1904 bool) float64 {
	d := t.In(time.UTC).Sub(epochBase(date1904))
	return d.Hours() / 24
}

// DurationToSerial converts a duration (a time-of-day or elapsed-time value)
// to the fractional-day serial representation.
func DurationToSerial(d time.Duration) float64 {
	return d.Hours() / 24
}

// serialFracSeconds converts the fractional-day part of a serial to a whole
// second count within the day (0–86399) plus a rollover flag set when
// rounding pushed the result past midnight.
//
// A small epsilon absorbs the floating-point drift that accumulates in
// thirds-of-a-day style fractions; without it, 0.99999999 of a minute
// renders as the previous second.
func serialFracSeconds(serial float64) (fracSec int64, dayRollover int) {
	const roundEpsilon = 1e-9
	fracDay := (serial - math.Trunc(serial)) + roundEpsilon
	const nanosPerDay = float64(24 * 60 * 60 * 1e9)
	durNanos := time.Duration(fracDay * nanosPerDay)
	secs := int64(durNanos / time.Second)
	if durNanos%time.Second > 500*time.Millisecond {
		secs++
	}
	if secs < 0 {
		secs = 0
	}
	rollover := int(secs / 86400)
	return secs % 86400, rollover
}

// IsDateFormat reports whether a number-format ID (and optional custom
// format string) represents a date or time format.
//
// Built-in IDs follow ECMA-376 §18.8.30: 14–22, 27–36, 45–47 and 50–58 are
// date/time formats.  For custom IDs (164 and up) the unquoted portion of
// formatStr is scanned for any of the characters d, m, y, h, s (either
// case); sections enclosed in double quotes or square brackets are skipped,
// which keeps currency locale codes like [$-404] from matching.
func IsDateFormat(id int, formatStr string) bool {
	if dateformat.IsBuiltInDateID(id) {
		return true
	}
	if id < 164 {
		return false
	}
	return dateformat.ScanFormatStr(formatStr)
}
