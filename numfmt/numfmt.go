// Package numfmt renders raw cell values to the display string a
// spreadsheet application would show, driven by a number-format string.
// It backs the FormatDates reader option and the sheetconv display mode.
//
// Format-string parsing is delegated to github.com/xuri/nfp; this package
// implements the rendering on top of the resulting token stream.
package numfmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/nfp"

	"github.com/silecs/spout"
	"github.com/silecs/spout/internal/dateformat"
)

// BuiltInFormats maps built-in number-format IDs to their canonical format
// strings per ECMA-376 §18.8.30.  IDs 27–36 and 50–58 are locale-specific
// in the standard; the entries here are neutral Western fallbacks used when
// the file does not override the ID with a custom format record.
var BuiltInFormats = map[int]string{
	0:  "General",
	1:  "0",
	2:  "0.00",
	3:  "#,##0",
	4:  "#,##0.00",
	9:  "0%",
	10: "0.00%",
	11: "0.00E+00",
	12: "# ?/?",
	13: "# ??/??",
	14: "mm-dd-yy",
	15: "d-mmm-yy",
	16: "d-mmm",
	17: "mmm-yy",
	18: "h:mm AM/PM",
	19: "h:mm:ss AM/PM",
	20: "hh:mm",
	21: "hh:mm:ss",
	22: "m/d/yy hh:mm",
	27: "MM-DD-YYYY",
	28: "D-MMM-YY",
	29: "D-MMM-YY",
	30: "M/D/YY",
	31: "YYYY-M-D",
	32: "H:MM",
	33: "H:MM:SS",
	34: "H:MM AM/PM",
	35: "H:MM:SS AM/PM",
	36: "MM-DD-YYYY",
	37: `(#,##0_);(#,##0)`,
	38: `(#,##0_);[Red](#,##0)`,
	39: `(#,##0.00_);(#,##0.00)`,
	40: `(#,##0.00_);[Red](#,##0.00)`,
	45: "mm:ss",
	46: "[h]:mm:ss",
	47: "mm:ss.0",
	48: "##0.0E+0",
	49: "@",
	50: "MM-DD-YYYY",
	51: "D-MMM-YY",
	52: "H:MM AM/PM",
	53: "H:MM:SS AM/PM",
	54: "D-MMM-YY",
	55: "H:MM AM/PM",
	56: "H:MM:SS AM/PM",
	57: "MM-DD-YYYY",
	58: "D-MMM-YY",
}

// FormatValue renders the raw cell value v using the given number format.
//
//   - fmtID is the numeric format ID (0 = General).
//   - fmtStr is the custom format string; pass "" for built-in IDs with no
//     override.
//   - date1904 selects the workbook's date system for serial conversion.
//
// The dynamic type of v must be one of nil, string, bool, float64; any other
// type falls back to fmt.Sprint.
func FormatValue(v any, fmtID int, fmtStr string, date1904 bool) string {
	effective := effectiveFormat(fmtID, fmtStr)
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return formatNumeric(val, fmtID, effective, date1904)
	default:
		return fmt.Sprint(v)
	}
}

// FormatTime renders a date/time value using the given number format by
// first converting it to a serial in the requested date system.
func FormatTime(t time.Time, fmtID int, fmtStr string, date1904 bool) string {
	return FormatValue(spout.TimeToSerial(t, date1904), fmtID, fmtStr, date1904)
}

// effectiveFormat resolves the format string actually in force.
func effectiveFormat(fmtID int, fmtStr string) string {
	if fmtStr != "" {
		return fmtStr
	}
	if s, ok := BuiltInFormats[fmtID]; ok {
		return s
	}
	return "General"
}

func formatNumeric(val float64, fmtID int, effective string, date1904 bool) string {
	if effective == "General" {
		return formatGeneral(val)
	}
	parser := nfp.NumberFormatParser()
	sections := parser.Parse(effective)
	if len(sections) == 0 {
		return formatGeneral(val)
	}
	sec := sectionFor(sections, val)

	if isDateEffective(fmtID, effective) {
		return formatSerialDate(val, sec, date1904)
	}
	return formatPlainNumber(val, sec, sections)
}

// isDateEffective mirrors spout.IsDateFormat but additionally scans format
// strings attached to ID 0, which some producers use for ad-hoc date
// formats.
func isDateEffective(fmtID int, effective string) bool {
	if dateformat.IsBuiltInDateID(fmtID) {
		return true
	}
	if fmtID != 0 && fmtID < 164 {
		return false
	}
	return dateformat.ScanFormatStr(effective)
}

// sectionFor picks the format section matching the value's sign:
//
//	1 section  → all values
//	2 sections → [0]=positive+zero  [1]=negative
//	3+         → [0]=positive  [1]=negative  [2]=zero
func sectionFor(sections []nfp.Section, val float64) nfp.Section {
	switch {
	case len(sections) == 1:
		return sections[0]
	case len(sections) == 2:
		if val < 0 {
			return sections[1]
		}
		return sections[0]
	default:
		switch {
		case val > 0:
			return sections[0]
		case val < 0:
			return sections[1]
		default:
			return sections[2]
		}
	}
}

// formatGeneral renders a float the way the "General" format does: integers
// without a decimal point, everything else shortest-representation.
func formatGeneral(val float64) string {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return strconv.FormatFloat(val, 'G', -1, 64)
	}
	if val == math.Trunc(val) && math.Abs(val) < 1e15 {
		return strconv.FormatInt(int64(val), 10)
	}
	return strconv.FormatFloat(val, 'G', -1, 64)
}

// ── date/time rendering ───────────────────────────────────────────────────────

func formatSerialDate(serial float64, sec nfp.Section, date1904 bool) string {
	t, err := spout.SerialToTime(serial, date1904)
	if err != nil {
		return formatGeneral(serial)
	}

	// AM/PM anywhere in the section switches hour tokens to 12-hour form.
	hasAmPm := false
	for _, tok := range sec.Items {
		if tok.TType == nfp.TokenTypeDateTimes {
			switch strings.ToUpper(tok.TValue) {
			case "AM/PM", "A/P":
				hasAmPm = true
			}
		}
	}

	var sb strings.Builder
	lastWasHour := false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypeDateTimes:
			upper := strings.ToUpper(tok.TValue)
			sb.WriteString(dateToken(upper, t, hasAmPm, lastWasHour))
			lastWasHour = upper == "H" || upper == "HH"
		case nfp.TokenTypeElapsedDateTimes:
			upper := strings.ToUpper(tok.TValue)
			sb.WriteString(elapsedToken(upper, serial))
			lastWasHour = upper == "H" || upper == "HH"
		case nfp.TokenTypeLiteral:
			// A literal separator between an hour token and M/MM must not
			// break minute-vs-month disambiguation, so lastWasHour survives.
			sb.WriteString(tok.TValue)
		default:
			lastWasHour = false
		}
	}
	if sb.Len() == 0 {
		return formatGeneral(serial)
	}
	return sb.String()
}

// dateToken renders one upper-cased date/time token.
func dateToken(upper string, t time.Time, hasAmPm, lastWasHour bool) string {
	hour12 := func(h int) int {
		if !hasAmPm {
			return h
		}
		h = h % 12
		if h == 0 {
			h = 12
		}
		return h
	}
	switch upper {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "YY":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return t.Month().String()[:3]
	case "MM":
		if lastWasHour {
			return fmt.Sprintf("%02d", t.Minute())
		}
		return fmt.Sprintf("%02d", int(t.Month()))
	case "M":
		if lastWasHour {
			return strconv.Itoa(t.Minute())
		}
		return strconv.Itoa(int(t.Month()))
	case "DDDD":
		return t.Weekday().String()
	case "DDD":
		return t.Weekday().String()[:3]
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "HH":
		return fmt.Sprintf("%02d", hour12(t.Hour()))
	case "H":
		return strconv.Itoa(hour12(t.Hour()))
	case "SS":
		return fmt.Sprintf("%02d", t.Second())
	case "S":
		return strconv.Itoa(t.Second())
	case "AM/PM":
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "A/P":
		if t.Hour() < 12 {
			return "A"
		}
		return "P"
	}
	return ""
}

// elapsedToken renders an elapsed-time token ([h], [mm], …) from the raw
// serial, which counts fractional days.
func elapsedToken(upper string, serial float64) string {
	switch upper {
	case "H", "HH":
		return strconv.Itoa(int(serial * 24))
	case "MM":
		return fmt.Sprintf("%02d", int(serial*24*60)%60)
	case "M":
		return strconv.Itoa(int(serial*24*60) % 60)
	case "SS":
		return fmt.Sprintf("%02d", int(serial*24*3600)%60)
	case "S":
		return strconv.Itoa(int(serial*24*3600) % 60)
	}
	return ""
}

// ── plain number rendering ────────────────────────────────────────────────────

func formatPlainNumber(val float64, sec nfp.Section, sections []nfp.Section) string {
	var (
		hasPercent   bool
		hasThousands bool
		hasDecimal   bool
		decZeros     int
		decHashes    int
		intZeros     int
		explicitSign bool
	)
	afterDecimal := false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypePercent:
			hasPercent = true
		case nfp.TokenTypeThousandsSeparator:
			hasThousands = true
		case nfp.TokenTypeDecimalPoint:
			hasDecimal = true
			afterDecimal = true
		case nfp.TokenTypeZeroPlaceHolder:
			if afterDecimal {
				decZeros += len(tok.TValue)
			} else {
				intZeros += len(tok.TValue)
			}
		case nfp.TokenTypeHashPlaceHolder:
			if afterDecimal {
				decHashes += len(tok.TValue)
			}
		case nfp.TokenTypeLiteral:
			if tok.TValue == "+" || tok.TValue == "-" {
				explicitSign = true
			}
		}
	}
	totalDecPlaces := decZeros + decHashes

	absVal := math.Abs(val)
	if hasPercent {
		absVal *= 100
	}

	var intStr, fracStr string
	if hasDecimal {
		formatted := strconv.FormatFloat(absVal, 'f', totalDecPlaces, 64)
		if dot := strings.IndexByte(formatted, '.'); dot >= 0 {
			intStr, fracStr = formatted[:dot], formatted[dot+1:]
		} else {
			intStr, fracStr = formatted, strings.Repeat("0", totalDecPlaces)
		}
		// '#' placeholders drop trailing zeros that '0' placeholders would keep.
		for decHashes > 0 && len(fracStr) > decZeros && fracStr[len(fracStr)-1] == '0' {
			fracStr = fracStr[:len(fracStr)-1]
		}
	} else {
		intStr = strconv.FormatFloat(absVal, 'f', 0, 64)
	}

	for len(intStr) < intZeros {
		intStr = "0" + intStr
	}
	if hasThousands && len(intStr) > 3 {
		intStr = groupThousands(intStr)
	}

	// With two or more sections the negative section encodes the sign
	// visually (e.g. parentheses), so no minus is prepended.
	needsMinus := val < 0 && !explicitSign && len(sections) < 2

	var sb strings.Builder
	if needsMinus {
		sb.WriteByte('-')
	}
	intDone, fracDone := false, false
	afterDecimal = false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypeLiteral:
			sb.WriteString(tok.TValue)
		case nfp.TokenTypeDecimalPoint:
			if len(fracStr) > 0 {
				sb.WriteByte('.')
			}
			afterDecimal = true
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder:
			if afterDecimal {
				if !fracDone {
					sb.WriteString(fracStr)
					fracDone = true
				}
			} else if !intDone {
				sb.WriteString(intStr)
				intDone = true
			}
		case nfp.TokenTypePercent:
			sb.WriteByte('%')
		}
	}
	if !intDone && !afterDecimal {
		sb.WriteString(intStr)
	}
	if sb.Len() == 0 {
		return formatGeneral(val)
	}
	return sb.String()
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	b.Grow(n + n/3)
	rem := n % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(s[:rem])
	for i := rem; i < n; i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
