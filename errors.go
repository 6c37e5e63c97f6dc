package spout

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the format adapters.  Fatal errors abort the
// operation that raised them; writers additionally clean up partial output
// and scratch files before propagating, so a failed document is never left
// behind as a usable partial file.
var (
	// ErrMalformed marks input that cannot be opened or parsed: a corrupt
	// archive, invalid XML, or a missing required internal file.
	ErrMalformed = errors.New("malformed input")
	// ErrEncodingConversion marks a failed byte transcoding to UTF-8.
	ErrEncodingConversion = errors.New("encoding conversion failed")
	// ErrUnsupportedValue marks an attempt to write a cell whose classified
	// type is CellTypeError.
	ErrUnsupportedValue = errors.New("unsupported cell value type")
	// ErrStringTooLong marks a string cell exceeding the format's character
	// ceiling.  The value is rejected, never truncated.
	ErrStringTooLong = errors.New("cell string exceeds maximum length")
	// ErrWriterClosed marks a write attempted after Close.
	ErrWriterClosed = errors.New("writer is closed")
	// ErrSheetNotFound marks a current-sheet switch to a sheet that does not
	// belong to the workbook.
	ErrSheetNotFound = errors.New("sheet not found in workbook")
)

// SheetNameError reports an invalid sheet name.  Violations lists every
// failed rule, not just the first one.
type SheetNameError struct {
	Name       string
	Violations []string
}

func (e *SheetNameError) Error() string {
	return fmt.Sprintf("invalid sheet name %q: %s", e.Name, strings.Join(e.Violations, "; "))
}
