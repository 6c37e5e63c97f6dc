// Package transcode converts byte streams between a named source encoding
// and UTF-8, and knows the byte-order marks of the encodings CSV files are
// commonly saved in.
//
// Encoding lookup goes through the WHATWG name index, so all the usual
// aliases (latin1, iso-8859-1, windows-1252, utf-16le, …) resolve.
package transcode

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Byte-order marks, longest first so UTF-32 wins over its UTF-16 prefix.
var (
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// BOMUTF8 is the UTF-8 byte-order mark, exported for writers that emit it.
var BOMUTF8 = bomUTF8

// IsUTF8 reports whether name denotes UTF-8 (including the empty default).
func IsUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Lookup resolves an encoding name.  It returns nil for UTF-8 (no
// conversion needed) and an error joining ErrUnsupported for names the
// index does not know.
func Lookup(name string) (encoding.Encoding, error) {
	if IsUTF8(name) {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("transcode: encoding %q: %w", name, err)
	}
	return enc, nil
}

// BOMLength returns the byte length of the BOM at the head of data for the
// named source encoding, or 0 when no BOM for that encoding is present.
// Only the BOM matching the declared encoding is skipped; a stray UTF-16 BOM
// in a file declared UTF-8 is data, not a marker.
func BOMLength(data []byte, encodingName string) int {
	name := strings.ToLower(encodingName)
	bom := bomUTF8
	switch name {
	case "utf-16be":
		bom = bomUTF16BE
	case "utf-16le", "utf-16":
		bom = bomUTF16LE
	case "utf-32be":
		bom = bomUTF32BE
	case "utf-32le", "utf-32":
		bom = bomUTF32LE
	default:
		if !IsUTF8(name) {
			return 0
		}
	}
	if bytes.HasPrefix(data, bom) {
		return len(bom)
	}
	return 0
}

// Reader wraps r so that bytes in the named encoding come out as UTF-8.
// For UTF-8 input r is returned unchanged.
func Reader(r io.Reader, encodingName string) (io.Reader, error) {
	enc, err := Lookup(encodingName)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return enc.NewDecoder().Reader(r), nil
}

// Bytes converts data from the named encoding to UTF-8.
func Bytes(data []byte, encodingName string) ([]byte, error) {
	enc, err := Lookup(encodingName)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return data, nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("transcode: converting from %q: %w", encodingName, err)
	}
	return out, nil
}
