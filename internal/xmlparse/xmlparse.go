// Package xmlparse wraps encoding/xml with a hardened forward pull-cursor
// for the XML parts embedded in spreadsheet archives.
//
// Hardening is not optional here: spreadsheet files are attacker-supplied
// input, and a DOCTYPE carrying entity definitions (billion-laughs style)
// must fail fast instead of expanding.  The cursor therefore rejects any
// document type declaration outright, leaves the decoder's entity map empty
// so undefined entities error in strict mode, and refuses foreign charset
// declarations rather than loading converters for them.
package xmlparse

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Cursor is a forward-only token cursor over one XML document.
type Cursor struct {
	dec *xml.Decoder
}

// NewCursor builds a hardened cursor over r.
func NewCursor(r io.Reader) *Cursor {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = nil
	dec.CharsetReader = func(charset string, _ io.Reader) (io.Reader, error) {
		return nil, fmt.Errorf("xmlparse: charset %q not allowed", charset)
	}
	return &Cursor{dec: dec}
}

// Next returns the next token.  io.EOF marks the clean end of the document.
// Directives are inspected before being discarded: a DOCTYPE declaration is
// an immediate error.
func (c *Cursor) Next() (xml.Token, error) {
	for {
		tok, err := c.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.Directive:
			if isDoctype(t) {
				return nil, fmt.Errorf("xmlparse: document type declarations are not allowed")
			}
		case xml.ProcInst, xml.Comment:
			// not structural, skip
		default:
			return tok, nil
		}
	}
}

// NextStart advances to the next start element, returning io.EOF at end of
// document.
func (c *Cursor) NextStart() (xml.StartElement, error) {
	for {
		tok, err := c.Next()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// Skip consumes tokens until the element whose start tag was just read is
// closed.
func (c *Cursor) Skip() error { return c.dec.Skip() }

// DecodeElement materializes the subtree of the start element se into v.
// Intended only for small fixed-size sections such as style tables; bulk
// data must stay on the token cursor.
func (c *Cursor) DecodeElement(v any, se *xml.StartElement) error {
	return c.dec.DecodeElement(v, se)
}

// CollectText consumes tokens until the current element closes and returns
// the concatenation of all character data inside it, at any nesting level.
func (c *Cursor) CollectText() (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := c.Next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

func isDoctype(d xml.Directive) bool {
	s := strings.TrimSpace(string(d))
	return len(s) >= 7 && strings.EqualFold(s[:7], "DOCTYPE")
}

// IsStart reports whether tok is a start element with the given local name,
// ignoring namespace prefixes.
func IsStart(tok xml.Token, local string) (xml.StartElement, bool) {
	se, ok := tok.(xml.StartElement)
	if !ok || se.Name.Local != local {
		return xml.StartElement{}, false
	}
	return se, true
}

// IsEnd reports whether tok is an end element with the given local name.
func IsEnd(tok xml.Token, local string) bool {
	ee, ok := tok.(xml.EndElement)
	return ok && ee.Name.Local == local
}

// Attr returns the value of the attribute with the given local name on se,
// or "" when absent.  Namespace prefixes are ignored: OOXML and ODF parts
// bind the same prefixes to fixed namespaces, so the local name is
// unambiguous within one part.
func Attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether se carries an attribute with the given local name.
func HasAttr(se xml.StartElement, local string) bool {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return true
		}
	}
	return false
}
