package spout

import (
	"fmt"
	"strings"
)

// Border edge names.
const (
	BorderLeft   = "left"
	BorderRight  = "right"
	BorderTop    = "top"
	BorderBottom = "bottom"
)

// Border line styles.
const (
	BorderStyleNone   = "none"
	BorderStyleSolid  = "solid"
	BorderStyleDashed = "dashed"
	BorderStyleDotted = "dotted"
	BorderStyleDouble = "double"
)

// Border line widths.
const (
	BorderWidthThin   = "thin"
	BorderWidthMedium = "medium"
	BorderWidthThick  = "thick"
)

// BorderPart describes one edge of a cell border.
type BorderPart struct {
	// Name is one of the Border* edge constants.
	Name string
	// Color is a 6-digit hex RGB color.
	Color string
	// Width is one of the BorderWidth* constants.
	Width string
	// Style is one of the BorderStyle* constants.
	Style string
}

// Border is the set of edges applied by a style.  Edges not present are not
// drawn.  The zero value has no edges.
type Border struct {
	parts map[string]BorderPart
}

// NewBorder builds a border from the given edge parts.  Parts with an
// unknown edge name are dropped; a later part for the same edge wins.
func NewBorder(parts ...BorderPart) *Border {
	b := &Border{parts: make(map[string]BorderPart, len(parts))}
	for _, p := range parts {
		switch p.Name {
		case BorderLeft, BorderRight, BorderTop, BorderBottom:
			if p.Color == "" {
				p.Color = ColorBlack
			}
			if p.Width == "" {
				p.Width = BorderWidthMedium
			}
			if p.Style == "" {
				p.Style = BorderStyleSolid
			}
			b.parts[p.Name] = p
		}
	}
	return b
}

// Part returns the border part for the given edge name, if present.
func (b *Border) Part(name string) (BorderPart, bool) {
	p, ok := b.parts[name]
	return p, ok
}

// Parts returns the border edges in the fixed order left, right, top,
// bottom, skipping absent edges.
func (b *Border) Parts() []BorderPart {
	out := make([]BorderPart, 0, len(b.parts))
	for _, name := range []string{BorderLeft, BorderRight, BorderTop, BorderBottom} {
		if p, ok := b.parts[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Key returns the canonical serialization used for border deduplication.
func (b *Border) Key() string {
	var sb strings.Builder
	for _, p := range b.Parts() {
		fmt.Fprintf(&sb, "%s:%s:%s:%s|", p.Name, p.Color, p.Width, p.Style)
	}
	return sb.String()
}
