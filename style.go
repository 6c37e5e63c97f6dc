package spout

import (
	"fmt"
	"strings"
)

// Default values applied when a style property is read without having been
// set.  Absence and "set to the default" are distinct states: only absent
// properties inherit from a merge partner.
const (
	DefaultFontSize  = 12.0
	DefaultFontColor = ColorBlack
	DefaultFontName  = "Arial"
)

// ARGB color constants for the most common colors.
const (
	ColorBlack  = "000000"
	ColorWhite  = "FFFFFF"
	ColorRed    = "FF0000"
	ColorGreen  = "008000"
	ColorBlue   = "0000FF"
	ColorYellow = "FFFF00"
	ColorOrange = "FFA500"
)

// ColorRGB renders an RGB triplet as the 6-digit hex string used by style
// properties.
func ColorRGB(r, g, b uint8) string {
	return fmt.Sprintf("%02X%02X%02X", r, g, b)
}

// Cell alignment values.
const (
	AlignLeft    = "left"
	AlignRight   = "right"
	AlignCenter  = "center"
	AlignJustify = "justify"
)

// opt is a tagged optional: a value that knows whether it was explicitly
// set.  It replaces parallel value+flag pairs, so the two can never desync.
type opt[T comparable] struct {
	v   T
	set bool
}

func (o *opt[T]) with(v T) {
	o.v = v
	o.set = true
}

func (o opt[T]) or(def T) T {
	if o.set {
		return o.v
	}
	return def
}

// inherit copies src into o only when o is absent and src was set.
func (o *opt[T]) inherit(src opt[T]) {
	if !o.set && src.set {
		*o = src
	}
}

// Style is a value object describing cell or row formatting.  Every property
// is independently optional; a Style is empty until any setter runs.  Once a
// style registry assigns it an ID the style is identity-frozen: registering
// it again is a no-op that returns the same ID.
type Style struct {
	fontBold          opt[bool]
	fontItalic        opt[bool]
	fontUnderline     opt[bool]
	fontStrikethrough opt[bool]
	fontSize          opt[float64]
	fontColor         opt[string]
	fontName          opt[string]
	alignment         opt[string]
	wrapText          opt[bool]
	backgroundColor   opt[string]
	format            opt[string]
	border            *Border

	id         int
	registered bool
}

// NewStyle returns an empty style.
func NewStyle() *Style { return &Style{} }

// IsEmpty reports whether no setter has run on the style.
func (s *Style) IsEmpty() bool {
	return !s.fontBold.set && !s.fontItalic.set && !s.fontUnderline.set &&
		!s.fontStrikethrough.set && !s.fontSize.set && !s.fontColor.set &&
		!s.fontName.set && !s.alignment.set && !s.wrapText.set &&
		!s.backgroundColor.set && !s.format.set && s.border == nil
}

// ── font ──────────────────────────────────────────────────────────────────────

func (s *Style) SetFontBold() *Style          { s.fontBold.with(true); return s }
func (s *Style) SetFontItalic() *Style        { s.fontItalic.with(true); return s }
func (s *Style) SetFontUnderline() *Style     { s.fontUnderline.with(true); return s }
func (s *Style) SetFontStrikethrough() *Style { s.fontStrikethrough.with(true); return s }

func (s *Style) SetFontSize(size float64) *Style { s.fontSize.with(size); return s }
func (s *Style) SetFontColor(color string) *Style { s.fontColor.with(color); return s }
func (s *Style) SetFontName(name string) *Style   { s.fontName.with(name); return s }

func (s *Style) FontBold() bool          { return s.fontBold.or(false) }
func (s *Style) FontItalic() bool        { return s.fontItalic.or(false) }
func (s *Style) FontUnderline() bool     { return s.fontUnderline.or(false) }
func (s *Style) FontStrikethrough() bool { return s.fontStrikethrough.or(false) }
func (s *Style) FontSize() float64       { return s.fontSize.or(DefaultFontSize) }
func (s *Style) FontColor() string       { return s.fontColor.or(DefaultFontColor) }
func (s *Style) FontName() string        { return s.fontName.or(DefaultFontName) }

// HasFont reports whether any font property was explicitly set.
func (s *Style) HasFont() bool {
	return s.fontBold.set || s.fontItalic.set || s.fontUnderline.set ||
		s.fontStrikethrough.set || s.fontSize.set || s.fontColor.set ||
		s.fontName.set
}

// ── alignment / wrapping ─────────────────────────────────────────────────────

func (s *Style) SetAlignment(a string) *Style   { s.alignment.with(a); return s }
func (s *Style) SetShouldWrapText() *Style      { s.wrapText.with(true); return s }

func (s *Style) Alignment() string    { return s.alignment.or("") }
func (s *Style) HasAlignment() bool   { return s.alignment.set }
func (s *Style) ShouldWrapText() bool { return s.wrapText.or(false) }
func (s *Style) HasWrapText() bool    { return s.wrapText.set }

// ── fill / format / border ───────────────────────────────────────────────────

func (s *Style) SetBackgroundColor(color string) *Style { s.backgroundColor.with(color); return s }
func (s *Style) SetFormat(format string) *Style         { s.format.with(format); return s }
func (s *Style) SetBorder(b *Border) *Style             { s.border = b; return s }

func (s *Style) BackgroundColor() string  { return s.backgroundColor.or("") }
func (s *Style) HasBackgroundColor() bool { return s.backgroundColor.set }
func (s *Style) Format() string           { return s.format.or("") }
func (s *Style) HasFormat() bool          { return s.format.set }
func (s *Style) Border() *Border          { return s.border }
func (s *Style) HasBorder() bool          { return s.border != nil }

// ── registration ─────────────────────────────────────────────────────────────

// ID returns the registry-assigned style ID, valid only when Registered.
func (s *Style) ID() int { return s.id }

// Registered reports whether a registry has assigned the style an ID.
func (s *Style) Registered() bool { return s.registered }

// MarkRegistered freezes the style's identity under the given non-negative
// ID.  Style registries call this exactly once per deduplicated style.
func (s *Style) MarkRegistered(id int) {
	s.id = id
	s.registered = true
}

// Merge returns a style combining the receiver with base: every property
// explicitly set on the receiver wins, absent properties inherit base's
// explicit values.  Neither input is mutated and the result is unregistered.
func (s *Style) Merge(base *Style) *Style {
	if base == nil {
		base = NewStyle()
	}
	out := &Style{
		fontBold:          s.fontBold,
		fontItalic:        s.fontItalic,
		fontUnderline:     s.fontUnderline,
		fontStrikethrough: s.fontStrikethrough,
		fontSize:          s.fontSize,
		fontColor:         s.fontColor,
		fontName:          s.fontName,
		alignment:         s.alignment,
		wrapText:          s.wrapText,
		backgroundColor:   s.backgroundColor,
		format:            s.format,
		border:            s.border,
	}
	out.fontBold.inherit(base.fontBold)
	out.fontItalic.inherit(base.fontItalic)
	out.fontUnderline.inherit(base.fontUnderline)
	out.fontStrikethrough.inherit(base.fontStrikethrough)
	out.fontSize.inherit(base.fontSize)
	out.fontColor.inherit(base.fontColor)
	out.fontName.inherit(base.fontName)
	out.alignment.inherit(base.alignment)
	out.wrapText.inherit(base.wrapText)
	out.backgroundColor.inherit(base.backgroundColor)
	out.format.inherit(base.format)
	if out.border == nil {
		out.border = base.border
	}
	return out
}

// Key returns the canonical ID-independent serialization of the style.
// Two styles with identical property values share a Key, which is what
// style registries deduplicate on.
func (s *Style) Key() string {
	var b strings.Builder
	writeOpt := func(name string, o opt[string]) {
		if o.set {
			fmt.Fprintf(&b, "%s=%s;", name, o.v)
		}
	}
	writeBool := func(name string, o opt[bool]) {
		if o.set {
			fmt.Fprintf(&b, "%s=%t;", name, o.v)
		}
	}
	writeBool("b", s.fontBold)
	writeBool("i", s.fontItalic)
	writeBool("u", s.fontUnderline)
	writeBool("strike", s.fontStrikethrough)
	if s.fontSize.set {
		fmt.Fprintf(&b, "sz=%g;", s.fontSize.v)
	}
	writeOpt("color", s.fontColor)
	writeOpt("font", s.fontName)
	writeOpt("align", s.alignment)
	writeBool("wrap", s.wrapText)
	writeOpt("bg", s.backgroundColor)
	writeOpt("fmt", s.format)
	if s.border != nil {
		fmt.Fprintf(&b, "border=%s;", s.border.Key())
	}
	return b.String()
}
