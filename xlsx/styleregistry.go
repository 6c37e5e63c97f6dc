package xlsx

import (
	"fmt"
	"strings"

	"github.com/silecs/spout"
	"github.com/silecs/spout/numfmt"
)

// firstCustomFormatID is where custom number-format IDs start; everything
// below is reserved for the built-in table.
const firstCustomFormatID = 164

// styleRegistry assigns stable IDs to the styles a write session uses and
// emits the styles part at close.  Fonts are emitted one per style in
// registration order; fills, borders, and number formats are deduplicated
// into their own tables.  The default style (ID 0) deliberately carries no
// fill or border override so untouched cells keep a plain background.
type styleRegistry struct {
	styles []*spout.Style
	byKey  map[string]int

	fills   []string // background colors, entry i → fill ID i+2
	fillIDs map[string]int

	borders   []*spout.Border // entry i → border ID i+1
	borderIDs map[string]int

	formats   []string // custom format codes, entry i → ID 164+i
	formatIDs map[string]int

	fillForStyle   map[int]int
	borderForStyle map[int]int
	formatForStyle map[int]int

	builtinFormatIDs map[string]int
}

func newStyleRegistry() *styleRegistry {
	reg := &styleRegistry{
		byKey:            make(map[string]int),
		fillIDs:          make(map[string]int),
		borderIDs:        make(map[string]int),
		formatIDs:        make(map[string]int),
		fillForStyle:     make(map[int]int),
		borderForStyle:   make(map[int]int),
		formatForStyle:   make(map[int]int),
		builtinFormatIDs: invertBuiltinFormats(),
	}
	reg.register(spout.NewStyle()) // ID 0, the default style
	return reg
}

// invertBuiltinFormats maps canonical built-in format codes back to their
// reserved IDs.  Lower IDs win where locale variants repeat a code.
func invertBuiltinFormats() map[string]int {
	m := make(map[string]int)
	for id := 0; id < firstCustomFormatID; id++ {
		code, ok := numfmt.BuiltInFormats[id]
		if !ok {
			continue
		}
		if _, seen := m[code]; !seen {
			m[code] = id
		}
	}
	return m
}

// register returns the ID for style, assigning a new one only for property
// combinations not seen before in this session.
func (reg *styleRegistry) register(style *spout.Style) int {
	key := style.Key()
	if id, ok := reg.byKey[key]; ok {
		style.MarkRegistered(id)
		return id
	}
	id := len(reg.styles)
	reg.styles = append(reg.styles, style)
	reg.byKey[key] = id
	style.MarkRegistered(id)

	// Style 0 stays off the fill/border/format tables.
	if id == 0 {
		return id
	}
	if style.HasBackgroundColor() {
		reg.fillForStyle[id] = reg.fillID(style.BackgroundColor())
	}
	if style.HasBorder() {
		reg.borderForStyle[id] = reg.borderID(style.Border())
	}
	if style.HasFormat() {
		reg.formatForStyle[id] = reg.formatID(style.Format())
	}
	return id
}

func (reg *styleRegistry) fillID(color string) int {
	if id, ok := reg.fillIDs[color]; ok {
		return id
	}
	id := len(reg.fills) + 2 // 0 = none, 1 = gray125, both reserved
	reg.fills = append(reg.fills, color)
	reg.fillIDs[color] = id
	return id
}

func (reg *styleRegistry) borderID(b *spout.Border) int {
	key := b.Key()
	if id, ok := reg.borderIDs[key]; ok {
		return id
	}
	id := len(reg.borders) + 1 // 0 = default empty border
	reg.borders = append(reg.borders, b)
	reg.borderIDs[key] = id
	return id
}

func (reg *styleRegistry) formatID(code string) int {
	if id, ok := reg.builtinFormatIDs[code]; ok {
		return id
	}
	if id, ok := reg.formatIDs[code]; ok {
		return id
	}
	id := firstCustomFormatID + len(reg.formats)
	reg.formats = append(reg.formats, code)
	reg.formatIDs[code] = id
	return id
}

// stylesXML renders the complete styles part.
func (reg *styleRegistry) stylesXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	sb.WriteString("\n")
	sb.WriteString(`<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">`)

	if len(reg.formats) > 0 {
		fmt.Fprintf(&sb, `<numFmts count="%d">`, len(reg.formats))
		for i, code := range reg.formats {
			fmt.Fprintf(&sb, `<numFmt numFmtId="%d" formatCode="%s"/>`,
				firstCustomFormatID+i, escapeXML(code))
		}
		sb.WriteString(`</numFmts>`)
	}

	fmt.Fprintf(&sb, `<fonts count="%d">`, len(reg.styles))
	for _, style := range reg.styles {
		reg.writeFont(&sb, style)
	}
	sb.WriteString(`</fonts>`)

	fmt.Fprintf(&sb, `<fills count="%d">`, len(reg.fills)+2)
	sb.WriteString(`<fill><patternFill patternType="none"/></fill>`)
	sb.WriteString(`<fill><patternFill patternType="gray125"/></fill>`)
	for _, color := range reg.fills {
		fmt.Fprintf(&sb,
			`<fill><patternFill patternType="solid"><fgColor rgb="FF%s"/><bgColor rgb="FF%s"/></patternFill></fill>`,
			escapeXML(color), escapeXML(color))
	}
	sb.WriteString(`</fills>`)

	fmt.Fprintf(&sb, `<borders count="%d">`, len(reg.borders)+1)
	sb.WriteString(`<border><left/><right/><top/><bottom/><diagonal/></border>`)
	for _, b := range reg.borders {
		reg.writeBorder(&sb, b)
	}
	sb.WriteString(`</borders>`)

	sb.WriteString(`<cellStyleXfs count="1"><xf borderId="0" fillId="0" fontId="0" numFmtId="0"/></cellStyleXfs>`)

	fmt.Fprintf(&sb, `<cellXfs count="%d">`, len(reg.styles))
	for id, style := range reg.styles {
		reg.writeCellXf(&sb, id, style)
	}
	sb.WriteString(`</cellXfs>`)

	sb.WriteString(`<cellStyles count="1"><cellStyle builtinId="0" name="Normal" xfId="0"/></cellStyles>`)
	sb.WriteString(`</styleSheet>`)
	return []byte(sb.String())
}

func (reg *styleRegistry) writeFont(sb *strings.Builder, style *spout.Style) {
	sb.WriteString(`<font>`)
	if style.FontBold() {
		sb.WriteString(`<b/>`)
	}
	if style.FontItalic() {
		sb.WriteString(`<i/>`)
	}
	if style.FontUnderline() {
		sb.WriteString(`<u/>`)
	}
	if style.FontStrikethrough() {
		sb.WriteString(`<strike/>`)
	}
	fmt.Fprintf(sb, `<sz val="%g"/>`, style.FontSize())
	fmt.Fprintf(sb, `<color rgb="FF%s"/>`, escapeXML(style.FontColor()))
	fmt.Fprintf(sb, `<name val="%s"/>`, escapeXML(style.FontName()))
	sb.WriteString(`</font>`)
}

func (reg *styleRegistry) writeBorder(sb *strings.Builder, b *spout.Border) {
	sb.WriteString(`<border>`)
	for _, name := range []string{spout.BorderLeft, spout.BorderRight, spout.BorderTop, spout.BorderBottom} {
		part, ok := b.Part(name)
		if !ok {
			fmt.Fprintf(sb, `<%s/>`, name)
			continue
		}
		fmt.Fprintf(sb, `<%s style="%s"><color rgb="FF%s"/></%s>`,
			name, borderLineStyle(part), escapeXML(part.Color), name)
	}
	sb.WriteString(`</border>`)
}

func (reg *styleRegistry) writeCellXf(sb *strings.Builder, id int, style *spout.Style) {
	numFmtID := reg.formatForStyle[id]
	fillID := reg.fillForStyle[id]
	borderID := reg.borderForStyle[id]

	fmt.Fprintf(sb, `<xf numFmtId="%d" fontId="%d" fillId="%d" borderId="%d" xfId="0" applyFont="1"`,
		numFmtID, id, fillID, borderID)
	if numFmtID > 0 {
		sb.WriteString(` applyNumberFormat="1"`)
	}
	if fillID > 0 {
		sb.WriteString(` applyFill="1"`)
	}
	if borderID > 0 {
		sb.WriteString(` applyBorder="1"`)
	}
	if style.HasAlignment() || style.HasWrapText() {
		sb.WriteString(` applyAlignment="1"><alignment`)
		if style.HasAlignment() {
			fmt.Fprintf(sb, ` horizontal="%s"`, escapeXML(style.Alignment()))
		}
		if style.ShouldWrapText() {
			sb.WriteString(` wrapText="1"`)
		}
		sb.WriteString(`/></xf>`)
		return
	}
	sb.WriteString(`/>`)
}

// borderLineStyle maps a border part's style/width pair to the format's
// line-style token.
func borderLineStyle(part spout.BorderPart) string {
	switch part.Style {
	case spout.BorderStyleNone:
		return "none"
	case spout.BorderStyleDouble:
		return "double"
	case spout.BorderStyleDashed:
		if part.Width == spout.BorderWidthThin {
			return "dashed"
		}
		return "mediumDashed"
	case spout.BorderStyleDotted:
		if part.Width == spout.BorderWidthThin {
			return "dotted"
		}
		return "mediumDashed"
	default: // solid
		switch part.Width {
		case spout.BorderWidthThin:
			return "thin"
		case spout.BorderWidthThick:
			return "thick"
		default:
			return "medium"
		}
	}
}
