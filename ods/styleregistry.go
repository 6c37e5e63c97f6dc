package ods

import (
	"fmt"
	"sort"
	"strings"

	"github.com/silecs/spout"
)

// Fixed data-style names, one per value category.  Their definitions are a
// constant block in styles.xml; cell styles reference them by name.
const (
	dataStyleNumber   = "N0"
	dataStyleBoolean  = "N99"
	dataStyleDateTime = "N72"
)

// styleRegistry deduplicates the cell styles of one write session and
// tracks which font names the document uses.  Style IDs are 0-based and
// serialize as ce{id+1}; ID 0 is the empty default style every cell falls
// back to.
type styleRegistry struct {
	styles     []*spout.Style
	dataStyles []string // parallel to styles
	byKey      map[string]int
	usedFonts  map[string]struct{}
}

func newStyleRegistry() *styleRegistry {
	r := &styleRegistry{
		byKey:     make(map[string]int),
		usedFonts: map[string]struct{}{spout.DefaultFontName: {}},
	}
	r.register(spout.NewStyle(), dataStyleNumber)
	return r
}

// register returns the ID for style rendered with the given data style,
// reusing an existing entry when an identical pair was seen before.
func (r *styleRegistry) register(style *spout.Style, dataStyle string) int {
	key := style.Key() + "|" + dataStyle
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := len(r.styles)
	r.styles = append(r.styles, style)
	r.dataStyles = append(r.dataStyles, dataStyle)
	r.byKey[key] = id
	style.MarkRegistered(id)
	if style.HasFont() {
		r.usedFonts[style.FontName()] = struct{}{}
	}
	return id
}

// dataStyleFor picks the data style matching a cell's value category.
func dataStyleFor(typ spout.CellType) string {
	switch typ {
	case spout.CellTypeBoolean:
		return dataStyleBoolean
	case spout.CellTypeDate:
		return dataStyleDateTime
	default:
		return dataStyleNumber
	}
}

// fontNames returns the used font names in stable order.
func (r *styleRegistry) fontNames() []string {
	names := make([]string, 0, len(r.usedFonts))
	for name := range r.usedFonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fontFaceDeclsXML renders the office:font-face-decls section shared by
// content.xml and styles.xml.
func (r *styleRegistry) fontFaceDeclsXML() string {
	var sb strings.Builder
	sb.WriteString(`<office:font-face-decls>`)
	for _, name := range r.fontNames() {
		fmt.Fprintf(&sb, `<style:font-face style:name="%s" svg:font-family="%s"/>`,
			escapeXML(name), escapeXML(name))
	}
	sb.WriteString(`</office:font-face-decls>`)
	return sb.String()
}

// contentAutomaticStylesXML renders the automatic-styles section of
// content.xml: every registered cell style, the fixed column and row
// styles, and one table style per sheet carrying its visibility.
func (r *styleRegistry) contentAutomaticStylesXML(sheets []*writerSheet) string {
	var sb strings.Builder
	sb.WriteString(`<office:automatic-styles>`)
	for id, style := range r.styles {
		sb.WriteString(r.cellStyleXML(id, style))
	}
	sb.WriteString(`<style:style style:family="table-column" style:name="co1">` +
		`<style:table-column-properties fo:break-before="auto"/>` +
		`</style:style>`)
	sb.WriteString(`<style:style style:family="table-row" style:name="ro1">` +
		`<style:table-row-properties fo:break-before="auto" style:row-height="15pt" style:use-optimal-row-height="true"/>` +
		`</style:style>`)
	for _, sheet := range sheets {
		fmt.Fprintf(&sb, `<style:style style:family="table" style:master-page-name="mp%d" style:name="ta%d">`+
			`<style:table-properties style:writing-mode="lr-tb" table:display="true"/>`+
			`</style:style>`, sheet.index+1, sheet.index+1)
	}
	sb.WriteString(`</office:automatic-styles>`)
	return sb.String()
}

func (r *styleRegistry) cellStyleXML(id int, style *spout.Style) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<style:style style:data-style-name="%s" style:family="table-cell" style:name="ce%d" style:parent-style-name="Default">`,
		r.dataStyles[id], id+1)
	sb.WriteString(textPropertiesXML(style))
	sb.WriteString(paragraphPropertiesXML(style))
	sb.WriteString(tableCellPropertiesXML(style))
	sb.WriteString(`</style:style>`)
	return sb.String()
}

func textPropertiesXML(style *spout.Style) string {
	if !style.HasFont() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<style:text-properties`)
	if c := style.FontColor(); c != spout.DefaultFontColor {
		fmt.Fprintf(&sb, ` fo:color="#%s"`, c)
	}
	if name := style.FontName(); name != spout.DefaultFontName {
		fmt.Fprintf(&sb, ` style:font-name="%s" style:font-name-asian="%s" style:font-name-complex="%s"`,
			escapeXML(name), escapeXML(name), escapeXML(name))
	}
	if size := style.FontSize(); size != spout.DefaultFontSize {
		fmt.Fprintf(&sb, ` fo:font-size="%gpt" style:font-size-asian="%gpt" style:font-size-complex="%gpt"`,
			size, size, size)
	}
	if style.FontBold() {
		sb.WriteString(` fo:font-weight="bold" style:font-weight-asian="bold" style:font-weight-complex="bold"`)
	}
	if style.FontItalic() {
		sb.WriteString(` fo:font-style="italic" style:font-style-asian="italic" style:font-style-complex="italic"`)
	}
	if style.FontUnderline() {
		sb.WriteString(` style:text-underline-style="solid" style:text-underline-type="single"`)
	}
	if style.FontStrikethrough() {
		sb.WriteString(` style:text-line-through-style="solid"`)
	}
	sb.WriteString(`/>`)
	return sb.String()
}

func paragraphPropertiesXML(style *spout.Style) string {
	if !style.HasAlignment() {
		return ""
	}
	// "start" and "end" read better across consumers than the equally valid
	// "left" and "right".
	align := style.Alignment()
	switch align {
	case "left":
		align = "start"
	case "right":
		align = "end"
	}
	return fmt.Sprintf(`<style:paragraph-properties fo:text-align="%s"/>`, escapeXML(align))
}

func tableCellPropertiesXML(style *spout.Style) string {
	if !style.HasWrapText() && !style.HasBorder() && !style.HasBackgroundColor() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<style:table-cell-properties`)
	if style.ShouldWrapText() {
		sb.WriteString(` fo:wrap-option="wrap" style:vertical-align="automatic"`)
	}
	if style.HasBorder() {
		for _, part := range style.Border().Parts() {
			fmt.Fprintf(&sb, ` fo:border-%s="%s %s #%s"`,
				part.Name, borderWidthPt(part.Width), borderLineStyle(part.Style), part.Color)
		}
	}
	if style.HasBackgroundColor() {
		fmt.Fprintf(&sb, ` fo:background-color="#%s"`, style.BackgroundColor())
	}
	sb.WriteString(`/>`)
	return sb.String()
}

func borderWidthPt(width string) string {
	switch width {
	case spout.BorderWidthThin:
		return "0.75pt"
	case spout.BorderWidthThick:
		return "2.5pt"
	default:
		return "1.75pt"
	}
}

func borderLineStyle(style string) string {
	switch style {
	case spout.BorderStyleDashed:
		return "dashed"
	case spout.BorderStyleDotted:
		return "dotted"
	case spout.BorderStyleDouble:
		return "double"
	default:
		return "solid"
	}
}

// stylesXMLContent renders the styles.xml part: font faces, the fixed data
// styles, the Default cell style, and one page layout + master page pair
// per sheet, which the table styles in content.xml point back to.
func (r *styleRegistry) stylesXMLContent(numSheets int) []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<office:document-styles office:version="1.2"` +
		` xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"` +
		` xmlns:number="urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0"` +
		` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"` +
		` xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"` +
		` xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"` +
		` xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"` +
		` xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">`)

	sb.WriteString(r.fontFaceDeclsXML())

	sb.WriteString(`<office:styles>`)
	sb.WriteString(`<number:number-style style:name="N0"><number:number number:min-integer-digits="1"/></number:number-style>`)
	sb.WriteString(`<number:boolean-style style:name="N99"><number:boolean/></number:boolean-style>`)
	sb.WriteString(`<number:date-style style:name="N72" number:automatic-order="true">` +
		`<number:day number:style="long"/><number:text>/</number:text>` +
		`<number:month number:style="long"/><number:text>/</number:text>` +
		`<number:year number:style="long"/><number:text> </number:text>` +
		`<number:hours number:style="long"/><number:text>:</number:text>` +
		`<number:minutes number:style="long"/>` +
		`</number:date-style>`)
	defaultStyle := spout.NewStyle()
	fmt.Fprintf(&sb, `<style:style style:data-style-name="N0" style:family="table-cell" style:name="Default">`+
		`<style:text-properties fo:color="#%s"`+
		` fo:font-size="%gpt" style:font-size-asian="%gpt" style:font-size-complex="%gpt"`+
		` style:font-name="%s" style:font-name-asian="%s" style:font-name-complex="%s"/>`+
		`</style:style>`,
		defaultStyle.FontColor(),
		defaultStyle.FontSize(), defaultStyle.FontSize(), defaultStyle.FontSize(),
		defaultStyle.FontName(), defaultStyle.FontName(), defaultStyle.FontName())
	sb.WriteString(`</office:styles>`)

	sb.WriteString(`<office:automatic-styles>`)
	for i := 1; i <= numSheets; i++ {
		fmt.Fprintf(&sb, `<style:page-layout style:name="pm%d">`+
			`<style:page-layout-properties style:first-page-number="continue" style:print="objects charts drawings" style:table-centering="none"/>`+
			`</style:page-layout>`, i)
	}
	sb.WriteString(`</office:automatic-styles>`)

	sb.WriteString(`<office:master-styles>`)
	for i := 1; i <= numSheets; i++ {
		fmt.Fprintf(&sb, `<style:master-page style:name="mp%d" style:page-layout-name="pm%d"/>`, i, i)
	}
	sb.WriteString(`</office:master-styles>`)

	sb.WriteString(`</office:document-styles>`)
	return []byte(sb.String())
}
