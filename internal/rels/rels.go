// Package rels parses OOXML relationship parts (.rels), which map
// relationship IDs to part targets inside an XLSX archive.
package rels

import (
	"encoding/xml"
	"fmt"
)

// Relationships is the root element of a .rels document.
type Relationships struct {
	Relationships []Relationship `xml:"Relationship"`
}

// Relationship is one entry in a .rels document.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// Parse decodes the raw bytes of a .rels part into a relationship ID →
// target map.
func Parse(data []byte) (map[string]string, error) {
	var r Relationships
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("rels: parsing relationships: %w", err)
	}
	m := make(map[string]string, len(r.Relationships))
	for _, rel := range r.Relationships {
		m[rel.ID] = rel.Target
	}
	return m, nil
}
