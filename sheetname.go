package spout

import (
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is the character ceiling for a sheet name.
const MaxSheetNameLength = 31

// invalidSheetNameChars are the characters a sheet name must not contain.
const invalidSheetNameChars = `\/?*:[]`

// SheetNameRegistry enforces name uniqueness within one workbook.  Each
// writer workbook owns its own registry, so identical names in two
// independently-created workbooks never collide.  Mutation happens only at
// sheet-creation or rename time; there is no concurrent access.
type SheetNameRegistry struct {
	// names maps sheet index → current name.
	names map[int]string
}

// NewSheetNameRegistry returns an empty registry.
func NewSheetNameRegistry() *SheetNameRegistry {
	return &SheetNameRegistry{names: make(map[int]string)}
}

// Validate checks name against every sheet-name rule for the sheet at
// sheetIndex and returns a *SheetNameError enumerating all failed rules, or
// nil when the name is acceptable.  A name identical to the one already
// registered for sheetIndex is fine (renaming a sheet to its own name).
func (r *SheetNameRegistry) Validate(name string, sheetIndex int) error {
	var violations []string

	if !r.isUnique(name, sheetIndex) {
		violations = append(violations, "it should be unique")
	} else {
		switch n := utf8.RuneCountInString(name); {
		case n == 0:
			violations = append(violations, "it should not be blank")
		default:
			if n > MaxSheetNameLength {
				violations = append(violations, "it should not exceed 31 characters")
			}
			if strings.ContainsAny(name, invalidSheetNameChars) {
				violations = append(violations, `it should not contain these characters: \ / ? * : [ or ]`)
			}
			if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
				violations = append(violations, "it should not start or end with a single quote")
			}
		}
	}

	if len(violations) > 0 {
		return &SheetNameError{Name: name, Violations: violations}
	}
	return nil
}

// Register records name as used by the sheet at sheetIndex.  Call only after
// Validate accepted the name.
func (r *SheetNameRegistry) Register(name string, sheetIndex int) {
	r.names[sheetIndex] = name
}

func (r *SheetNameRegistry) isUnique(name string, sheetIndex int) bool {
	for idx, used := range r.names {
		if idx != sheetIndex && used == name {
			return false
		}
	}
	return true
}
