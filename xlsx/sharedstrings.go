package xlsx

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/silecs/spout/internal/xmlparse"
)

const (
	// defaultMemoryBudget caps the in-memory shared-strings index before it
	// spills to disk.
	defaultMemoryBudget = 64 << 20
	// perStringCostEstimate is the assumed memory cost of one indexed
	// string, slice overhead included.  declared-count × this estimate
	// against the budget decides memory vs disk before any string is read.
	perStringCostEstimate = 1 << 10
)

type indexConfig struct {
	memoryBudget int
	tempDir      string
	log          *slog.Logger
}

// sharedStrings is the fully-indexed shared-strings table.  Small tables
// live in a slice; tables whose declared size outgrows the memory budget
// are written to a length-prefixed scratch file with only the offsets kept
// in memory.
type sharedStrings struct {
	strings []string

	file    *os.File
	offsets []int64
}

// indexSharedStrings reads the whole sharedStrings part.  The layout
// decision is made up front from the declared unique count, so the index
// never starts in memory and migrates mid-parse.
func indexSharedStrings(r io.Reader, cfg indexConfig) (*sharedStrings, error) {
	cur := xmlparse.NewCursor(r)

	root, err := cur.NextStart()
	if err != nil {
		return nil, fmt.Errorf("shared strings: missing sst root: %w", err)
	}
	if root.Name.Local != "sst" {
		return nil, fmt.Errorf("shared strings: unexpected root element %q", root.Name.Local)
	}

	declared := 0
	if v := xmlparse.Attr(root, "uniqueCount"); v != "" {
		declared, _ = strconv.Atoi(v)
	} else if v := xmlparse.Attr(root, "count"); v != "" {
		declared, _ = strconv.Atoi(v)
	}

	sst := &sharedStrings{}
	toDisk := declared > 0 && cfg.memoryBudget > 0 &&
		declared > cfg.memoryBudget/perStringCostEstimate
	if toDisk {
		f, err := os.CreateTemp(cfg.tempDir, "spout-sst-*")
		if err != nil {
			return nil, fmt.Errorf("shared strings: creating scratch file: %w", err)
		}
		sst.file = f
		sst.offsets = make([]int64, 0, declared)
		if cfg.log != nil {
			cfg.log.Debug("shared strings spilling to disk",
				"declaredCount", declared, "budget", cfg.memoryBudget)
		}
	} else if declared > 0 {
		sst.strings = make([]string, 0, declared)
	}

	for {
		tok, err := cur.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			sst.close()
			return nil, fmt.Errorf("shared strings: %w", err)
		}
		if _, ok := xmlparse.IsStart(tok, "si"); !ok {
			continue
		}
		text, err := collectStringItem(cur)
		if err != nil {
			sst.close()
			return nil, fmt.Errorf("shared strings: %w", err)
		}
		if err := sst.append(text); err != nil {
			sst.close()
			return nil, err
		}
	}
	return sst, nil
}

// collectStringItem concatenates the text runs of one <si> whose start tag
// was just consumed.  Plain items hold a single <t>; rich-text items hold
// one <t> per <r> run.  Phonetic runs and properties are skipped.
func collectStringItem(cur *xmlparse.Cursor) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := cur.Next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				s, err := cur.CollectText()
				if err != nil {
					return "", err
				}
				sb.WriteString(s)
			case "rPh", "phoneticPr":
				if err := cur.Skip(); err != nil {
					return "", err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return sb.String(), nil
}

func (s *sharedStrings) append(text string) error {
	if s.file == nil {
		s.strings = append(s.strings, text)
		return nil
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(text)))
	offset, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("shared strings: scratch file position: %w", err)
	}
	if _, err := s.file.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("shared strings: writing scratch file: %w", err)
	}
	if _, err := s.file.WriteString(text); err != nil {
		return fmt.Errorf("shared strings: writing scratch file: %w", err)
	}
	s.offsets = append(s.offsets, offset)
	return nil
}

// get resolves a shared-string index from either layout.
func (s *sharedStrings) get(idx int) (string, error) {
	if s.file == nil {
		if idx < 0 || idx >= len(s.strings) {
			return "", fmt.Errorf("shared strings: index %d out of range (%d entries)", idx, len(s.strings))
		}
		return s.strings[idx], nil
	}
	if idx < 0 || idx >= len(s.offsets) {
		return "", fmt.Errorf("shared strings: index %d out of range (%d entries)", idx, len(s.offsets))
	}
	var lenBuf [4]byte
	if _, err := s.file.ReadAt(lenBuf[:], s.offsets[idx]); err != nil {
		return "", fmt.Errorf("shared strings: reading scratch file: %w", err)
	}
	buf := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := s.file.ReadAt(buf, s.offsets[idx]+4); err != nil {
		return "", fmt.Errorf("shared strings: reading scratch file: %w", err)
	}
	return string(buf), nil
}

// close removes the scratch file, if one was created.
func (s *sharedStrings) close() error {
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	name := f.Name()
	err := f.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	if err != nil {
		return fmt.Errorf("shared strings: releasing scratch file: %w", err)
	}
	return nil
}
