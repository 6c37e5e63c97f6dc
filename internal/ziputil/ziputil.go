// Package ziputil is the archive-container layer behind the XLSX and ODS
// adapters.  Both formats treat their file as an opaque multi-entry store;
// this package owns opening, entry lookup, and streaming assembly.
//
// Writers register a klauspost/compress flate compressor on the archive:
// sheet parts are large and highly repetitive, and the faster deflate makes
// final assembly the cheap step it should be.
package ziputil

import (
	"archive/zip"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
)

// Archive is a read-only open container.
type Archive struct {
	zr *zip.ReadCloser
}

// Open opens the named archive file.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("ziputil: open %q: %w", path, err)
	}
	return &Archive{zr: zr}, nil
}

// Entry returns a reader over the named entry.  The caller must close it.
func (a *Archive) Entry(name string) (io.ReadCloser, error) {
	for _, f := range a.zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("ziputil: open entry %q: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("ziputil: entry %q not found in archive", name)
}

// EntryBytes reads the named entry fully into memory.  Use only for small
// fixed-size parts; bulk parts should stream through Entry.
func (a *Archive) EntryBytes(name string) ([]byte, error) {
	rc, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, fmt.Errorf("ziputil: read entry %q: %w", name, readErr)
	}
	// A decompressor checksum failure only surfaces at close time.
	if closeErr != nil {
		return nil, fmt.Errorf("ziputil: read entry %q: %w", name, closeErr)
	}
	return data, nil
}

// Has reports whether the archive contains the named entry.
func (a *Archive) Has(name string) bool {
	for _, f := range a.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Close releases the underlying file handle.
func (a *Archive) Close() error { return a.zr.Close() }

// Builder assembles a new archive file entry by entry.
type Builder struct {
	f  *os.File
	zw *zip.Writer
}

// NewBuilder creates the archive file at path and prepares it for entries.
func NewBuilder(path string) (*Builder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ziputil: create %q: %w", path, err)
	}
	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})
	return &Builder{f: f, zw: zw}, nil
}

// AddBytes writes one deflated entry with the given content.
func (b *Builder) AddBytes(name string, data []byte) error {
	w, err := b.zw.Create(name)
	if err != nil {
		return fmt.Errorf("ziputil: create entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ziputil: write entry %q: %w", name, err)
	}
	return nil
}

// AddStoredBytes writes one entry without compression.  The ODS mimetype
// entry must be stored this way (and first) for consumers that sniff it.
func (b *Builder) AddStoredBytes(name string, data []byte) error {
	w, err := b.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("ziputil: create stored entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ziputil: write stored entry %q: %w", name, err)
	}
	return nil
}

// AddFromReader streams one deflated entry from r.
func (b *Builder) AddFromReader(name string, r io.Reader) error {
	w, err := b.zw.Create(name)
	if err != nil {
		return fmt.Errorf("ziputil: create entry %q: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("ziputil: stream entry %q: %w", name, err)
	}
	return nil
}

// Close finalizes the archive central directory and the output file.
func (b *Builder) Close() error {
	if err := b.zw.Close(); err != nil {
		_ = b.f.Close()
		return fmt.Errorf("ziputil: finalize archive: %w", err)
	}
	if err := b.f.Close(); err != nil {
		return fmt.Errorf("ziputil: close archive file: %w", err)
	}
	return nil
}

// Abort drops the partially-written archive file.  Safe to call after a
// failed Close.
func (b *Builder) Abort() {
	_ = b.zw.Close()
	_ = b.f.Close()
	_ = os.Remove(b.f.Name())
}
