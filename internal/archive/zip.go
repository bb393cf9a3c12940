// Package archive packs named byte entries into a single ZIP buffer.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/local/pdfdesk/internal/recompose"
)

var (
	ErrFinalized = errors.New("archive already finalized")
	ErrDuplicate = errors.New("duplicate archive entry")
)

// entryTime is stamped on every entry so equal inputs give equal archives.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Zip is a single-use in-memory archive. It is not safe for concurrent use.
type Zip struct {
	buf       bytes.Buffer
	zw        *zip.Writer
	names     map[string]struct{}
	entries   []string
	finalized bool
}

func NewZip() *Zip {
	z := &Zip{names: map[string]struct{}{}}
	z.zw = zip.NewWriter(&z.buf)
	return z
}

// NewPacker adapts NewZip for the recompose engine.
func NewPacker() recompose.Packer { return NewZip() }

// Add writes one entry. Names must be unique, relative and slash-separated.
func (z *Zip) Add(name string, data []byte) error {
	if z.finalized {
		return ErrFinalized
	}
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid entry name %q", name)
	}
	if _, ok := z.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	w, err := z.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	z.names[name] = struct{}{}
	z.entries = append(z.entries, name)
	return nil
}

// Entries returns entry names in insertion order.
func (z *Zip) Entries() []string { return append([]string(nil), z.entries...) }

// Finalize writes the central directory and returns the archive bytes.
func (z *Zip) Finalize() ([]byte, error) {
	if z.finalized {
		return nil, ErrFinalized
	}
	z.finalized = true
	if err := z.zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return z.buf.Bytes(), nil
}

// Entry is one file read back from an archive.
type Entry struct {
	Name string
	Data []byte
}

// Read returns the entries of a ZIP archive in archive order.
func Read(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	out := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var b bytes.Buffer
		_, err = b.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		out = append(out, Entry{Name: f.Name, Data: b.Bytes()})
	}
	return out, nil
}
