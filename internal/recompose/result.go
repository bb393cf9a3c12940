package recompose

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Source is one input document. The engine never modifies Data.
type Source struct {
	Name string
	Data []byte
}

// Format is the container type of a Result payload.
type Format int

const (
	FormatPDF Format = iota
	FormatZip
)

func (f Format) MIMEType() string {
	if f == FormatZip {
		return "application/zip"
	}
	return "application/pdf"
}

func (f Format) Extension() string {
	if f == FormatZip {
		return ".zip"
	}
	return ".pdf"
}

// Result is a successful merge or split output.
type Result struct {
	Format   Format
	Data     []byte
	Filename string
	Pages    int
	// Entries lists archive entry names in archive order. Empty for documents.
	Entries []string
}

// DataURI renders the payload as a self-describing data URI.
func (r Result) DataURI() string {
	return EncodeDataURI(r.Format.MIMEType(), r.Data)
}

// EncodeDataURI returns data:<mime>;base64,<payload>.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var ErrMalformedDataURI = errors.New("malformed data uri")

// DecodeDataURI parses a base64 data URI and returns its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformedDataURI)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	return mime, data, nil
}

// baseName strips directories and the extension from a source name.
func baseName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '"', '<', '>', ':', '|', '?', '*', '/':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." {
		return "document"
	}
	return base
}
