package filetype

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const MIMEPDF = "application/pdf"

// ErrNotPDF is returned by RequirePDF when the magic bytes do not identify a PDF.
var ErrNotPDF = errors.New("not a pdf document")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not the filename.
// The name is only used for logging and for the encrypted-archive hint.
func (d *Detector) Detect(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	// mimetype appends parameters for text types
	if i := strings.IndexByte(info.MIMEType, ';'); i > 0 {
		info.MIMEType = info.MIMEType[:i]
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")

	d.classify(name, info)
	return info
}

// classify marks what the recomposition engine accepts as a source.
func (d *Detector) classify(name string, info *FileTypeInfo) {
	switch {
	case info.MIMEType == MIMEPDF:
		info.Supported = true
		info.Description = "PDF document"
	case info.MIMEType == "application/zip":
		info.Description = "ZIP archive"
	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Description = "Image file"
	case strings.HasPrefix(info.MIMEType, "text/"):
		info.Description = "Plain text file"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
	if !info.Supported && strings.EqualFold(filepath.Ext(name), ".pdf") {
		log.Warn().Str("file", name).Str("mime", info.MIMEType).Msg("pdf extension with non-pdf content")
	}
}

// RequirePDF returns ErrNotPDF, wrapped with the detected type, unless data is a PDF.
func (d *Detector) RequirePDF(name string, data []byte) error {
	info := d.Detect(name, data)
	if info.Supported {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotPDF, info.Description)
}
