package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPDF(t *testing.T) {
	d := New()
	info := d.Detect("a.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"))
	assert.Equal(t, MIMEPDF, info.MIMEType)
	assert.True(t, info.Supported)
	assert.NoError(t, d.RequirePDF("a.pdf", []byte("%PDF-1.7\n")))
}

func TestRequirePDFRejectsOtherFormats(t *testing.T) {
	d := New()

	err := d.RequirePDF("notes.pdf", []byte("just some text that pretends to be a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.Contains(t, err.Error(), "Plain text")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	err = d.RequirePDF("image.pdf", png)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.Equal(t, "Image file", d.Detect("image.pdf", png).Description)
}

func TestDetectEmpty(t *testing.T) {
	info := New().Detect("empty.pdf", nil)
	assert.False(t, info.Supported)
}
