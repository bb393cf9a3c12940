// Package pdftest builds small in-memory PDF documents and inspects their
// pages. It is used by tests across the module.
package pdftest

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Corrupt has a PDF header but no objects, so it passes magic-byte
// detection and fails parsing.
var Corrupt = []byte("%PDF-1.4\nthis is not really a pdf\n%%EOF\n")

// Marker is the text drawn on page n of a document built with label.
func Marker(label string, n int) string {
	return fmt.Sprintf("%s page %d", label, n)
}

// Build returns a valid PDF with pages pages. Page n shows Marker(label, n).
func Build(label string, pages int) []byte {
	texts := make([]string, pages)
	for i := range texts {
		texts[i] = Marker(label, i+1)
	}
	return BuildTexts(texts...)
}

// BuildTexts returns a valid PDF with one page per text.
func BuildTexts(texts ...string) []byte {
	// 1 catalog, 2 pages tree, 3 font, then page/content pairs.
	n := len(texts)
	total := 3 + 2*n
	offsets := make([]int, total+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	kids := make([]string, n)
	for i := range texts {
		kids[i] = strconv.Itoa(4+2*i) + " 0 R"
	}

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range texts {
		page, content := 4+2*i, 5+2*i
		stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escape(text) + ") Tj\nET"

		offsets[page] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", page, content)
		offsets[content] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", content, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return []byte(b.String())
}

var showText = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)

// PageTexts parses data and returns the text shown on each page, in page order.
func PageTexts(data []byte) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	out := make([]string, 0, ctx.PageCount)
	for p := 1; p <= ctx.PageCount; p++ {
		r, err := pdfcpu.ExtractPageContent(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		var parts []string
		for _, m := range showText.FindAllSubmatch(content, -1) {
			parts = append(parts, unescape(string(m[1])))
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out, nil
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

func unescape(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\(`, "(", `\)`, ")").Replace(s)
}
