// Package mupdf extracts plain text from PDF bytes with MuPDF (go-fitz).
package mupdf

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

var ErrNoOpener = errors.New("no PDF opener configured")

// Doc abstracts an opened PDF. Page indices are 0-based.
type Doc interface {
	NumPage() int
	Text(pageIndex int) (string, error)
	Close() error
}

// Opener opens PDF bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

type fitzOpener struct{}

func (fitzOpener) Open(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Extractor reads text out of PDF documents.
type Extractor struct {
	opener Opener
}

// NewExtractor returns an extractor backed by go-fitz.
func NewExtractor() *Extractor { return &Extractor{opener: fitzOpener{}} }

// NewExtractorWithOpener swaps the backend, useful for tests.
func NewExtractorWithOpener(o Opener) *Extractor { return &Extractor{opener: o} }

// IsAvailable reports whether a backend is configured.
func (e *Extractor) IsAvailable() bool { return e != nil && e.opener != nil }

// Text is the cleaned text of a document.
type Text struct {
	Pages     int
	Content   string
	Truncated bool
}

// ExtractText returns the cleaned text of every page, separated by page
// markers. Content is cut at maxChars runes when maxChars > 0.
func (e *Extractor) ExtractText(data []byte, maxChars int) (Text, error) {
	if !e.IsAvailable() {
		return Text{}, ErrNoOpener
	}
	doc, err := e.opener.Open(data)
	if err != nil {
		return Text{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	var b strings.Builder
	for i := 0; i < total; i++ {
		raw, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("failed to extract text from page")
			continue
		}
		cleaned := cleanText(raw, i+1)
		if cleaned == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, cleaned)
	}

	out := Text{Pages: total, Content: b.String()}
	if maxChars > 0 {
		if r := []rune(out.Content); len(r) > maxChars {
			out.Content = string(r[:maxChars])
			out.Truncated = true
		}
	}
	log.Debug().Int("pages", total).Int("chars", len(out.Content)).Bool("truncated", out.Truncated).Msg("extracted text")
	return out, nil
}

// PageProbe captures the result of probing a single page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes one extractable-text check.
type Diagnostics struct {
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// HasExtractableText samples up to five pages and reports whether they carry
// at least threshold non-whitespace characters. Scanned documents fail this.
func (e *Extractor) HasExtractableText(data []byte, threshold int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if !e.IsAvailable() {
		return false, nil, ErrNoOpener
	}

	start := time.Now()
	doc, err := e.opener.Open(data)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	diag := &Diagnostics{TotalPages: total, Threshold: threshold, SampledPages: sampleIndices(total)}

	for _, idx := range diag.SampledPages {
		probe := PageProbe{PageIndex: idx}
		text, terr := doc.Text(idx)
		if terr != nil {
			probe.Err = terr.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		probe.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}

	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag.HasExtractableText, diag, nil
}

// sampleIndices picks all pages when there are at most five, otherwise
// first, middle, last and two random distinct pages.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	base := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for len(base) < 5 {
		base[rnd.Intn(total)] = struct{}{}
	}
	out := make([]int, 0, len(base))
	for i := range base {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// cleanText drops page numbers, running headers and noise lines, then joins
// lines broken mid-sentence.
func cleanText(text string, pageNum int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isPageNumber(trimmed, pageNum) || isHeaderFooter(trimmed) || isNoise(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(fixBrokenLines(kept))
}

func isPageNumber(line string, pageNum int) bool {
	for _, pattern := range []string{
		fmt.Sprintf("%d", pageNum),
		fmt.Sprintf("Page %d", pageNum),
		fmt.Sprintf("- %d -", pageNum),
		fmt.Sprintf("[%d]", pageNum),
	} {
		if strings.EqualFold(line, pattern) {
			return true
		}
	}
	return false
}

func isHeaderFooter(line string) bool {
	upper := strings.ToUpper(line)
	if len(line) < 100 {
		for _, pattern := range []string{"CONFIDENTIAL", "COPYRIGHT", "ALL RIGHTS RESERVED", "PROPRIETARY"} {
			if strings.Contains(upper, pattern) {
				return true
			}
		}
	}
	return false
}

func isNoise(line string) bool {
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 0x7f {
			return false
		}
	}
	return true
}

func fixBrokenLines(lines []string) string {
	var fixed []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i < len(lines)-1 {
			next := lines[i+1]
			last := line[len(line)-1]
			sentenceEnd := strings.ContainsRune(".!?:;", rune(last))
			if !sentenceEnd && last != '-' && next[0] >= 'a' && next[0] <= 'z' {
				fixed = append(fixed, line+" "+next)
				i++
				continue
			}
		}
		fixed = append(fixed, line)
	}
	return strings.Join(fixed, "\n")
}
