// Package pdfdoc implements the recompose codec on top of pdfcpu.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/pdfdesk/internal/recompose"
)

var (
	ErrEncrypted = errors.New("document is password protected")
	ErrNoPages   = errors.New("document has no pages")
	ErrEmpty     = errors.New("destination has no pages")
)

func init() {
	// Never read or create ~/.config/pdfcpu on behalf of a request.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Codec satisfies recompose.Codec.
type Codec struct{}

func (Codec) Parse(name string, data []byte) (recompose.Document, error) {
	return Parse(name, data)
}

func (Codec) NewDestination() recompose.Destination { return NewComposer() }

// Document is a parsed PDF. Page extraction is serialized per document
// because pdfcpu resolves objects through the shared source context.
type Document struct {
	name string
	raw  []byte

	mu  sync.Mutex
	ctx *model.Context
}

// Parse reads and validates data. The slice is retained but never modified.
func Parse(name string, data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse %s: %v", name, r)
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), newConfig())
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, fmt.Errorf("parse %s: %w", name, ErrEncrypted)
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("parse %s: %w", name, ErrNoPages)
	}
	return &Document{name: name, raw: data, ctx: ctx}, nil
}

func (d *Document) Name() string { return d.name }

func (d *Document) PageCount() int { return d.ctx.PageCount }

func (d *Document) PageNumbers() []int {
	out := make([]int, d.ctx.PageCount)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Extract copies pages, in the given order, into a new standalone context.
func (d *Document) Extract(pages []int) (ctx *model.Context, err error) {
	for _, p := range pages {
		if p < 1 || p > d.ctx.PageCount {
			return nil, fmt.Errorf("%s: page %d out of range 1-%d", d.name, p, d.ctx.PageCount)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("extract pages from %s: %v", d.name, r)
		}
	}()

	ctx, err = pdfcpu.ExtractPages(d.ctx, pages, false)
	if err != nil {
		return nil, fmt.Errorf("extract pages from %s: %w", d.name, err)
	}
	return ctx, nil
}

// coversAll reports whether pages is exactly 1..PageCount in order.
func (d *Document) coversAll(pages []int) bool {
	if len(pages) != d.ctx.PageCount {
		return false
	}
	for i, p := range pages {
		if p != i+1 {
			return false
		}
	}
	return true
}

func writeContext(ctx *model.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Composer is a destination document built from page runs of parsed documents.
type Composer struct {
	parts []composerPart
	pages int
}

type composerPart struct {
	doc   *Document
	pages []int
}

func NewComposer() *Composer { return &Composer{} }

// Append queues pages of doc. Pages are copied when Bytes is called.
func (c *Composer) Append(doc recompose.Document, pages []int) error {
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("pdfdoc: cannot append %T", doc)
	}
	if len(pages) == 0 {
		return nil
	}
	for _, p := range pages {
		if p < 1 || p > d.PageCount() {
			return fmt.Errorf("%s: page %d out of range 1-%d", d.name, p, d.PageCount())
		}
	}
	c.parts = append(c.parts, composerPart{doc: d, pages: append([]int(nil), pages...)})
	c.pages += len(pages)
	return nil
}

func (c *Composer) PageCount() int { return c.pages }

// Bytes serializes the destination. Whole documents are passed through to the
// merger as-is; partial runs are extracted into their own context first.
func (c *Composer) Bytes() ([]byte, error) {
	if len(c.parts) == 0 {
		return nil, ErrEmpty
	}

	segments := make([][]byte, len(c.parts))
	for i, part := range c.parts {
		if part.doc.coversAll(part.pages) && len(c.parts) > 1 {
			segments[i] = part.doc.raw
			continue
		}
		ctx, err := part.doc.Extract(part.pages)
		if err != nil {
			return nil, &recompose.SourceError{Source: part.doc.name, Err: err}
		}
		seg, err := writeContext(ctx)
		if err != nil {
			return nil, &recompose.SourceError{Source: part.doc.name, Err: fmt.Errorf("write: %w", err)}
		}
		segments[i] = seg
	}

	if len(segments) == 1 {
		return segments[0], nil
	}

	readers := make([]io.ReadSeeker, len(segments))
	for i, seg := range segments {
		readers[i] = bytes.NewReader(seg)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfig()); err != nil {
		return nil, fmt.Errorf("merge %d documents: %w", len(segments), err)
	}
	return out.Bytes(), nil
}
