package recompose

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/local/pdfdesk/internal/logger"
)

const (
	opSplit       = "split"
	opSplitRanges = "split_ranges"
)

// part is one output document of a split, named for the archive.
type part struct {
	name  string
	pages []int
}

// Split writes every page of src to its own document and packs them as
// page_1.pdf, page_2.pdf, ... in page order.
func (e *Engine) Split(ctx context.Context, src Source) (Result, error) {
	doc, err := e.open(opSplit, src)
	if err != nil {
		logger.From(ctx).Warn().Err(err).Str("file", src.Name).Msg("split source rejected")
		return Result{}, err
	}
	if doc.PageCount() <= 1 {
		return Result{}, &Error{
			Kind:    ErrDegenerateOperation,
			Op:      opSplit,
			Source:  src.Name,
			Message: "PDF has only one page, no splitting needed.",
		}
	}

	pages := doc.PageNumbers()
	parts := make([]part, len(pages))
	for i, p := range pages {
		parts[i] = part{name: fmt.Sprintf("page_%d.pdf", i+1), pages: []int{p}}
	}
	return e.pack(ctx, opSplit, doc, parts, baseName(src.Name)+"_pages.zip")
}

// SplitRanges writes one document per requested range, named
// split_<start>-<end>.pdf, in request order. No ranges means Split.
func (e *Engine) SplitRanges(ctx context.Context, src Source, ranges []PageRange) (Result, error) {
	if len(ranges) == 0 {
		return e.Split(ctx, src)
	}
	doc, err := e.open(opSplitRanges, src)
	if err != nil {
		logger.From(ctx).Warn().Err(err).Str("file", src.Name).Msg("split source rejected")
		return Result{}, err
	}

	total := doc.PageCount()
	parts := make([]part, 0, len(ranges))
	seen := make(map[string]struct{}, len(ranges))
	for _, r := range ranges {
		if err := r.validate(total); err != nil {
			return Result{}, &Error{
				Kind:    ErrInvalidRange,
				Op:      opSplitRanges,
				Source:  src.Name,
				Message: fmt.Sprintf("Page range %s is not valid for %q: %v.", r, src.Name, err),
			}
		}
		name := fmt.Sprintf("split_%d-%d.pdf", r.Start, r.End)
		if _, dup := seen[name]; dup {
			return Result{}, &Error{
				Kind:    ErrInvalidRange,
				Op:      opSplitRanges,
				Source:  src.Name,
				Message: fmt.Sprintf("Page range %s is requested more than once.", r),
			}
		}
		seen[name] = struct{}{}
		parts = append(parts, part{name: name, pages: r.pages()})
	}
	if len(parts) == 1 && parts[0].pages[0] == 1 && len(parts[0].pages) == total {
		return Result{}, &Error{
			Kind:    ErrDegenerateOperation,
			Op:      opSplitRanges,
			Source:  src.Name,
			Message: "The requested range covers the whole document, no splitting needed.",
		}
	}
	return e.pack(ctx, opSplitRanges, doc, parts, baseName(src.Name)+"_split.zip")
}

// pack renders parts concurrently and archives them in parts order.
func (e *Engine) pack(ctx context.Context, op string, doc Document, parts []part, filename string) (Result, error) {
	log := logger.From(ctx)

	rendered := make([][]byte, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.SplitConcurrency)
	for i, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := e.render(doc, p.pages)
			if err != nil {
				return fmt.Errorf("%s: %w", p.name, err)
			}
			rendered[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, canceled(op, ctxErr)
		}
		log.Error().Err(err).Str("file", doc.Name()).Msg("split page rendering failed")
		return Result{}, &Error{
			Kind:    ErrSerializationFailure,
			Op:      op,
			Source:  doc.Name(),
			Message: fmt.Sprintf("Failed to write the pages of %q.", doc.Name()),
			Err:     err,
		}
	}

	packer := e.newPacker()
	entries := make([]string, len(parts))
	pages := 0
	for i, p := range parts {
		if err := packer.Add(p.name, rendered[i]); err != nil {
			return Result{}, archiveFailure(op, err)
		}
		entries[i] = p.name
		pages += len(p.pages)
	}
	data, err := packer.Finalize()
	if err != nil {
		return Result{}, archiveFailure(op, err)
	}

	log.Info().Str("file", doc.Name()).Int("entries", len(entries)).Int("bytes", len(data)).Msg(op + " complete")
	return Result{
		Format:   FormatZip,
		Data:     data,
		Filename: filename,
		Pages:    pages,
		Entries:  entries,
	}, nil
}

func archiveFailure(op string, err error) *Error {
	return &Error{
		Kind:    ErrSerializationFailure,
		Op:      op,
		Message: "Failed to build the archive.",
		Err:     err,
	}
}

// PageRange is a 1-based inclusive page interval.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r PageRange) String() string {
	if r.Start == r.End {
		return fmt.Sprint(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (r PageRange) validate(total int) error {
	switch {
	case r.Start < 1:
		return errors.New("pages start at 1")
	case r.End < r.Start:
		return errors.New("end is before start")
	case r.End > total:
		return fmt.Errorf("the document has %d pages", total)
	}
	return nil
}

func (r PageRange) pages() []int {
	out := make([]int, 0, r.End-r.Start+1)
	for p := r.Start; p <= r.End; p++ {
		out = append(out, p)
	}
	return out
}
