// Package recompose merges PDF documents into one and splits a document into
// an archive of smaller ones. Operations are all-or-nothing: they return a
// complete Result or an *Error naming the input that caused the failure.
package recompose

// Document is a parsed, page-ordered source document.
type Document interface {
	Name() string
	PageCount() int
	// PageNumbers returns 1-based page numbers in document order.
	PageNumbers() []int
}

// Destination accumulates pages and serializes them as one document.
type Destination interface {
	// Append copies the given pages of doc, in the given order, to the end.
	Append(doc Document, pages []int) error
	PageCount() int
	// Bytes serializes the destination. A failure tied to one appended
	// document is reported as a *SourceError.
	Bytes() ([]byte, error)
}

// Codec parses sources and creates empty destinations.
type Codec interface {
	Parse(name string, data []byte) (Document, error)
	NewDestination() Destination
}

// Packer collects named entries into one archive.
type Packer interface {
	Add(name string, data []byte) error
	Finalize() ([]byte, error)
}

// TypeChecker rejects sources whose content is not a PDF.
type TypeChecker interface {
	RequirePDF(name string, data []byte) error
}

// Options tune the engine. Zero values select defaults.
type Options struct {
	// MinMergeSources is the fewest files Merge accepts. Defaults to 2.
	MinMergeSources int
	// SplitConcurrency bounds the pages split in parallel. Defaults to 4.
	SplitConcurrency int
	// Types checks magic bytes before parsing. Nil skips the check.
	Types TypeChecker
}

// Engine runs merge and split operations. It is safe for concurrent use.
type Engine struct {
	codec     Codec
	newPacker func() Packer
	opts      Options
}

func New(codec Codec, newPacker func() Packer, opts Options) *Engine {
	if opts.MinMergeSources < 1 {
		opts.MinMergeSources = 2
	}
	if opts.SplitConcurrency < 1 {
		opts.SplitConcurrency = 4
	}
	return &Engine{codec: codec, newPacker: newPacker, opts: opts}
}

// MinMergeSources reports the configured merge minimum.
func (e *Engine) MinMergeSources() int { return e.opts.MinMergeSources }

// open validates and parses one source for op.
func (e *Engine) open(op string, src Source) (Document, error) {
	if e.opts.Types != nil {
		if err := e.opts.Types.RequirePDF(src.Name, src.Data); err != nil {
			return nil, wrongType(op, src.Name, err)
		}
	}
	doc, err := e.codec.Parse(src.Name, src.Data)
	if err != nil {
		return nil, unreadable(op, src.Name, err)
	}
	return doc, nil
}

// render copies pages of doc into a fresh destination and serializes it.
func (e *Engine) render(doc Document, pages []int) ([]byte, error) {
	dst := e.codec.NewDestination()
	if err := dst.Append(doc, pages); err != nil {
		return nil, err
	}
	return dst.Bytes()
}
