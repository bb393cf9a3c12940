package recompose

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/pdfdesk/internal/logger"
)

const opMerge = "merge"

// Merge concatenates every page of every source, in source order, into one
// document. The first unreadable source aborts the whole operation.
func (e *Engine) Merge(ctx context.Context, sources []Source) (Result, error) {
	log := logger.From(ctx)

	if len(sources) == 0 {
		return Result{}, &Error{Kind: ErrInputMissing, Op: opMerge, Message: "No files uploaded."}
	}
	if len(sources) < e.opts.MinMergeSources {
		return Result{}, &Error{
			Kind:    ErrInputMissing,
			Op:      opMerge,
			Message: fmt.Sprintf("Please upload at least %s PDF files to merge.", countWord(e.opts.MinMergeSources)),
		}
	}

	dst := e.codec.NewDestination()
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return Result{}, canceled(opMerge, err)
		}
		doc, err := e.open(opMerge, src)
		if err != nil {
			log.Warn().Err(err).Str("file", src.Name).Int("index", i).Msg("merge source rejected")
			return Result{}, err
		}
		if err := dst.Append(doc, doc.PageNumbers()); err != nil {
			log.Warn().Err(err).Str("file", src.Name).Msg("merge append failed")
			return Result{}, unreadable(opMerge, src.Name, err)
		}
		log.Debug().Str("file", src.Name).Int("pages", doc.PageCount()).Msg("merge source appended")
	}

	data, err := dst.Bytes()
	if err != nil {
		var se *SourceError
		if errors.As(err, &se) {
			log.Warn().Err(err).Str("file", se.Source).Msg("merge source pages could not be copied")
			return Result{}, unreadable(opMerge, se.Source, err)
		}
		log.Error().Err(err).Int("sources", len(sources)).Msg("merge serialization failed")
		return Result{}, &Error{
			Kind:    ErrSerializationFailure,
			Op:      opMerge,
			Message: "Failed to write the merged document.",
			Err:     err,
		}
	}

	log.Info().Int("sources", len(sources)).Int("pages", dst.PageCount()).Int("bytes", len(data)).Msg("merge complete")
	return Result{
		Format:   FormatPDF,
		Data:     data,
		Filename: "merged.pdf",
		Pages:    dst.PageCount(),
	}, nil
}

var countWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}

func countWord(n int) string {
	if n >= 0 && n < len(countWords) {
		return countWords[n]
	}
	return fmt.Sprint(n)
}
