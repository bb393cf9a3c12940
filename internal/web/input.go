package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/recompose"
	"github.com/local/pdfdesk/internal/storage"
)

// Limits bound what one request may upload.
type Limits struct {
	MaxUploadBytes int64
	MaxFileBytes   int64
	MaxFiles       int
}

// requestError is a boundary failure with its own status and kind.
type requestError struct {
	status  int
	kind    string
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

func tooLarge(message string, err error) *requestError {
	return &requestError{status: http.StatusRequestEntityTooLarge, kind: "too_large", message: message, err: err}
}

func badRequest(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, kind: "bad_request", message: message, err: err}
}

// input is what a request carries, whichever encoding it used.
type input struct {
	sources []recompose.Source
	ranges  string
}

// sourceRef is one JSON source: a name and a data:, s3:// or http(s):// url.
type sourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type jsonInput struct {
	Source  *sourceRef  `json:"source"`
	Sources []sourceRef `json:"sources"`
	Ranges  string      `json:"ranges"`
}

// readInput decodes multipart parts from the given fields, in field order,
// or a JSON body whose references are resolved through the fetcher.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request, fields ...string) (input, error) {
	if s.limits.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxUploadBytes)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return s.readJSON(r)
	}

	var in input
	for _, field := range fields {
		sources, err := ExtractFiles(r, field, s.limits)
		if err != nil {
			return input{}, err
		}
		in.sources = append(in.sources, sources...)
	}
	if s.limits.MaxFiles > 0 && len(in.sources) > s.limits.MaxFiles {
		return input{}, badRequest(fmt.Sprintf("Too many files. At most %d files can be uploaded at once.", s.limits.MaxFiles), nil)
	}
	if r.MultipartForm != nil {
		in.ranges = strings.TrimSpace(r.FormValue("ranges"))
	}
	return in, nil
}

// ExtractFiles reads every file part named field into sources, enforcing the
// size and count limits once at the boundary. A missing field yields no sources.
func ExtractFiles(r *http.Request, field string, limits Limits) ([]recompose.Source, error) {
	if field == "" {
		return nil, errors.New("web: empty form field name")
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
				return nil, badRequest("Expected a multipart/form-data upload.", err)
			}
			return nil, uploadError(err)
		}
	}
	headers := r.MultipartForm.File[field]
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		return nil, badRequest(fmt.Sprintf("Too many files. At most %d files can be uploaded at once.", limits.MaxFiles), nil)
	}

	sources := make([]recompose.Source, 0, len(headers))
	for _, hdr := range headers {
		name := filepath.Base(hdr.Filename)
		if name == "." || name == string(filepath.Separator) {
			name = "document.pdf"
		}
		if limits.MaxFileBytes > 0 && hdr.Size > limits.MaxFileBytes {
			return nil, tooLarge(fmt.Sprintf("The file %q is too large.", name), storage.ErrTooLarge)
		}
		f, err := hdr.Open()
		if err != nil {
			return nil, uploadError(err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, uploadError(err)
		}
		if len(data) == 0 {
			return nil, &recompose.Error{
				Kind:    recompose.ErrInputMissing,
				Op:      "upload",
				Source:  name,
				Message: fmt.Sprintf("The file %q is empty.", name),
			}
		}
		metrics.ObserveUpload(len(data))
		sources = append(sources, recompose.Source{Name: name, Data: data})
	}
	return sources, nil
}

func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLarge("The upload is too large.", err)
	}
	return badRequest("Failed to read the upload.", err)
}

func (s *Server) readJSON(r *http.Request) (input, error) {
	var body jsonInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return input{}, tooLarge("The request is too large.", err)
		}
		return input{}, badRequest("Invalid JSON body.", err)
	}

	refs := body.Sources
	if body.Source != nil {
		refs = append([]sourceRef{*body.Source}, refs...)
	}
	if s.limits.MaxFiles > 0 && len(refs) > s.limits.MaxFiles {
		return input{}, badRequest(fmt.Sprintf("Too many files. At most %d files can be uploaded at once.", s.limits.MaxFiles), nil)
	}
	if len(refs) > 0 && s.deps.Fetcher == nil {
		return input{}, badRequest("Remote sources are not supported.", nil)
	}

	in := input{ranges: strings.TrimSpace(body.Ranges)}
	for _, ref := range refs {
		src, err := s.deps.Fetcher.Fetch(r.Context(), ref.Name, ref.URL)
		if err != nil {
			return input{}, fetchError(ref, err)
		}
		if len(src.Data) == 0 {
			return input{}, &recompose.Error{
				Kind:    recompose.ErrInputMissing,
				Op:      "fetch",
				Source:  src.Name,
				Message: fmt.Sprintf("The file %q is empty.", src.Name),
			}
		}
		metrics.ObserveUpload(len(src.Data))
		in.sources = append(in.sources, src)
	}
	return in, nil
}

func fetchError(ref sourceRef, err error) error {
	label := ref.Name
	if label == "" {
		label = "source"
	}
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return tooLarge(fmt.Sprintf("The file %q is too large.", label), err)
	case errors.Is(err, storage.ErrUnsupportedRef), errors.Is(err, recompose.ErrMalformedDataURI):
		return badRequest(fmt.Sprintf("Unsupported source reference for %q.", label), err)
	default:
		return &recompose.Error{
			Kind:    recompose.ErrUnreadableSource,
			Op:      "fetch",
			Source:  label,
			Message: fmt.Sprintf("Failed to fetch the file %q.", label),
			Err:     err,
		}
	}
}
