package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/local/pdfdesk/internal/ai"
	"github.com/local/pdfdesk/internal/logger"
	"github.com/local/pdfdesk/internal/recompose"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Filename string   `json:"filename,omitempty"`
	Pages    int      `json:"pages,omitempty"`
	Entries  []string `json:"entries,omitempty"`
	Error    string   `json:"error,omitempty"`
	Kind     string   `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message, Kind: kind})
}

// writeResult sends a merge or split result as a data URI envelope, or as raw
// bytes when the caller asked for ?format=binary.
func writeResult(w http.ResponseWriter, r *http.Request, res recompose.Result) {
	if r.URL.Query().Get("format") == "binary" {
		w.Header().Set("Content-Type", res.Format.MIMEType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
		w.Header().Set("X-Page-Count", strconv.Itoa(res.Pages))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Data)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:  true,
		Data:     res.DataURI(),
		Filename: res.Filename,
		Pages:    res.Pages,
		Entries:  res.Entries,
	})
}

// failure maps err to a status, a kind and a message that is safe to show.
func failure(err error) (int, string, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, reqErr.kind, reqErr.message
	}

	var docErr *ai.DocumentError
	switch {
	case errors.Is(err, ai.ErrNoText) && errors.As(err, &docErr):
		return http.StatusUnprocessableEntity, "no_text",
			fmt.Sprintf("The file %q has no extractable text. Scanned documents are not supported.", docErr.Name)
	case errors.As(err, &docErr):
		return http.StatusUnprocessableEntity, "unreadable_source",
			fmt.Sprintf("Failed to process the file %q. It may be corrupted, password-protected, or an unsupported format.", docErr.Name)
	case errors.Is(err, ai.ErrEmptyOutput):
		return http.StatusBadGateway, "empty_output", "The AI model returned an empty or invalid response."
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable, "ai_unavailable", "The AI service is temporarily unavailable. Please try again later."
	}

	kind := recompose.KindName(err)
	switch {
	case errors.Is(err, recompose.ErrInputMissing), errors.Is(err, recompose.ErrInvalidRange):
		return http.StatusBadRequest, kind, recompose.UserMessage(err)
	case errors.Is(err, recompose.ErrUnreadableSource), errors.Is(err, recompose.ErrDegenerateOperation):
		return http.StatusUnprocessableEntity, kind, recompose.UserMessage(err)
	case errors.Is(err, recompose.ErrCanceled):
		return http.StatusServiceUnavailable, kind, recompose.UserMessage(err)
	case errors.Is(err, recompose.ErrSerializationFailure):
		return http.StatusInternalServerError, kind, recompose.UserMessage(err)
	}
	return http.StatusInternalServerError, "internal", "An unexpected error occurred while processing the document."
}

// fail logs err and writes the failure envelope.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind, message := failure(err)
	ev := logger.From(r.Context()).Warn()
	if status >= 500 {
		ev = logger.From(r.Context()).Error()
	}
	ev.Err(err).Str("op", op).Str("kind", kind).Int("status", status).Msg("request failed")
	writeFailure(w, status, kind, message)
}
