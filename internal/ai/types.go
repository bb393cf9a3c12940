package ai

import (
	"context"
	"errors"
	"fmt"
)

// Request is one provider call.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for providers like OpenAI, Anthropic.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

var (
	ErrRateLimited    = errors.New("rate_limited")
	ErrContentRefused = errors.New("content_refused")

	// ErrUnavailable means no provider produced an answer.
	ErrUnavailable = errors.New("ai service unavailable")
	// ErrEmptyOutput means a provider answered with no text.
	ErrEmptyOutput = errors.New("empty model output")
	// ErrNoText means a document has no extractable text, e.g. a scan.
	ErrNoText = errors.New("no extractable text")
)

func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }

// Document is a PDF handed to summarize or compare.
type Document struct {
	Name string
	Data []byte
}

// DocumentError ties a failure to the document that caused it.
type DocumentError struct {
	Name string
	Err  error
}

func (e *DocumentError) Error() string { return fmt.Sprintf("document %q: %v", e.Name, e.Err) }
func (e *DocumentError) Unwrap() error { return e.Err }

// Summary is the result of Summarize.
type Summary struct {
	Summary   string `json:"summary"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Comparison is the result of Compare.
type Comparison struct {
	Comparison string `json:"comparison"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Truncated  bool   `json:"truncated,omitempty"`
}
