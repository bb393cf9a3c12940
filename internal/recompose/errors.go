package recompose

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is against any error returned by the Engine.
var (
	ErrInputMissing         = errors.New("input missing")
	ErrUnreadableSource     = errors.New("unreadable source")
	ErrDegenerateOperation  = errors.New("degenerate operation")
	ErrInvalidRange         = errors.New("invalid page range")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrCanceled             = errors.New("operation canceled")
)

// Error is the single failure type returned by the Engine.
type Error struct {
	Kind    error
	Op      string
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// SourceError is returned by a Destination when copying the pages of one
// appended document fails.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

// UserMessage returns the human readable part of err, without library causes.
func UserMessage(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "An unexpected error occurred while processing the document."
}

// KindName returns a stable identifier for the failure kind of err.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrInputMissing):
		return "input_missing"
	case errors.Is(err, ErrUnreadableSource):
		return "unreadable_source"
	case errors.Is(err, ErrDegenerateOperation):
		return "degenerate_operation"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrSerializationFailure):
		return "serialization_failure"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}

func unreadable(op, name string, err error) *Error {
	return &Error{
		Kind:    ErrUnreadableSource,
		Op:      op,
		Source:  name,
		Message: fmt.Sprintf("Failed to process the file %q. It may be corrupted, password-protected, or an unsupported format.", name),
		Err:     err,
	}
}

func wrongType(op, name string, err error) *Error {
	return &Error{
		Kind:    ErrUnreadableSource,
		Op:      op,
		Source:  name,
		Message: fmt.Sprintf("Invalid file type for %q. Only PDF files are supported.", name),
		Err:     err,
	}
}

func canceled(op string, err error) *Error {
	return &Error{Kind: ErrCanceled, Op: op, Message: "The operation was canceled.", Err: err}
}
