// Package apperrors defines the error kinds that can reach a front end.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindConfiguration      Kind = "CONFIGURATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindParse              Kind = "PARSE"
	KindBackendUnavailable Kind = "BACKEND_UNAVAILABLE"
	KindEmptyDocument      Kind = "EMPTY_DOCUMENT"
	KindEmptyQuestion      Kind = "EMPTY_QUESTION"
)

// Error is an application error with a kind, a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so the
// predefined values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Message: msg, Cause: e.Cause}
}

// ErrConfiguration indicates a missing or invalid credential or setting.
var ErrConfiguration = &Error{
	Kind:    KindConfiguration,
	Message: "configuration error",
}

// ErrNotFound indicates the document path does not exist.
var ErrNotFound = &Error{
	Kind:    KindNotFound,
	Message: "document not found",
}

// ErrParse indicates the document format could not be decoded.
var ErrParse = &Error{
	Kind:    KindParse,
	Message: "document could not be parsed",
}

// ErrBackendUnavailable indicates the embedding or completion service failed.
var ErrBackendUnavailable = &Error{
	Kind:    KindBackendUnavailable,
	Message: "backend unavailable",
}

// ErrEmptyDocument indicates there is no text to index.
var ErrEmptyDocument = &Error{
	Kind:    KindEmptyDocument,
	Message: "document contains no text",
}

// ErrEmptyQuestion indicates a blank question was submitted.
var ErrEmptyQuestion = &Error{
	Kind:    KindEmptyQuestion,
	Message: "question is empty",
}

// KindOf returns the kind of err, or "" when err is not an application error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage renders err as a single line suitable for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindConfiguration:
		return "Configuration error: " + err.Error()
	case KindNotFound:
		return "Document not found: " + err.Error()
	case KindParse:
		return "Could not read the document: " + err.Error()
	case KindBackendUnavailable:
		return "The language model service is unavailable: " + err.Error()
	case KindEmptyDocument:
		return "The document has no extractable text."
	case KindEmptyQuestion:
		return "Please type a question."
	default:
		return "Unexpected error: " + err.Error()
	}
}

// HTTPStatus maps err to the status code a web front end should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindParse, KindEmptyDocument:
		return http.StatusUnprocessableEntity
	case KindBackendUnavailable:
		return http.StatusBadGateway
	case KindEmptyQuestion:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
