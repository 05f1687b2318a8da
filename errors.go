package main

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrChatNotConfigured is the configuration error returned when no AI credential is set.
	ErrChatNotConfigured = errors.New("chat backend credential not configured")
	// ErrPersistenceDisabled is returned by admin operations when no repository is configured.
	ErrPersistenceDisabled = errors.New("contact persistence not configured")
	ErrContactNotFound     = errors.New("contact request not found")
	ErrMailerNotConfigured = errors.New("mail relay not configured")
	// ErrKnowledgeUnavailable is returned when the portfolio corpus failed to load.
	ErrKnowledgeUnavailable = errors.New("knowledge corpus not loaded")
	ErrDocumentNotFound     = errors.New("portfolio document not found")
)

// ValidationError carries a user-facing description of malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failed call to the AI backend.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var verr *ValidationError
	var uerr *UpstreamError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrContactNotFound), errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrChatNotConfigured), errors.Is(err, ErrPersistenceDisabled),
		errors.Is(err, ErrKnowledgeUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &uerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// clientMessage returns the text safe to show to API callers.
func clientMessage(err error, production bool) string {
	switch statusForError(err) {
	case http.StatusBadRequest, http.StatusNotFound:
		return err.Error()
	case http.StatusServiceUnavailable:
		switch {
		case errors.Is(err, ErrChatNotConfigured):
			return "Chat is currently unavailable"
		case errors.Is(err, ErrKnowledgeUnavailable):
			return "Portfolio content is currently unavailable"
		}
		return "Contact storage is currently unavailable"
	case http.StatusBadGateway:
		return "The assistant is unavailable right now, please try again later"
	}
	if production {
		return InternalErrorMsg
	}
	return err.Error()
}
