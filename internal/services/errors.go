package services

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that maps to an HTTP status code
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors, match with errors.Is
var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrModelUnavailable     = errors.New("language model not configured")
	ErrEmptyCompletion      = errors.New("language model returned no text")
)

type (
	// ValidationError indicates a missing or malformed request field
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates no authenticated identity was supplied
	UnauthorizedError struct {
		Message string
	}

	// NotFoundError indicates the addressed resource does not exist
	NotFoundError struct {
		Resource string
		ID       string
		Err      error
	}

	// ModelError wraps a failed or empty language model call.
	// It never reaches the client as a non-200 response.
	ModelError struct {
		Err error
	}
)

func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("language model call failed: %v", e.Err)
}

func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }
func (e *ModelError) Unwrap() error    { return e.Err }

// StatusCodeFor maps an error to the HTTP status the handler should return
func StatusCodeFor(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}
