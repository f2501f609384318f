// Package apperr defines the error taxonomy shared by the enrichment core,
// the service layer and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration marks invalid caller-supplied options: an empty
	// background, a minimum term size below one, conflicting cutoffs.
	ErrConfiguration = errors.New("configuration error")
	// ErrResource marks a fatal resource failure, such as exhausting the
	// lambda cache. Runs that hit it produce no results.
	ErrResource     = errors.New("resource error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Configf returns a configuration error with a formatted message.
func Configf(format string, args ...any) error {
	return &AppError{
		Err:        ErrConfiguration,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusBadRequest,
	}
}

// NotFoundf returns a not-found error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusNotFound,
	}
}

// HTTPStatusCode maps an error chain onto a response status.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrResource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
