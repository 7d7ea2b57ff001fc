// Package errors defines the pipeline's sentinel errors and an AppError
// wrapper that pairs a sentinel with a human-readable message.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is dispatch. Fetch and content errors drive the
// crawler's skip-versus-abandon decisions; checkpoint errors distinguish a
// cold start from corrupt state.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmptyQuery         = errors.New("query produced no tokens")
	ErrFetchFailed        = errors.New("fetch failed")
	ErrNotHTML            = errors.New("content is not html")
	ErrCheckpointCorrupt  = errors.New("malformed checkpoint data")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrArchiveUnavailable = errors.New("document archive unavailable")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

// AppError attaches detail to a sentinel. errors.Is sees through it to the
// sentinel, so callers branch on the sentinel and log the detail.
type AppError struct {
	Err     error
	Message string
}

func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}
