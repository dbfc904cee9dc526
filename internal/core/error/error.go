package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// ProviderErrorMessage describes model provider failures.
	ProviderErrorMessage = "model provider failed"
	// SearchErrorMessage describes search capability failures.
	SearchErrorMessage = "search request failed"
	// InvalidInputMessage describes a rejected request.
	InvalidInputMessage = "invalid input"
)

var (
	// ErrInvalidInput marks caller mistakes (empty message, unknown mode).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoProvider is returned when no model provider is configured.
	ErrNoProvider = errors.New("no model provider configured")
	// ErrAllProvidersFailed is returned when every configured provider failed.
	ErrAllProvidersFailed = errors.New("all model providers failed")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// InvalidInput builds a 400 error that still matches ErrInvalidInput.
func InvalidInput(reason string) error {
	return New(fmt.Errorf("%w: %s", ErrInvalidInput, reason), http.StatusBadRequest, InvalidInputMessage)
}

// WrapProvider wraps a model provider failure.
func WrapProvider(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ProviderErrorMessage)
}

// WrapSearch wraps a search capability failure.
func WrapSearch(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, SearchErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
