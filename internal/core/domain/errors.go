package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is the only login failure ever surfaced
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound indicates no session token is stored
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenInvalid indicates the stored token could not be decoded
	ErrTokenInvalid = errors.New("token invalid")

	// ErrBusy indicates an operation of the same kind is still outstanding
	ErrBusy = errors.New("operation already in progress")

	// ErrImportTimeout indicates no new document appeared within the polling budget
	ErrImportTimeout = errors.New("timeout waiting for document")

	// ErrCancelled indicates the user declined a confirmation prompt
	ErrCancelled = errors.New("cancelled")

	// ErrServiceUnavailable indicates the backend could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// User-facing messages
const (
	InvalidCredentialsMessage = "Invalid credentials"
	RegistrationFailedMessage = "Registration failed"
	ImportFailedMessage       = "Failed to fetch SEC document or timed out"
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Detail     string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("investigraph API error: %s (status %d, endpoint: %s)", e.Detail, e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("investigraph API error: status %d (endpoint: %s)", e.StatusCode, e.Endpoint)
}

// Is maps well-known status codes onto domain errors
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	case ErrServiceUnavailable:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// RegistrationError carries the server-provided reason for a failed sign-up.
type RegistrationError struct {
	Detail string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return RegistrationFailedMessage
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
