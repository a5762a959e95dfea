// Package apperror defines the application's error taxonomy.
//
// ERROR TAXONOMY:
// Every error that crosses a package boundary in this app wraps one of the
// sentinel errors below. Handlers use errors.Is to map them to HTTP status
// codes without knowing which layer produced them.
//
// The taxonomy deliberately separates "user's fault" from "deployment's
// fault": a validation error means the request was bad (4xx), while a
// configuration error means the server is misconfigured (5xx) — operators
// need to be able to tell these apart in logs and dashboards.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrConfiguration marks missing or invalid server-side configuration
	// (e.g. an OAuth provider without a client ID). Non-retryable: the
	// request will keep failing until the deployment is fixed.
	ErrConfiguration = errors.New("configuration error")

	// ErrDecode marks a state token that failed to decode. Treated as a
	// forged or expired link attempt — rejected outright, never partially
	// recovered.
	ErrDecode = errors.New("decode error")

	// ErrSigner marks a failure of the external signing capability.
	// Always surfaced verbatim to the initiating caller so a human can
	// react; never retried automatically.
	ErrSigner = errors.New("signer error")
)

type AppError struct {
	Err     error  // sentinel (and possibly a wrapped cause below it)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// ConfigurationMissing reports a missing piece of server configuration.
// The setting name is included so the operator knows what to fix.
func ConfigurationMissing(setting string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: fmt.Sprintf("missing required configuration: %s", setting),
		Field:   setting,
	}
}

// Decode reports a malformed or incomplete state token.
//
// The cause chain is preserved: errors.Is(err, ErrDecode) matches, and the
// underlying base64/JSON error remains reachable via Unwrap for logging.
func Decode(message string, cause error) *AppError {
	err := error(ErrDecode)
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrDecode, cause)
	}
	return &AppError{
		Err:     err,
		Message: message,
	}
}

// Signer reports a failure of the external signing capability, keeping the
// original cause in the chain so it reaches the caller un-discarded.
func Signer(message string, cause error) *AppError {
	err := error(ErrSigner)
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrSigner, cause)
	}
	return &AppError{
		Err:     err,
		Message: message,
	}
}
