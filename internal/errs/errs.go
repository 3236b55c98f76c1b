// Package errs defines the fixed error taxonomy surfaced by the ingest
// pipeline, so the HTTP layer can map failures to status codes without
// string-matching error text.
package errs

import "fmt"

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeAuth        Code = "auth_error"
	CodeValidation  Code = "validation_error"
	CodeReplay      Code = "replay_error"
	CodeDuplicate   Code = "duplicate_error"
	CodeRateLimit   Code = "rate_limit_error"
	CodeConfig      Code = "config_error"
	CodePersistence Code = "persistence_error"
)

// Error wraps an underlying cause with a stable Code and a short
// machine-readable reason string (used as the audit verification_reason
// and the HTTP error body).
type Error struct {
	code   Code
	reason string
	cause  error
}

func New(code Code, reason string) *Error {
	return &Error{code: code, reason: reason}
}

func Wrap(code Code, reason string, cause error) *Error {
	return &Error{code: code, reason: reason, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.reason)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

// Reason is the short machine-readable string (e.g. "signature_mismatch",
// "duplicate_event_id") reported in audit records and HTTP error bodies.
func (e *Error) Reason() string { return e.reason }

func AuthError(reason string) *Error        { return New(CodeAuth, reason) }
func ValidationError(reason string) *Error  { return New(CodeValidation, reason) }
func ReplayError(reason string) *Error      { return New(CodeReplay, reason) }
func DuplicateError(reason string) *Error   { return New(CodeDuplicate, reason) }
func RateLimitError(reason string) *Error   { return New(CodeRateLimit, reason) }
func ConfigError(reason string) *Error      { return New(CodeConfig, reason) }
func PersistenceErrorf(reason string, cause error) *Error {
	return Wrap(CodePersistence, reason, cause)
}

// HTTPStatus maps a Code to the status code spec.md assigns it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeAuth:
		return 401
	case CodeValidation:
		return 400
	case CodeReplay:
		return 400
	case CodeDuplicate:
		return 409
	case CodeRateLimit:
		return 429
	case CodeConfig, CodePersistence:
		return 500
	default:
		return 500
	}
}
