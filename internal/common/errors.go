// Package common defines shared constants and sentinel errors used across
// the vault server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrQuotaExhausted is returned by the grant counter when the
	// conditional increment found the limit already reached.
	ErrQuotaExhausted = errors.New("download quota exhausted")
	// ErrGrantExpired is returned by the grant counter when the grant
	// expired before the increment ran.
	ErrGrantExpired = errors.New("grant expired")

	// ErrAccountLocked is returned by login for an account locked after
	// repeated failed attempts.
	ErrAccountLocked = errors.New("account locked")

	// ErrStorageUnavailable marks blob backend I/O failures. These are
	// retryable from the caller's point of view.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Kinds carried by ReasonError.
	ErrRejected     = errors.New("rejected")
	ErrAccessDenied = errors.New("access denied")
	ErrValidation   = errors.New("validation error")
)

// ReasonError pairs an error kind with a human-readable reason that is
// safe to show to the caller. Error returns only the reason.
type ReasonError struct {
	Kind   error
	Reason string
}

func (e *ReasonError) Error() string { return e.Reason }

func (e *ReasonError) Unwrap() error { return e.Kind }

// Reject reports input refused by ingestion (bad type, failed scan).
func Reject(reason string) error {
	return &ReasonError{Kind: ErrRejected, Reason: reason}
}

// Deny reports a failed access decision.
func Deny(reason string) error {
	return &ReasonError{Kind: ErrAccessDenied, Reason: reason}
}

// Invalid reports a malformed or disallowed request.
func Invalid(reason string) error {
	return &ReasonError{Kind: ErrValidation, Reason: reason}
}

// ReasonOf returns the reason carried by err, or "" when err has none.
func ReasonOf(err error) string {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
