package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain. Services wrap these in *AppError; the
// HTTP layer maps them to status codes with errors.Is.
//
// Token-validation failures deliberately reveal nothing beyond their kind:
// a purged expired invite and a code that never existed both surface as
// ErrNotFound, so callers cannot enumerate live codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrExpired           = errors.New("expired")
	ErrQuotaExhausted    = errors.New("quota exhausted")
	ErrAttemptsExceeded  = errors.New("attempts exceeded")
	ErrInvalidCode       = errors.New("invalid code")
	ErrAlreadyVerified   = errors.New("already verified")
	ErrUsernameExhausted = errors.New("username exhausted")
	ErrStorage           = errors.New("storage unavailable")
)

// AppError carries a sentinel plus human-readable context.
//
// Remaining is only meaningful on ErrInvalidCode — it reports how many
// verification attempts are left before the OTP record goes terminal.
type AppError struct {
	Err       error  // sentinel (one of the vars above)
	Message   string // human-readable error message
	Field     string // optional: field causing the error
	Remaining int    // optional: attempts left (OTP mismatches only)
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

// Expired marks a token past its expiry. Callers see the same response
// whether the row is still present or already swept.
func Expired(resource string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: fmt.Sprintf("%s has expired", resource),
	}
}

// QuotaExhausted marks an invite code whose uses have reached maxUses.
func QuotaExhausted() *AppError {
	return &AppError{
		Err:     ErrQuotaExhausted,
		Message: "invite code has no remaining uses",
	}
}

// AttemptsExceeded marks an OTP record that has burned its attempt budget.
// Checked before the candidate is even compared — a correct code on the
// sixth attempt still fails.
func AttemptsExceeded() *AppError {
	return &AppError{
		Err:     ErrAttemptsExceeded,
		Message: "too many failed attempts, request a new code",
	}
}

// InvalidCode marks an OTP mismatch and reports the remaining budget.
func InvalidCode(remaining int) *AppError {
	return &AppError{
		Err:       ErrInvalidCode,
		Message:   fmt.Sprintf("invalid code, %d attempts remaining", remaining),
		Field:     "code",
		Remaining: remaining,
	}
}

// AlreadyVerified marks a verify call against a terminal, already-verified
// OTP record. It neither re-succeeds nor burns an attempt.
func AlreadyVerified() *AppError {
	return &AppError{
		Err:     ErrAlreadyVerified,
		Message: "code has already been verified",
	}
}

// UsernameExhausted is returned when the username suffix budget runs out
// without finding a free name.
func UsernameExhausted(base string) *AppError {
	return &AppError{
		Err:     ErrUsernameExhausted,
		Message: fmt.Sprintf("could not find a free username for %q", base),
	}
}

// Storage wraps a store-layer failure as an opaque, retryable condition.
// The underlying error stays in the chain for logs but the message never
// leaks driver details to callers.
func Storage(err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrStorage, err),
		Message: "storage unavailable, try again",
	}
}
