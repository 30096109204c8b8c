package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "conversation not found with id abc123"}
//
// This makes it easy for clients to parse errors — they always know what
// fields to expect, regardless of whether it's a 400, 404, or 500. The
// optional "remaining" field appears only on one-time-code mismatches,
// where the client needs to show how many guesses are left.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/amity-app/amity-server/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error     string `json:"error"`           // machine-readable error type (e.g., "not_found")
	Message   string `json:"message"`         // human-readable description
	Field     string `json:"field,omitempty"` // offending field on validation errors
	Remaining *int   `json:"remaining,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE writing the body. Once
// Encode calls w.Write(), the headers are sent and any later changes are
// silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent — all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// This is the single place where service-layer sentinels become HTTP.
// The service layer returns apperror.ErrValidation, apperror.ErrExpired,
// etc., and deliberately knows nothing about status codes — a different
// transport would map the same sentinels differently.
//
// STATUS CHOICES WORTH SPELLING OUT:
//   - ErrExpired → 410 Gone: the resource existed but is permanently past
//     its lifetime. A fresh token must be requested; retrying is useless.
//   - ErrAttemptsExceeded → 429: the verification budget is burned. The
//     record is terminal, so "too many requests" tells the client to
//     request a new code, not to retry this one.
//   - ErrInvalidCode → 401: the candidate didn't prove anything. The
//     response carries the remaining attempt budget.
//   - ErrStorage → 503: the store is unreachable; the request may succeed
//     if retried later.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	// errors.As walks the chain (via Unwrap) and fills appErr if an
	// *AppError appears anywhere in it.
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		case errors.Is(err, apperror.ErrExpired):
			status = http.StatusGone // 410
			errorType = "expired"
		case errors.Is(err, apperror.ErrQuotaExhausted):
			status = http.StatusConflict // 409
			errorType = "quota_exhausted"
		case errors.Is(err, apperror.ErrAttemptsExceeded):
			status = http.StatusTooManyRequests // 429
			errorType = "attempts_exceeded"
		case errors.Is(err, apperror.ErrInvalidCode):
			status = http.StatusUnauthorized // 401
			errorType = "invalid_code"
		case errors.Is(err, apperror.ErrAlreadyVerified):
			status = http.StatusConflict // 409
			errorType = "already_verified"
		case errors.Is(err, apperror.ErrUsernameExhausted):
			status = http.StatusConflict // 409
			errorType = "username_exhausted"
		case errors.Is(err, apperror.ErrStorage):
			status = http.StatusServiceUnavailable // 503
			errorType = "storage_unavailable"
		}

		resp := ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		}
		// Remaining is only meaningful on invalid_code responses, where 0
		// ("this was your last guess") must still be transmitted — hence
		// the pointer rather than omitempty on an int.
		if errors.Is(err, apperror.ErrInvalidCode) {
			remaining := appErr.Remaining
			resp.Remaining = &remaining
		}

		writeJSON(w, status, resp)
		return
	}

	// Unknown error — return a generic 500. Never expose internal error
	// details: the raw message might contain SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
