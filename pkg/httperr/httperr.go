// pkg/httperr/httperr.go
package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error is the service-wide error taxonomy. Status drives the HTTP response;
// Code is a stable machine-readable slug; Detail is safe to show the caller.
type Error struct {
	Status int            `json:"-"`
	Code   string         `json:"error"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`

	// RetryAfter, when non-zero, is emitted as a Retry-After header (seconds).
	RetryAfter int `json:"-"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// Authentication covers missing and invalid credentials or sessions. The
// detail never distinguishes which check failed.
func Authentication(detail string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "authentication_failed", Detail: detail}
}

// Authorization is a valid identity with insufficient scope. Naming the
// required and actual scopes is safe: the caller already proved tenant
// identity.
func Authorization(required string, actual []string) *Error {
	return &Error{
		Status: http.StatusForbidden,
		Code:   "insufficient_scope",
		Detail: fmt.Sprintf("scope %s is required", required),
		Meta:   map[string]any{"required_scope": required, "granted_scopes": actual},
	}
}

func NotFound(detail string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Detail: detail}
}

func RateLimited(retryAfterSec int) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: "rate_limited", RetryAfter: retryAfterSec}
}

// Upstream propagates the platform's status and error detail; the caller is a
// trusted integration and decides whether to retry.
func Upstream(status int, detail string) *Error {
	if status < 400 {
		status = http.StatusBadGateway
	}
	return &Error{Status: status, Code: "upstream_error", Detail: detail}
}

func Validation(detail string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "validation_failed", Detail: detail}
}

// Internal covers decryption and other data-integrity failures. These should
// not occur in normal operation and carry no caller-facing detail.
func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error"}
}

// Write renders err as a JSON error response. Non-taxonomy errors become a
// bare 500.
func Write(w http.ResponseWriter, err error) {
	var he *Error
	if !errors.As(err, &he) {
		he = Internal()
	}
	if he.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(he.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(he)
}
