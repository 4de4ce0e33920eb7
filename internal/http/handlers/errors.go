// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., already_exists, create_failed) are reserved for
//     business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Usage:
//   - Handlers select the most specific matching code and pass it to `fail()` along
//     with the corresponding HTTP status and message.
//   - Clients are expected to branch on these codes for programmatic error handling.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "already_exists",
//     "message": "an active offer already exists for this request"
//   }

package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-market-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeValidation   = "validation_failed"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// MapServiceError translates a service-level sentinel into the HTTP status
// and stable code for the error envelope. Unrecognized errors map to 500 /
// internal_error; the persistence fault itself is never echoed to clients.
func MapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrOfferNotFound),
		errors.Is(err, services.ErrChatNotFound),
		errors.Is(err, services.ErrMessageNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrNotSender),
		errors.Is(err, services.ErrNotOwner),
		errors.Is(err, services.ErrNotBidder):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrDuplicateOffer):
		return http.StatusConflict, ErrCodeAlreadyExists
	case errors.Is(err, services.ErrStaleOffer),
		errors.Is(err, services.ErrOfferState),
		errors.Is(err, services.ErrRequestState),
		errors.Is(err, services.ErrMessageRemoved):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrEmptyBody),
		errors.Is(err, services.ErrBodyTooLong),
		errors.Is(err, services.ErrMediaRefTooLong),
		errors.Is(err, services.ErrInvalidKind),
		errors.Is(err, services.ErrInvalidPrice),
		errors.Is(err, services.ErrNoCandidate):
		return http.StatusUnprocessableEntity, ErrCodeValidation
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
