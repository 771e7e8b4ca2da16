// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and give clients a stable, machine-readable
// taxonomy next to the human-readable message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "Chemical data not found"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/allergen-intel-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUpstream = "upstream_unavailable"
	ErrCodeTimeout  = "timeout"
)

// statusFor maps a service error to an HTTP status, code and safe message.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrEmptyName):
		return http.StatusBadRequest, ErrCodeBadRequest, "chemical name is required"
	case errors.Is(err, services.ErrEmptyBatch):
		return http.StatusBadRequest, ErrCodeBadRequest, "ingredients must contain at least one name"
	case errors.Is(err, services.ErrTooManyIngredients):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrEmptyProduct):
		return http.StatusBadRequest, ErrCodeBadRequest, "Product name is required"
	case errors.Is(err, services.ErrChemicalNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Chemical data not found"
	case errors.Is(err, services.ErrRegistryUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUpstream, "chemical registry unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout, "analysis timed out"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "analysis failed"
	}
}
