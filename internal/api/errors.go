package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/shipping-api/internal/api/shared"
	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// ErrInvalidBody is returned when a request body cannot be decoded.
var ErrInvalidBody = errors.New("invalid request body")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var (
		qerr  *query.ValidationError
		derr  *domain.ValidationError
		verrs validator.ValidationErrors
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Record not found"

	case errors.Is(err, store.ErrConflict):
		return "Record was modified concurrently"

	case errors.Is(err, store.ErrDuplicate):
		return "A record with this id already exists"

	case errors.Is(err, ErrInvalidBody):
		return "Invalid request format"

	case errors.As(err, &qerr):
		if qerr.Field == "" {
			return "Invalid query: " + qerr.Reason
		}
		return fmt.Sprintf("Invalid query: %s %s", qerr.Field, qerr.Reason)

	case errors.As(err, &verrs):
		return SanitizeValidationError(verrs)

	case errors.As(err, &derr):
		return fmt.Sprintf("Invalid %s: %s", derr.Field, derr.Message)

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, domain.ErrUnknownField):
		return "Unknown field"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns request validation failures into a short
// message naming the first offending field.
func SanitizeValidationError(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs err in
// full, redacted. fallback, when set, replaces the message of 5xx responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
