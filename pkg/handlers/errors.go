package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
)

// statusForError maps pipeline errors to an HTTP status and error code.
func statusForError(err error) (int, string, string) {
	switch {
	case errors.Is(err, apperrors.ErrUnknownTarget):
		return http.StatusNotFound, "unknown_target", "Unknown target database"
	case errors.Is(err, apperrors.ErrUnknownRole):
		return http.StatusForbidden, "unknown_role", "Role is not configured"
	case errors.Is(err, apperrors.ErrSchemaUnavailable):
		return http.StatusServiceUnavailable, "schema_unavailable", "Schema metadata is unavailable for the target database"
	case errors.Is(err, apperrors.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed", "Could not generate a SQL statement for the question"
	case errors.Is(err, apperrors.ErrSuperseded):
		return http.StatusConflict, "superseded", "Request was superseded by a newer request in the same session"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "cancelled", "Request was cancelled"
	default:
		return http.StatusInternalServerError, "internal_error", "Request failed"
	}
}
