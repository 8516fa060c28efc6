package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
)

const genericErrorMessage = "An unexpected error occurred. Please try again later."

const nonFieldErrors = "non_field_errors"

// requestError reports a malformed request before it reaches the service.
type requestError struct {
	fields map[string][]string
}

func (e *requestError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for field := range e.fields {
		parts = append(parts, field)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (e *requestError) add(field, msg string) {
	if e.fields == nil {
		e.fields = map[string][]string{}
	}
	e.fields[field] = append(e.fields[field], msg)
}

func (e *requestError) orNil() error {
	if len(e.fields) == 0 {
		return nil
	}
	return e
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

type errorWriter struct {
	log zerolog.Logger
}

// write maps service errors to responses. Anything unrecognised is a 500 with a
// generic message; the detail only goes to the log.
func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr   *requestError
		valErr   *appointment.ValidationError
		conflict *appointment.ConflictError
		trans    *appointment.TransitionError
	)

	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "The request contains invalid fields.",
			Errors:  reqErr.fields,
		})
	case errors.As(err, &valErr):
		field := valErr.Field
		if field == "" {
			field = nonFieldErrors
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    "validation_error",
			Message: valErr.Message,
			Errors:  map[string][]string{field: {valErr.Message}},
		})
	case errors.As(err, &conflict):
		fields := map[string][]string{}
		for dim, msg := range conflict.Messages() {
			fields[dim] = []string{msg}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:      "appointment_conflict",
			Message:   "The appointment overlaps existing bookings.",
			Errors:    fields,
			Conflicts: toConflictMap(conflict.Result),
		})
	case errors.Is(err, access.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", access.ErrUnauthenticated.Error())
	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "permission_denied", access.ErrForbidden.Error())
	case errors.As(err, &trans):
		writeError(w, http.StatusConflict, "invalid_status_transition",
			"Appointment is already "+strings.ReplaceAll(string(trans.From), "_", " ")+".")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found.")
	case errors.Is(err, audit.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "audit_entry_not_found", "Audit entry not found.")
	default:
		e.log.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("user_id", userID(r)).
			Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", genericErrorMessage)
	}
}

func userID(r *http.Request) string {
	if id := access.ActorID(access.PrincipalFromContext(r.Context())); id != nil {
		return id.String()
	}
	return ""
}
