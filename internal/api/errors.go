package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/attendance"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
	"github.com/hackgods/clinic-scheduling/internal/reference"
)

// handleError turns a service error into a response. Business-rule failures
// come back as structured rejections; anything unrecognised is logged and
// reported as a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var (
		verr     *apperr.ValidationError
		conflict *appointment.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "time_slot_unavailable",
			Details:   conflict.Error(),
			Conflicts: toConflictResponses(conflict.Conflicts),
		})
	case errors.Is(err, appointment.ErrCalendarBusy),
		errors.Is(err, protocol.ErrPoolBusy):
		writeError(w, http.StatusConflict, "retry", err.Error())
	case errors.Is(err, apperr.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", err.Error())
	case errors.Is(err, protocol.ErrNoSessionsAvailable):
		writeError(w, http.StatusUnprocessableEntity, "no_sessions_available", err.Error())
	case errors.Is(err, protocol.ErrAlreadyScheduled):
		writeError(w, http.StatusUnprocessableEntity, "session_already_scheduled", err.Error())
	case errors.Is(err, protocol.ErrAlreadyCompleted):
		writeError(w, http.StatusUnprocessableEntity, "session_already_completed", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, protocol.ErrInvalidSessionTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_status_transition", err.Error())
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isNotFound(err error) bool {
	return reference.IsNotFound(err) ||
		errors.Is(err, appointment.ErrAppointmentNotFound) ||
		errors.Is(err, appointment.ErrBlockedTimeNotFound) ||
		errors.Is(err, attendance.ErrAttendanceNotFound) ||
		errors.Is(err, protocol.ErrProtocolNotFound) ||
		errors.Is(err, protocol.ErrSubscriptionNotFound) ||
		errors.Is(err, protocol.ErrSessionNotFound)
}
