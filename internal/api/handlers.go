package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in, err := req.toInput()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func (req CreateAppointmentRequest) toInput() (appointment.CreateInput, error) {
	if err := validateStruct(req); err != nil {
		return appointment.CreateInput{}, err
	}

	providerID, err := parseID("providerId", req.ProviderID)
	if err != nil {
		return appointment.CreateInput{}, err
	}
	patientID, err := parseID("patientId", req.PatientID)
	if err != nil {
		return appointment.CreateInput{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return appointment.CreateInput{}, err
	}
	start, err := parseClock("startTime", req.StartTime)
	if err != nil {
		return appointment.CreateInput{}, err
	}

	return appointment.CreateInput{
		ProviderID:      providerID,
		PatientID:       patientID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: req.Duration,
		Procedure:       req.Procedure,
		Notes:           req.Notes,
	}, nil
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		providerID, err := parseID("provider_id", q.Get("provider_id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		date, err := parseDate("date", q.Get("date"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		appts, err := svc.ListAppointments(r.Context(), providerID, date)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateStruct(req); err != nil {
			handleError(w, r, log, err)
			return
		}

		in := appointment.UpdateInput{
			DurationMinutes: req.Duration,
			Procedure:       req.Procedure,
			Notes:           req.Notes,
		}
		if req.Date != nil {
			date, err := parseDate("date", *req.Date)
			if err != nil {
				handleError(w, r, log, err)
				return
			}
			in.Date = &date
		}
		if req.StartTime != nil {
			start, err := parseClock("startTime", *req.StartTime)
			if err != nil {
				handleError(w, r, log, err)
				return
			}
			in.StartTime = &start
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

type transitionFunc func(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)

func appointmentTransitionHandler(step transitionFunc, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := step(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// availabilityHandler never fails on a busy slot; conflicts are part of
// the 200 response so a UI can render them inline.
func availabilityHandler(svc AppointmentService, log *zap.Logger, defaultDuration int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := idParam(w, r, "providerId")
		if !ok {
			return
		}

		q := r.URL.Query()
		date, err := parseDate("date", q.Get("date"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		start, err := parseClock("startTime", q.Get("startTime"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		duration := defaultDuration
		if raw := q.Get("duration"); raw != "" {
			duration, err = strconv.Atoi(raw)
			if err != nil || duration <= 0 {
				handleError(w, r, log, apperr.Invalid("duration", "must be a positive number of minutes"))
				return
			}
		}

		avail, err := svc.CheckAvailability(r.Context(), providerID, date, start, duration)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Available: avail.Available,
			Conflicts: toConflictResponses(avail.Conflicts),
		})
	}
}

func createBlockedTimeHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBlockedTimeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateStruct(req); err != nil {
			handleError(w, r, log, err)
			return
		}

		providerID, err := parseID("providerId", req.ProviderID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			handleError(w, r, log, apperr.Invalid("start", "must be an RFC 3339 timestamp"))
			return
		}
		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			handleError(w, r, log, apperr.Invalid("end", "must be an RFC 3339 timestamp"))
			return
		}

		b, err := svc.CreateBlockedTime(r.Context(), appointment.BlockInput{
			ProviderID: providerID,
			Start:      start,
			End:        end,
			Kind:       appointment.BlockKind(req.Kind),
			Reason:     req.Reason,
		})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockedTimeResponse(b))
	}
}

func listBlockedTimesHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		blocks, err := svc.ListBlockedTimes(r.Context(), providerID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		resp := make([]BlockedTimeResponse, 0, len(blocks))
		for i := range blocks {
			resp = append(resp, toBlockedTimeResponse(&blocks[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteBlockedTimeHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteBlockedTime(r.Context(), id); err != nil {
			handleError(w, r, log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
