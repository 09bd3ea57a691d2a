package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/attendance"
)

func bookAttendanceHandler(svc AttendanceService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAttendanceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in, err := req.toRequest()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		a, err := svc.BookAttendance(r.Context(), in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAttendanceResponse(a))
	}
}

func (req BookAttendanceRequest) toRequest() (attendance.BookRequest, error) {
	var out attendance.BookRequest

	if err := validateStruct(req); err != nil {
		return out, err
	}

	var err error
	if out.ProviderID, err = parseID("providerId", req.ProviderID); err != nil {
		return out, err
	}
	if out.UnitID, err = parseID("unitId", req.UnitID); err != nil {
		return out, err
	}
	if out.PatientID, err = parseOptionalID("patientId", req.PatientID); err != nil {
		return out, err
	}
	if out.PatientProtocolID, err = parseOptionalID("patientProtocolId", req.PatientProtocolID); err != nil {
		return out, err
	}
	if out.ServiceSessionID, err = parseOptionalID("serviceSessionId", req.ServiceSessionID); err != nil {
		return out, err
	}
	if out.ProtocolServiceID, err = parseOptionalID("protocolServiceId", req.ProtocolServiceID); err != nil {
		return out, err
	}
	if out.Date, err = parseDate("date", req.Date); err != nil {
		return out, err
	}
	if out.StartTime, err = parseClock("startTime", req.StartTime); err != nil {
		return out, err
	}

	out.Type = attendance.Type(req.AttendanceType)
	out.Blocking = req.Blocking
	out.DurationMinutes = req.Duration
	out.Procedure = req.Procedure
	out.Notes = req.Notes
	return out, nil
}

func getAttendanceHandler(svc AttendanceService, log *zap.Logger) http.HandlerFunc {
	return attendanceHandler(svc.GetAttendance, log)
}

func attendanceHandler(step func(ctx context.Context, id uuid.UUID) (*attendance.Attendance, error), log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		a, err := step(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAttendanceResponse(a))
	}
}
