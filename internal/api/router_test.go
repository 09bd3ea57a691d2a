package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/attendance"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
	"github.com/hackgods/clinic-scheduling/internal/reference"
)

// Stubs embed the service interface so a test overrides only what it calls.

type stubAppointments struct {
	AppointmentService
	create func(ctx context.Context, in appointment.CreateInput) (*appointment.AppointmentSlot, error)
	get    func(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)
	check  func(ctx context.Context, providerID uuid.UUID, date time.Time, start calendar.Clock, d int) (*appointment.Availability, error)
}

func (s *stubAppointments) CreateAppointment(ctx context.Context, in appointment.CreateInput) (*appointment.AppointmentSlot, error) {
	return s.create(ctx, in)
}

func (s *stubAppointments) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error) {
	return s.get(ctx, id)
}

func (s *stubAppointments) CheckAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, start calendar.Clock, d int) (*appointment.Availability, error) {
	return s.check(ctx, providerID, date, start, d)
}

type stubAttendances struct {
	AttendanceService
	book func(ctx context.Context, req attendance.BookRequest) (*attendance.Attendance, error)
}

func (s *stubAttendances) BookAttendance(ctx context.Context, req attendance.BookRequest) (*attendance.Attendance, error) {
	return s.book(ctx, req)
}

type stubProtocols struct {
	ProtocolService
	progress func(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*protocol.Progress, error)
}

func (s *stubProtocols) Progress(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*protocol.Progress, error) {
	return s.progress(ctx, subscriptionID, serviceID)
}

type harness struct {
	appts  *stubAppointments
	atts   *stubAttendances
	protos *stubProtocols
	router http.Handler
}

func newHarness(health ...Dependency) *harness {
	h := &harness{
		appts:  &stubAppointments{},
		atts:   &stubAttendances{},
		protos: &stubProtocols{},
	}
	h.router = NewRouter(RouterConfig{
		Appointments:    h.appts,
		Attendances:     h.atts,
		Protocols:       h.protos,
		Health:          health,
		Env:             "test",
		Version:         "v0",
		CORSOrigins:     []string{"*"},
		DefaultDuration: 30,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func validAppointmentBody(providerID, patientID uuid.UUID) map[string]any {
	return map[string]any{
		"providerId": providerID.String(),
		"patientId":  patientID.String(),
		"date":       "2025-03-10",
		"startTime":  "14:00",
		"duration":   45,
		"procedure":  "Consulta",
	}
}

func TestCreateAppointment_Created(t *testing.T) {
	h := newHarness()
	providerID, patientID := uuid.New(), uuid.New()

	var got appointment.CreateInput
	h.appts.create = func(_ context.Context, in appointment.CreateInput) (*appointment.AppointmentSlot, error) {
		got = in
		return &appointment.AppointmentSlot{
			ID:              uuid.New(),
			ProviderID:      in.ProviderID,
			PatientID:       in.PatientID,
			Date:            in.Date,
			StartTime:       in.StartTime,
			DurationMinutes: in.DurationMinutes,
			Procedure:       in.Procedure,
			Status:          appointment.StatusScheduled,
		}, nil
	}

	rec := h.do(t, http.MethodPost, "/appointments", validAppointmentBody(providerID, patientID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, providerID, got.ProviderID)
	assert.Equal(t, patientID, got.PatientID)
	assert.Equal(t, "2025-03-10", got.Date.Format(time.DateOnly))
	assert.Equal(t, calendar.NewClock(14, 0), got.StartTime)
	assert.Equal(t, 45, got.DurationMinutes)

	resp := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Equal(t, "14:00", resp.StartTime)
	assert.Equal(t, "scheduled", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointment_RequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(body map[string]any)
		details string
	}{
		{
			name:    "missing patient",
			mutate:  func(b map[string]any) { delete(b, "patientId") },
			details: "patientId: is required",
		},
		{
			name:    "malformed provider",
			mutate:  func(b map[string]any) { b["providerId"] = "not-a-uuid" },
			details: "providerId: must be a valid UUID",
		},
		{
			name:    "malformed date",
			mutate:  func(b map[string]any) { b["date"] = "10/03/2025" },
			details: "date: must match 2006-01-02",
		},
		{
			name:    "negative duration",
			mutate:  func(b map[string]any) { b["duration"] = -5 },
			details: "duration: must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.appts.create = func(context.Context, appointment.CreateInput) (*appointment.AppointmentSlot, error) {
				t.Fatal("service must not be called for an invalid request")
				return nil, nil
			}

			body := validAppointmentBody(uuid.New(), uuid.New())
			tt.mutate(body)

			rec := h.do(t, http.MethodPost, "/appointments", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "validation_error", resp.Error)
			assert.Equal(t, tt.details, resp.Details)
		})
	}
}

func TestCreateAppointment_RejectsUnknownFields(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/appointments", `{"providerId":"x","room":"3"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeBody[ErrorResponse](t, rec).Error)
}

func TestErrorMapping(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	conflict := &appointment.ConflictError{Conflicts: []appointment.Conflict{{
		Kind:   appointment.ConflictBlocked,
		Start:  start,
		End:    start.Add(time.Hour),
		Reason: "provider not available from 12:00 to 13:00: break (Lunch)",
	}}}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Invalid("durationMinutes", "must be positive"), http.StatusBadRequest, "validation_error"},
		{"conflict", conflict, http.StatusConflict, "time_slot_unavailable"},
		{"wrapped conflict", fmt.Errorf("create: %w", conflict), http.StatusConflict, "time_slot_unavailable"},
		{"calendar busy", appointment.ErrCalendarBusy, http.StatusConflict, "retry"},
		{"pool busy", protocol.ErrPoolBusy, http.StatusConflict, "retry"},
		{"unknown provider", apperr.Reference(reference.ErrProviderNotFound), http.StatusUnprocessableEntity, "invalid_reference"},
		{"pool exhausted", protocol.ErrNoSessionsAvailable, http.StatusUnprocessableEntity, "no_sessions_available"},
		{"already scheduled", protocol.ErrAlreadyScheduled, http.StatusUnprocessableEntity, "session_already_scheduled"},
		{"already completed", protocol.ErrAlreadyCompleted, http.StatusUnprocessableEntity, "session_already_completed"},
		{"bad transition", appointment.ErrInvalidStatusTransition, http.StatusUnprocessableEntity, "invalid_status_transition"},
		{"missing", appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.appts.create = func(context.Context, appointment.CreateInput) (*appointment.AppointmentSlot, error) {
				return nil, tt.err
			}

			rec := h.do(t, http.MethodPost, "/appointments", validAppointmentBody(uuid.New(), uuid.New()))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestErrorMapping_ConflictCarriesDetails(t *testing.T) {
	h := newHarness()
	sourceID := uuid.New()
	h.appts.create = func(context.Context, appointment.CreateInput) (*appointment.AppointmentSlot, error) {
		return nil, &appointment.ConflictError{Conflicts: []appointment.Conflict{{
			Kind:     appointment.ConflictAppointment,
			Reason:   "time slot already booked",
			SourceID: sourceID,
			Exact:    true,
		}}}
	}

	rec := h.do(t, http.MethodPost, "/appointments", validAppointmentBody(uuid.New(), uuid.New()))
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "appointment", resp.Conflicts[0].Kind)
	require.NotNil(t, resp.Conflicts[0].SourceID)
	assert.Equal(t, sourceID, *resp.Conflicts[0].SourceID)
	assert.Contains(t, resp.Details, "time slot already booked")
}

func TestGetAppointment_InvalidID(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/appointments/nope", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeBody[ErrorResponse](t, rec).Error)
}

func TestAvailability_ConflictsAreNotAnError(t *testing.T) {
	h := newHarness()
	providerID := uuid.New()

	var gotDuration int
	h.appts.check = func(_ context.Context, id uuid.UUID, date time.Time, start calendar.Clock, d int) (*appointment.Availability, error) {
		assert.Equal(t, providerID, id)
		assert.Equal(t, calendar.NewClock(12, 30), start)
		gotDuration = d
		return &appointment.Availability{
			Available: false,
			Conflicts: []appointment.Conflict{{Kind: appointment.ConflictBlocked, Reason: "lunch"}},
		}, nil
	}

	rec := h.do(t, http.MethodGet, "/appointments/availability/"+providerID.String()+"?date=2025-03-10&startTime=12:30", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[AvailabilityResponse](t, rec)
	assert.False(t, resp.Available)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "lunch", resp.Conflicts[0].Reason)
	assert.Equal(t, 30, gotDuration, "default duration applies when omitted")
}

func TestAvailability_BadDuration(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/appointments/availability/"+uuid.NewString()+"?date=2025-03-10&startTime=12:30&duration=abc", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "duration: must be a positive number of minutes", decodeBody[ErrorResponse](t, rec).Details)
}

func TestBookAttendance_ParsesProtocolLinkage(t *testing.T) {
	h := newHarness()
	patientID, providerID, unitID := uuid.New(), uuid.New(), uuid.New()
	subscriptionID, serviceID := uuid.New(), uuid.New()

	var got attendance.BookRequest
	h.atts.book = func(_ context.Context, req attendance.BookRequest) (*attendance.Attendance, error) {
		got = req
		return &attendance.Attendance{
			ID:                uuid.New(),
			Type:              req.Type,
			PatientID:         req.PatientID,
			ProviderID:        req.ProviderID,
			UnitID:            req.UnitID,
			PatientProtocolID: req.PatientProtocolID,
			Date:              req.Date,
			StartTime:         req.StartTime,
			DurationMinutes:   60,
			Status:            appointment.StatusScheduled,
		}, nil
	}

	rec := h.do(t, http.MethodPost, "/attendance-schedules", map[string]any{
		"attendanceType":    "protocolo",
		"patientId":         patientID.String(),
		"providerId":        providerID.String(),
		"unitId":            unitID.String(),
		"date":              "2025-03-10",
		"startTime":         "09:00",
		"patientProtocolId": subscriptionID.String(),
		"protocolServiceId": serviceID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, attendance.TypeProtocol, got.Type)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, patientID, *got.PatientID)
	require.NotNil(t, got.ProtocolServiceID)
	assert.Equal(t, serviceID, *got.ProtocolServiceID)
	assert.Nil(t, got.ServiceSessionID)
	assert.Equal(t, 0, got.DurationMinutes, "service fills the default")

	resp := decodeBody[AttendanceResponse](t, rec)
	assert.Equal(t, "protocolo", resp.AttendanceType)
	assert.Equal(t, "09:00", resp.StartTime)
}

func TestBookAttendance_RejectsUnknownType(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/attendance-schedules", map[string]any{
		"attendanceType": "retorno",
		"providerId":     uuid.NewString(),
		"unitId":         uuid.NewString(),
		"date":           "2025-03-10",
		"startTime":      "09:00",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "attendanceType: must be one of avulso, protocolo", decodeBody[ErrorResponse](t, rec).Details)
}

func TestSessionProgress(t *testing.T) {
	h := newHarness()
	subscriptionID, serviceID := uuid.New(), uuid.New()
	h.protos.progress = func(_ context.Context, sub, svc uuid.UUID) (*protocol.Progress, error) {
		assert.Equal(t, subscriptionID, sub)
		assert.Equal(t, serviceID, svc)
		return &protocol.Progress{Completed: 3, Total: 10}, nil
	}

	rec := h.do(t, http.MethodGet, "/patient-service-sessions/progress/"+subscriptionID.String()+"/"+serviceID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[ProgressResponse](t, rec)
	assert.Equal(t, ProgressResponse{Completed: 3, Total: 10, Progress: "3/10"}, resp)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newHarness()
	h.appts.get = func(context.Context, uuid.UUID) (*appointment.AppointmentSlot, error) {
		panic("boom")
	}

	rec := h.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeBody[ErrorResponse](t, rec).Error)
}
