package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/attendance"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
)

type AppointmentService interface {
	CheckAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, start calendar.Clock, durationMinutes int) (*appointment.Availability, error)
	CreateAppointment(ctx context.Context, in appointment.CreateInput) (*appointment.AppointmentSlot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)
	ListAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]appointment.AppointmentSlot, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, in appointment.UpdateInput) (*appointment.AppointmentSlot, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentSlot, error)
	CreateBlockedTime(ctx context.Context, in appointment.BlockInput) (*appointment.BlockedInterval, error)
	ListBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]appointment.BlockedInterval, error)
	DeleteBlockedTime(ctx context.Context, id uuid.UUID) error
}

type AttendanceService interface {
	BookAttendance(ctx context.Context, req attendance.BookRequest) (*attendance.Attendance, error)
	GetAttendance(ctx context.Context, id uuid.UUID) (*attendance.Attendance, error)
	ConfirmAttendance(ctx context.Context, id uuid.UUID) (*attendance.Attendance, error)
	CompleteAttendance(ctx context.Context, id uuid.UUID) (*attendance.Attendance, error)
	CancelAttendance(ctx context.Context, id uuid.UUID) (*attendance.Attendance, error)
}

type ProtocolService interface {
	CreateSubscription(ctx context.Context, patientID, protocolID uuid.UUID) (*protocol.Subscription, []protocol.ServiceSession, error)
	ListSessions(ctx context.Context, subscriptionID uuid.UUID) ([]protocol.ServiceSession, error)
	Progress(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*protocol.Progress, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	Attendances  AttendanceService
	Protocols    ProtocolService
	Health       []Dependency
	Log          *zap.Logger
	Env          string
	Version      string

	CORSOrigins     []string
	RateLimitRPS    int // 0 disables limiting
	DefaultDuration int
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggingMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Health...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
		}

		appts := cfg.Appointments
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(appts, log))
			r.Get("/", listAppointmentsHandler(appts, log))
			r.Get("/availability/{providerId}", availabilityHandler(appts, log, cfg.DefaultDuration))

			// {id} is the provider on GET and the blocked interval on DELETE.
			r.Post("/blocked-times", createBlockedTimeHandler(appts, log))
			r.Get("/blocked-times/{id}", listBlockedTimesHandler(appts, log))
			r.Delete("/blocked-times/{id}", deleteBlockedTimeHandler(appts, log))

			r.Get("/{id}", getAppointmentHandler(appts, log))
			r.Patch("/{id}", updateAppointmentHandler(appts, log))
			r.Post("/{id}/confirm", appointmentTransitionHandler(appts.ConfirmAppointment, log))
			r.Post("/{id}/complete", appointmentTransitionHandler(appts.CompleteAppointment, log))
			r.Post("/{id}/cancel", appointmentTransitionHandler(appts.CancelAppointment, log))
		})

		atts := cfg.Attendances
		r.Route("/attendance-schedules", func(r chi.Router) {
			r.Post("/", bookAttendanceHandler(atts, log))
			r.Get("/{id}", getAttendanceHandler(atts, log))
			r.Post("/{id}/confirm", attendanceHandler(atts.ConfirmAttendance, log))
			r.Post("/{id}/complete", attendanceHandler(atts.CompleteAttendance, log))
			r.Post("/{id}/cancel", attendanceHandler(atts.CancelAttendance, log))
		})

		protos := cfg.Protocols
		r.Post("/patient-protocols", createPatientProtocolHandler(protos, log))
		r.Get("/patient-protocols/{id}/sessions", listSessionsHandler(protos, log))
		r.Get("/patient-service-sessions/progress/{subscriptionId}/{serviceId}", sessionProgressHandler(protos, log))
	})

	return r
}
