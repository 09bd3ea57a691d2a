package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
	"github.com/hackgods/clinic-scheduling/internal/reference"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAttendanceBooked    = "ATTENDANCE_BOOKED"
	EventAttendanceConfirmed = "ATTENDANCE_CONFIRMED"
	EventAttendanceCompleted = "ATTENDANCE_COMPLETED"
	EventAttendanceCancelled = "ATTENDANCE_CANCELLED"
)

// SessionAllocator is the part of protocol.Sequencer the facade drives.
type SessionAllocator interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*protocol.Subscription, error)
	ClaimNextSession(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*protocol.ServiceSession, error)
	ClaimSession(ctx context.Context, subscriptionID, sessionID uuid.UUID) (*protocol.ServiceSession, error)
	CompleteSession(ctx context.Context, sessionID uuid.UUID) (*protocol.ServiceSession, error)
	CancelSession(ctx context.Context, sessionID uuid.UUID) (*protocol.ServiceSession, error)
}

// Service books attendances. Availability, session allocation and the insert
// commit together or not at all.
type Service struct {
	repo     Repository
	sessions SessionAllocator
	dir      reference.Directory
	tx       db.Transactor
	guard    *appointment.CalendarGuard
	checker  *appointment.Checker
	events   events.Recorder
	log      *zap.Logger
	cfg      config.Config
}

func NewService(repo Repository, cal appointment.CalendarReader, sessions SessionAllocator, dir reference.Directory, tx db.Transactor, locker redisclient.Locker, rec events.Recorder, log *zap.Logger, cfg config.Config) *Service {
	log = log.Named("attendance")
	return &Service{
		repo:     repo,
		sessions: sessions,
		dir:      dir,
		tx:       tx,
		guard:    appointment.NewCalendarGuard(locker, tx, log),
		checker:  appointment.NewChecker(cal, cfg.Location),
		events:   rec,
		log:      log,
		cfg:      cfg,
	}
}

func (s *Service) validate(req *BookRequest) error {
	if !req.Type.Valid() {
		return apperr.Invalid("attendanceType", "must be avulso or protocolo")
	}
	if req.ProviderID == uuid.Nil {
		return apperr.Invalid("providerId", "is required")
	}
	if req.UnitID == uuid.Nil {
		return apperr.Invalid("unitId", "is required")
	}
	if req.PatientID == nil && (!req.Blocking || req.Type == TypeProtocol) {
		return apperr.Invalid("patientId", "is required")
	}
	if req.Date.IsZero() {
		return apperr.Invalid("date", "is required")
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.cfg.DefaultDurationMinutes
	}

	switch req.Type {
	case TypeProtocol:
		if req.PatientProtocolID == nil {
			return apperr.Invalid("patientProtocolId", "is required for protocolo attendances")
		}
		if (req.ServiceSessionID == nil) == (req.ProtocolServiceID == nil) {
			return apperr.Invalid("serviceSessionId", "exactly one of serviceSessionId and protocolServiceId is required")
		}
	case TypeStandalone:
		if req.PatientProtocolID != nil || req.ServiceSessionID != nil || req.ProtocolServiceID != nil {
			return apperr.Invalid("patientProtocolId", "must be empty for avulso attendances")
		}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, req BookRequest) error {
	if _, err := s.dir.Provider(ctx, req.ProviderID); err != nil {
		return refErr("provider", err)
	}
	if _, err := s.dir.Unit(ctx, req.UnitID); err != nil {
		return refErr("unit", err)
	}
	if req.PatientID != nil {
		if _, err := s.dir.Patient(ctx, *req.PatientID); err != nil {
			return refErr("patient", err)
		}
	}
	return nil
}

// BookAttendance checks the provider's calendar, allocates a protocol
// session when asked to, and stores the attendance in one transaction.
func (s *Service) BookAttendance(ctx context.Context, req BookRequest) (*Attendance, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, req); err != nil {
		return nil, err
	}

	date := calendar.DateOf(req.Date)
	cand := appointment.Candidate{
		ProviderID:      req.ProviderID,
		Date:            date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	}

	if err := cand.Validate(); err != nil {
		return nil, err
	}

	var booked *Attendance

	err := s.guard.Do(ctx, req.ProviderID, cand.Days(), func(ctx context.Context) error {
		if err := s.checker.Require(ctx, cand); err != nil {
			return err
		}

		var sessionID *uuid.UUID
		if req.Type == TypeProtocol {
			session, err := s.allocate(ctx, req)
			if err != nil {
				return err
			}
			sessionID = &session.ID
		}

		a, err := s.repo.Create(ctx, Attendance{
			ID:                uuid.New(),
			Type:              req.Type,
			Blocking:          req.Blocking,
			PatientID:         req.PatientID,
			ProviderID:        req.ProviderID,
			UnitID:            req.UnitID,
			PatientProtocolID: req.PatientProtocolID,
			ServiceSessionID:  sessionID,
			Date:              date,
			StartTime:         req.StartTime,
			DurationMinutes:   req.DurationMinutes,
			Procedure:         req.Procedure,
			Notes:             req.Notes,
			Status:            appointment.StatusScheduled,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &appointment.ConflictError{Conflicts: []appointment.Conflict{{
					Kind:   appointment.ConflictAppointment,
					Exact:  true,
					Reason: fmt.Sprintf("time slot already booked: %s %s", date.Format(time.DateOnly), req.StartTime),
				}}}
			}
			return fmt.Errorf("create attendance: %w", err)
		}
		booked = a

		return s.events.Record(ctx, EventAttendanceBooked, a.ID, map[string]any{
			"type":               a.Type,
			"provider_id":        a.ProviderID,
			"unit_id":            a.UnitID,
			"service_session_id": a.ServiceSessionID,
			"date":               a.Date.Format(time.DateOnly),
			"start_time":         a.StartTime.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("attendance booked",
		zap.String("attendance_id", booked.ID.String()),
		zap.String("type", string(booked.Type)),
		zap.String("provider_id", booked.ProviderID.String()),
	)

	return booked, nil
}

func (s *Service) allocate(ctx context.Context, req BookRequest) (*protocol.ServiceSession, error) {
	sub, err := s.sessions.GetSubscription(ctx, *req.PatientProtocolID)
	if err != nil {
		if errors.Is(err, protocol.ErrSubscriptionNotFound) {
			return nil, apperr.Reference(err)
		}
		return nil, err
	}
	if sub.PatientID != *req.PatientID {
		return nil, fmt.Errorf("%w: patient protocol belongs to another patient", apperr.ErrInvalidReference)
	}

	if req.ServiceSessionID != nil {
		return s.sessions.ClaimSession(ctx, sub.ID, *req.ServiceSessionID)
	}
	return s.sessions.ClaimNextSession(ctx, sub.ID, *req.ProtocolServiceID)
}

func (s *Service) GetAttendance(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

func (s *Service) ConfirmAttendance(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	return s.transition(ctx, id, appointment.StatusConfirmed, EventAttendanceConfirmed, nil)
}

// CompleteAttendance also marks the linked protocol session as performed.
func (s *Service) CompleteAttendance(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	return s.transition(ctx, id, appointment.StatusCompleted, EventAttendanceCompleted, s.sessions.CompleteSession)
}

// CancelAttendance also cancels the linked session. The pool is not refilled.
func (s *Service) CancelAttendance(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	return s.transition(ctx, id, appointment.StatusCancelled, EventAttendanceCancelled, s.sessions.CancelSession)
}

type sessionStep func(ctx context.Context, sessionID uuid.UUID) (*protocol.ServiceSession, error)

func (s *Service) transition(ctx context.Context, id uuid.UUID, to appointment.Status, eventType string, step sessionStep) (*Attendance, error) {
	var updated *Attendance

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load attendance: %w", err)
		}
		if !a.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", appointment.ErrInvalidStatusTransition, a.Status, to)
		}

		updated, err = s.repo.UpdateStatus(ctx, id, a.Status, to)
		if errors.Is(err, ErrAttendanceNotFound) {
			return fmt.Errorf("%w: attendance changed concurrently", appointment.ErrInvalidStatusTransition)
		}
		if err != nil {
			return fmt.Errorf("update attendance status: %w", err)
		}

		if step != nil && a.ServiceSessionID != nil {
			if _, err := step(ctx, *a.ServiceSessionID); err != nil {
				return fmt.Errorf("update linked session: %w", err)
			}
		}

		return s.events.Record(ctx, eventType, id, map[string]any{
			"from": a.Status,
			"to":   to,
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func refErr(what string, err error) error {
	if reference.IsNotFound(err) {
		return apperr.Reference(err)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
