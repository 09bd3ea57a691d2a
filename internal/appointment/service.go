package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/reference"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventBlockedTimeCreated   = "BLOCKED_TIME_CREATED"
	EventBlockedTimeRemoved   = "BLOCKED_TIME_REMOVED"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

type Service struct {
	repo    Repository
	dir     reference.Directory
	tx      db.Transactor
	guard   *CalendarGuard
	checker *Checker
	events  events.Recorder
	log     *zap.Logger
	cfg     config.Config
}

func NewService(repo Repository, dir reference.Directory, tx db.Transactor, locker redisclient.Locker, rec events.Recorder, log *zap.Logger, cfg config.Config) *Service {
	log = log.Named("appointment")
	return &Service{
		repo:    repo,
		dir:     dir,
		tx:      tx,
		guard:   NewCalendarGuard(locker, tx, log),
		checker: NewChecker(repo, cfg.Location),
		events:  rec,
		log:     log,
		cfg:     cfg,
	}
}

type CreateInput struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	StartTime       calendar.Clock
	DurationMinutes int // zero means the configured default
	Procedure       string
	Notes           string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Date            *time.Time
	StartTime       *calendar.Clock
	DurationMinutes *int
	Procedure       *string
	Notes           *string
}

// slotCandidate checks a as a booking that may keep its own slot.
func slotCandidate(a AppointmentSlot) Candidate {
	return Candidate{
		ProviderID:      a.ProviderID,
		Date:            a.Date,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		ExcludeID:       a.ID,
	}
}

// apply returns a with the set fields of in written over it.
func (in UpdateInput) apply(a AppointmentSlot) AppointmentSlot {
	if in.Date != nil {
		a.Date = calendar.DateOf(*in.Date)
	}
	if in.StartTime != nil {
		a.StartTime = *in.StartTime
	}
	if in.DurationMinutes != nil {
		a.DurationMinutes = *in.DurationMinutes
	}
	if in.Procedure != nil {
		a.Procedure = *in.Procedure
	}
	if in.Notes != nil {
		a.Notes = *in.Notes
	}
	return a
}

func (in UpdateInput) reschedules() bool {
	return in.Date != nil || in.StartTime != nil || in.DurationMinutes != nil
}

type BlockInput struct {
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
	Kind       BlockKind
	Reason     *string
}

// CheckAvailability is the speculative check behind the availability
// endpoint. A busy slot is reported, not returned as an error.
func (s *Service) CheckAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, start calendar.Clock, durationMinutes int) (*Availability, error) {
	if durationMinutes == 0 {
		durationMinutes = s.cfg.DefaultDurationMinutes
	}
	if providerID != uuid.Nil {
		if _, err := s.dir.Provider(ctx, providerID); err != nil {
			return nil, fmt.Errorf("load provider: %w", err)
		}
	}
	return s.checker.Check(ctx, Candidate{
		ProviderID:      providerID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: durationMinutes,
	})
}

// CreateAppointment books a slot. The availability check and the insert run
// under the provider/day lock in one transaction, so two concurrent requests
// for overlapping slots cannot both succeed.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*AppointmentSlot, error) {
	if in.DurationMinutes == 0 {
		in.DurationMinutes = s.cfg.DefaultDurationMinutes
	}
	cand := Candidate{
		ProviderID:      in.ProviderID,
		Date:            calendar.DateOf(in.Date),
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patientId", "is required")
	}
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	if err := s.resolve(ctx, in.ProviderID, in.PatientID); err != nil {
		return nil, err
	}

	var created *AppointmentSlot

	err := s.guard.Do(ctx, in.ProviderID, cand.Days(), func(ctx context.Context) error {
		if err := s.checker.Require(ctx, cand); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(ctx, AppointmentSlot{
			ID:              uuid.New(),
			ProviderID:      in.ProviderID,
			PatientID:       in.PatientID,
			Date:            cand.Date,
			StartTime:       in.StartTime,
			DurationMinutes: in.DurationMinutes,
			Procedure:       in.Procedure,
			Status:          StatusScheduled,
			Notes:           in.Notes,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return slotTaken(cand)
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		return s.events.Record(ctx, EventAppointmentCreated, appt.ID, map[string]any{
			"provider_id": appt.ProviderID,
			"patient_id":  appt.PatientID,
			"date":        appt.Date.Format(time.DateOnly),
			"start_time":  appt.StartTime.String(),
			"duration":    appt.DurationMinutes,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment created",
		zap.String("appointment_id", created.ID.String()),
		zap.String("provider_id", created.ProviderID.String()),
		zap.String("date", created.Date.Format(time.DateOnly)),
		zap.String("start_time", created.StartTime.String()),
	)

	return created, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error) {
	if _, err := s.dir.Provider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	appts, err := s.repo.ListAppointmentsByProviderDay(ctx, providerID, calendar.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// UpdateAppointment edits a non-terminal appointment. Changing the date,
// start time or duration re-checks availability, ignoring the appointment's
// own current slot.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in UpdateInput) (*AppointmentSlot, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	planned := slotCandidate(in.apply(*current))
	if err := planned.Validate(); err != nil {
		return nil, err
	}
	// Both the slot being left and the slot being entered are locked.
	days := append(current.Days(), planned.Days()...)

	var updated *AppointmentSlot

	err = s.guard.Do(ctx, current.ProviderID, days, func(ctx context.Context) error {
		fresh, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if fresh.Status.Terminal() {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, fresh.Status)
		}
		if !fresh.Date.Equal(current.Date) || fresh.StartTime != current.StartTime || fresh.DurationMinutes != current.DurationMinutes {
			// Rescheduled concurrently; the locked days may no longer cover it.
			return ErrCalendarBusy
		}

		next := in.apply(*fresh)
		cand := slotCandidate(next)
		if in.reschedules() {
			if err := s.checker.Require(ctx, cand); err != nil {
				return err
			}
		}

		updated, err = s.repo.UpdateAppointmentDetails(ctx, next)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return slotTaken(cand)
			}
			return fmt.Errorf("update appointment: %w", err)
		}

		return s.events.Record(ctx, EventAppointmentUpdated, updated.ID, map[string]any{
			"date":       updated.Date.Format(time.DateOnly),
			"start_time": updated.StartTime.String(),
			"duration":   updated.DurationMinutes,
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	return s.transition(ctx, id, StatusConfirmed, EventAppointmentConfirmed)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	return s.transition(ctx, id, StatusCancelled, EventAppointmentCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string) (*AppointmentSlot, error) {
	var updated *AppointmentSlot

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if !appt.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, to)
		}

		updated, err = s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
		if errors.Is(err, ErrAppointmentNotFound) {
			// Someone else moved it between the read and the write.
			return fmt.Errorf("%w: appointment changed concurrently", ErrInvalidStatusTransition)
		}
		if err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}

		return s.events.Record(ctx, eventType, id, map[string]any{
			"from": appt.Status,
			"to":   to,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("status", string(to)),
	)

	return updated, nil
}

// Blocked times

func (s *Service) CreateBlockedTime(ctx context.Context, in BlockInput) (*BlockedInterval, error) {
	switch {
	case in.ProviderID == uuid.Nil:
		return nil, apperr.Invalid("providerId", "is required")
	case in.Start.IsZero():
		return nil, apperr.Invalid("start", "is required")
	case in.End.IsZero():
		return nil, apperr.Invalid("end", "is required")
	case !in.Start.Before(in.End):
		return nil, apperr.Invalid("end", "must be after start")
	case !in.Kind.Valid():
		return nil, apperr.Invalid("kind", "must be one of vacation, break, meeting, personal, maintenance")
	}

	if _, err := s.dir.Provider(ctx, in.ProviderID); err != nil {
		if reference.IsNotFound(err) {
			return nil, apperr.Reference(err)
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var created *BlockedInterval

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.CreateBlockedTime(ctx, BlockedInterval{
			ID:         uuid.New(),
			ProviderID: in.ProviderID,
			Start:      in.Start,
			End:        in.End,
			Kind:       in.Kind,
			Reason:     in.Reason,
			Active:     true,
		})
		if err != nil {
			return fmt.Errorf("create blocked time: %w", err)
		}
		created = b

		return s.events.Record(ctx, EventBlockedTimeCreated, b.ID, map[string]any{
			"provider_id": b.ProviderID,
			"start":       b.Start,
			"end":         b.End,
			"kind":        b.Kind,
		})
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) ListBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]BlockedInterval, error) {
	if _, err := s.dir.Provider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	blocks, err := s.repo.ListActiveBlockedTimes(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked times: %w", err)
	}
	return blocks, nil
}

// DeleteBlockedTime deactivates the window. The row stays for audit.
func (s *Service) DeleteBlockedTime(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.DeactivateBlockedTime(ctx, id)
		if err != nil {
			return fmt.Errorf("deactivate blocked time: %w", err)
		}
		return s.events.Record(ctx, EventBlockedTimeRemoved, b.ID, map[string]any{
			"provider_id": b.ProviderID,
		})
	})
}

func (s *Service) resolve(ctx context.Context, providerID, patientID uuid.UUID) error {
	if _, err := s.dir.Provider(ctx, providerID); err != nil {
		if reference.IsNotFound(err) {
			return apperr.Reference(err)
		}
		return fmt.Errorf("load provider: %w", err)
	}
	if _, err := s.dir.Patient(ctx, patientID); err != nil {
		if reference.IsNotFound(err) {
			return apperr.Reference(err)
		}
		return fmt.Errorf("load patient: %w", err)
	}
	return nil
}

// slotTaken reports a unique-index hit, which only happens when another
// transaction booked the exact slot first.
func slotTaken(c Candidate) error {
	return &ConflictError{Conflicts: []Conflict{{
		Kind:   ConflictAppointment,
		Exact:  true,
		Reason: fmt.Sprintf("time slot already booked: %s %s", c.Date.Format(time.DateOnly), c.StartTime),
	}}}
}
