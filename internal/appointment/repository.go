package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBlockedTimeNotFound = errors.New("blocked time not found")
)

// CalendarReader is everything the availability check needs to see.
type CalendarReader interface {
	// ListBooked returns non-cancelled appointments and attendances whose date
	// falls in [from, to].
	ListBooked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BookedSlot, error)
	// ListActiveBlockedOverlapping returns active windows intersecting [start, end).
	ListActiveBlockedOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]BlockedInterval, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CalendarReader

	CreateAppointment(ctx context.Context, a AppointmentSlot) (*AppointmentSlot, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error)
	ListAppointmentsByProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error)
	// UpdateAppointmentDetails rewrites the schedule and free-text fields of a
	// non-terminal appointment.
	UpdateAppointmentDetails(ctx context.Context, a AppointmentSlot) (*AppointmentSlot, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*AppointmentSlot, error)

	CreateBlockedTime(ctx context.Context, b BlockedInterval) (*BlockedInterval, error)
	ListActiveBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]BlockedInterval, error)
	DeactivateBlockedTime(ctx context.Context, id uuid.UUID) (*BlockedInterval, error)
}
