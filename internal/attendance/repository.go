package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var ErrAttendanceNotFound = errors.New("attendance not found")

type Repository interface {
	Create(ctx context.Context, a Attendance) (*Attendance, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Attendance, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status) (*Attendance, error)
}
