package attendance

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

type Type string

const (
	// TypeStandalone is a one-off visit with no protocol behind it.
	TypeStandalone Type = "avulso"
	// TypeProtocol consumes a session from the patient's protocol.
	TypeProtocol Type = "protocolo"
)

func (t Type) Valid() bool {
	return t == TypeStandalone || t == TypeProtocol
}

// Attendance is a booked visit at a unit. Blocking entries hold the
// provider's time and may have no patient.
type Attendance struct {
	ID                uuid.UUID
	Type              Type
	Blocking          bool
	PatientID         *uuid.UUID
	ProviderID        uuid.UUID
	UnitID            uuid.UUID
	PatientProtocolID *uuid.UUID
	ServiceSessionID  *uuid.UUID
	Date              time.Time
	StartTime         calendar.Clock
	DurationMinutes   int
	Procedure         string
	Notes             string
	Status            appointment.Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BookRequest is the single accepted booking shape. For protocol bookings
// exactly one of ServiceSessionID and ProtocolServiceID is set.
type BookRequest struct {
	Type              Type
	Blocking          bool
	PatientID         *uuid.UUID
	ProviderID        uuid.UUID
	UnitID            uuid.UUID
	Date              time.Time
	StartTime         calendar.Clock
	DurationMinutes   int
	PatientProtocolID *uuid.UUID
	ServiceSessionID  *uuid.UUID
	ProtocolServiceID *uuid.UUID
	Procedure         string
	Notes             string
}
