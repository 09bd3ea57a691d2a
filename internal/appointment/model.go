package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type BlockKind string

const (
	KindVacation    BlockKind = "vacation"
	KindBreak       BlockKind = "break"
	KindMeeting     BlockKind = "meeting"
	KindPersonal    BlockKind = "personal"
	KindMaintenance BlockKind = "maintenance"
)

func (k BlockKind) Valid() bool {
	switch k {
	case KindVacation, KindBreak, KindMeeting, KindPersonal, KindMaintenance:
		return true
	}
	return false
}

// AppointmentSlot is one booked visit on a provider's calendar. Date is a
// civil date at midnight UTC; StartTime is read on the clinic's wall clock.
type AppointmentSlot struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	StartTime       calendar.Clock
	DurationMinutes int
	Procedure       string
	Status          Status
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a AppointmentSlot) Days() []time.Time {
	return calendar.Days(a.Date, a.StartTime, a.DurationMinutes)
}

// BlockedInterval is an operator-defined window [Start, End) in which the
// provider takes no bookings.
type BlockedInterval struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
	Kind       BlockKind
	Reason     *string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (b BlockedInterval) Interval() calendar.Interval {
	return calendar.Interval{Start: b.Start, End: b.End}
}

// BookingSource tells which table a booked slot came from.
type BookingSource string

const (
	SourceAppointment BookingSource = "appointment"
	SourceAttendance  BookingSource = "attendance"
)

// BookedSlot is any non-cancelled booking occupying a provider's time.
type BookedSlot struct {
	ID              uuid.UUID
	Source          BookingSource
	Date            time.Time
	StartTime       calendar.Clock
	DurationMinutes int
}

func (b BookedSlot) Interval(loc *time.Location) calendar.Interval {
	return calendar.Span(b.Date, b.StartTime, b.DurationMinutes, loc)
}

type ConflictKind string

const (
	ConflictAppointment ConflictKind = "appointment"
	ConflictBlocked     ConflictKind = "blocked"
)

type Conflict struct {
	Kind     ConflictKind
	Start    time.Time
	End      time.Time
	Reason   string
	SourceID uuid.UUID
	// Exact is set when the booking sits on the same (provider, date, startTime).
	Exact bool
}

type Availability struct {
	Available bool
	Conflicts []Conflict
}
