package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

// ErrConflict matches every *ConflictError via errors.Is.
var ErrConflict = errors.New("time slot unavailable")

// ConflictError rejects a booking. Its message concatenates every conflict
// reason so the caller can show them all at once.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	reasons := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		reasons = append(reasons, c.Reason)
	}
	return ErrConflict.Error() + ": " + strings.Join(reasons, "; ")
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Candidate is a slot someone wants to book.
type Candidate struct {
	ProviderID      uuid.UUID
	Date            time.Time
	StartTime       calendar.Clock
	DurationMinutes int
	// ExcludeID skips one booking, so an appointment being moved never
	// conflicts with itself.
	ExcludeID uuid.UUID
}

// Days lists the dates the candidate occupies.
func (c Candidate) Days() []time.Time {
	return calendar.Days(c.Date, c.StartTime, c.DurationMinutes)
}

// Validate reports the first field that makes the candidate unbookable.
func (c Candidate) Validate() error {
	switch {
	case c.ProviderID == uuid.Nil:
		return apperr.Invalid("providerId", "is required")
	case c.Date.IsZero():
		return apperr.Invalid("date", "is required")
	case !c.StartTime.Valid():
		return apperr.Invalid("startTime", "must be between 00:00 and 23:59")
	case c.DurationMinutes <= 0:
		return apperr.Invalid("durationMinutes", "must be greater than zero")
	case c.DurationMinutes > 24*60:
		return apperr.Invalid("durationMinutes", "must not exceed one day")
	}
	return nil
}

// Checker decides whether a candidate slot is free on a provider's calendar.
type Checker struct {
	reader CalendarReader
	loc    *time.Location
}

func NewChecker(reader CalendarReader, loc *time.Location) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{reader: reader, loc: loc}
}

// Check never fails because of a conflict; conflicts are reported in the
// returned Availability. Errors are invalid input or store failures.
func (c *Checker) Check(ctx context.Context, cand Candidate) (*Availability, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	span := calendar.Span(cand.Date, cand.StartTime, cand.DurationMinutes, c.loc)
	var conflicts []Conflict

	// Neighbouring days are loaded for bookings that cross midnight.
	booked, err := c.reader.ListBooked(ctx, cand.ProviderID, cand.Date.AddDate(0, 0, -1), cand.Date.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	for _, b := range booked {
		if cand.ExcludeID != uuid.Nil && b.ID == cand.ExcludeID {
			continue
		}

		iv := b.Interval(c.loc)
		switch {
		case sameDate(b.Date, cand.Date) && b.StartTime == cand.StartTime:
			conflicts = append(conflicts, Conflict{
				Kind:     ConflictAppointment,
				Start:    iv.Start,
				End:      iv.End,
				SourceID: b.ID,
				Exact:    true,
				Reason:   fmt.Sprintf("time slot already booked: %s %s at %s", b.Source, b.ID, iv),
			})
		case iv.Overlaps(span):
			conflicts = append(conflicts, Conflict{
				Kind:     ConflictAppointment,
				Start:    iv.Start,
				End:      iv.End,
				SourceID: b.ID,
				Reason:   fmt.Sprintf("overlaps %s %s at %s", b.Source, b.ID, iv),
			})
		}
	}

	blocked, err := c.reader.ListActiveBlockedOverlapping(ctx, cand.ProviderID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("load blocked times: %w", err)
	}

	for _, b := range blocked {
		iv := calendar.Interval{Start: b.Start.In(c.loc), End: b.End.In(c.loc)}
		if !b.Active || !iv.Overlaps(span) {
			continue
		}

		var reason string
		if iv.Contains(span) {
			reason = fmt.Sprintf("provider not available from %s to %s: %s",
				iv.Start.Format("2006-01-02 15:04"), iv.End.Format("2006-01-02 15:04"), describeBlock(b))
		} else {
			reason = fmt.Sprintf("overlaps blocked window %s: %s", iv, describeBlock(b))
		}

		conflicts = append(conflicts, Conflict{
			Kind:     ConflictBlocked,
			Start:    iv.Start,
			End:      iv.End,
			SourceID: b.ID,
			Reason:   reason,
		})
	}

	return &Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// Require turns an unavailable slot into a *ConflictError.
func (c *Checker) Require(ctx context.Context, cand Candidate) error {
	avail, err := c.Check(ctx, cand)
	if err != nil {
		return err
	}
	if !avail.Available {
		return &ConflictError{Conflicts: avail.Conflicts}
	}
	return nil
}

func describeBlock(b BlockedInterval) string {
	if b.Reason == nil || *b.Reason == "" {
		return string(b.Kind)
	}
	return fmt.Sprintf("%s (%s)", b.Kind, *b.Reason)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
