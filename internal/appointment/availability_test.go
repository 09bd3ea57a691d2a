package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

var jan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func addBlock(r *memRepo, providerID uuid.UUID, start, end time.Time, kind BlockKind, reason *string) BlockedInterval {
	b := BlockedInterval{ID: uuid.New(), ProviderID: providerID, Start: start, End: end, Kind: kind, Reason: reason, Active: true}
	r.blocks[b.ID] = b
	return b
}

func addAppointment(r *memRepo, providerID uuid.UUID, date time.Time, start calendar.Clock, duration int) AppointmentSlot {
	a := AppointmentSlot{
		ID:              uuid.New(),
		ProviderID:      providerID,
		PatientID:       uuid.New(),
		Date:            date,
		StartTime:       start,
		DurationMinutes: duration,
		Status:          StatusScheduled,
	}
	r.appts[a.ID] = a
	return a
}

func at(h, m int) time.Time {
	return calendar.At(jan15, calendar.NewClock(h, m), time.UTC)
}

func TestChecker_LunchBreak(t *testing.T) {
	repo := newMemRepo()
	p1 := uuid.New()
	addBlock(repo, p1, at(12, 0), at(13, 0), KindBreak, strPtr("lunch"))
	checker := NewChecker(repo, time.UTC)

	during, err := checker.Check(context.Background(), Candidate{ProviderID: p1, Date: jan15, StartTime: calendar.NewClock(12, 30), DurationMinutes: 30})
	require.NoError(t, err)
	assert.False(t, during.Available)
	require.Len(t, during.Conflicts, 1)
	assert.Equal(t, ConflictBlocked, during.Conflicts[0].Kind)
	assert.Contains(t, during.Conflicts[0].Reason, "lunch")
	assert.Contains(t, during.Conflicts[0].Reason, "break")
	assert.Contains(t, during.Conflicts[0].Reason, "not available")

	before, err := checker.Check(context.Background(), Candidate{ProviderID: p1, Date: jan15, StartTime: calendar.NewClock(11, 0), DurationMinutes: 30})
	require.NoError(t, err)
	assert.True(t, before.Available)
	assert.Empty(t, before.Conflicts)
}

func TestChecker_HalfOpenBoundaries(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	addBlock(repo, p, at(10, 30), at(11, 0), KindMeeting, nil)
	checker := NewChecker(repo, time.UTC)

	tests := []struct {
		name      string
		start     calendar.Clock
		duration  int
		available bool
	}{
		{"ends at block start", calendar.NewClock(10, 0), 30, true},
		{"one minute into block", calendar.NewClock(10, 0), 31, false},
		{"starts at block end", calendar.NewClock(11, 0), 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: tt.start, DurationMinutes: tt.duration})
			require.NoError(t, err)
			assert.Equal(t, tt.available, got.Available)
		})
	}
}

func TestChecker_PartialOverlapWithBlock(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	addBlock(repo, p, at(9, 0), at(10, 0), KindPersonal, nil)
	checker := NewChecker(repo, time.UTC)

	got, err := checker.Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(9, 45), DurationMinutes: 30})
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, ConflictBlocked, got.Conflicts[0].Kind)
	assert.Contains(t, got.Conflicts[0].Reason, "overlaps blocked window")
	assert.Contains(t, got.Conflicts[0].Reason, "personal")
}

func TestChecker_ExactAndPartialBookingConflicts(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	exact := addAppointment(repo, p, jan15, calendar.NewClock(10, 0), 30)
	checker := NewChecker(repo, time.UTC)

	got, err := checker.Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(10, 0), DurationMinutes: 30})
	require.NoError(t, err)
	require.Len(t, got.Conflicts, 1)
	assert.True(t, got.Conflicts[0].Exact)
	assert.Equal(t, exact.ID, got.Conflicts[0].SourceID)
	assert.Contains(t, got.Conflicts[0].Reason, "already booked")

	got, err = checker.Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(10, 15), DurationMinutes: 30})
	require.NoError(t, err)
	require.Len(t, got.Conflicts, 1)
	assert.False(t, got.Conflicts[0].Exact)
	assert.Equal(t, ConflictAppointment, got.Conflicts[0].Kind)

	got, err = checker.Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(10, 30), DurationMinutes: 30})
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestChecker_IgnoresCancelledAndOtherProviders(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	cancelled := addAppointment(repo, p, jan15, calendar.NewClock(10, 0), 30)
	cancelled.Status = StatusCancelled
	repo.appts[cancelled.ID] = cancelled
	addAppointment(repo, uuid.New(), jan15, calendar.NewClock(10, 0), 30)

	got, err := NewChecker(repo, time.UTC).Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(10, 0), DurationMinutes: 30})
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestChecker_IgnoresInactiveBlocks(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	b := addBlock(repo, p, at(12, 0), at(13, 0), KindBreak, nil)
	b.Active = false
	repo.blocks[b.ID] = b

	got, err := NewChecker(repo, time.UTC).Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(12, 0), DurationMinutes: 30})
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestChecker_ExcludeSelf(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	self := addAppointment(repo, p, jan15, calendar.NewClock(14, 0), 30)

	got, err := NewChecker(repo, time.UTC).Check(context.Background(), Candidate{
		ProviderID:      p,
		Date:            jan15,
		StartTime:       calendar.NewClock(14, 0),
		DurationMinutes: 45,
		ExcludeID:       self.ID,
	})
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestChecker_SeesAttendancesAndCrossMidnight(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	repo.extra = []BookedSlot{{
		ID:              uuid.New(),
		Source:          SourceAttendance,
		Date:            jan15.AddDate(0, 0, -1),
		StartTime:       calendar.NewClock(23, 30),
		DurationMinutes: 60,
	}}

	got, err := NewChecker(repo, time.UTC).Check(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(0, 0), DurationMinutes: 15})
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.Len(t, got.Conflicts, 1)
	assert.Contains(t, got.Conflicts[0].Reason, "attendance")
}

func TestChecker_AggregatesAllReasons(t *testing.T) {
	repo := newMemRepo()
	p := uuid.New()
	addAppointment(repo, p, jan15, calendar.NewClock(8, 0), 60)
	addBlock(repo, p, at(8, 30), at(9, 30), KindMaintenance, strPtr("chair repair"))
	checker := NewChecker(repo, time.UTC)

	err := checker.Require(context.Background(), Candidate{ProviderID: p, Date: jan15, StartTime: calendar.NewClock(8, 15), DurationMinutes: 30})
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Len(t, conflict.Conflicts, 2)
	assert.Contains(t, err.Error(), "chair repair")
	assert.Contains(t, err.Error(), "overlaps appointment")
}

func TestChecker_RejectsBadDuration(t *testing.T) {
	checker := NewChecker(newMemRepo(), time.UTC)

	for _, d := range []int{0, -15} {
		_, err := checker.Check(context.Background(), Candidate{ProviderID: uuid.New(), Date: jan15, StartTime: calendar.NewClock(9, 0), DurationMinutes: d})
		require.ErrorIs(t, err, apperr.ErrValidation)

		var verr *apperr.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "durationMinutes", verr.Field)
	}
}
