package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:45", want: NewClock(9, 45)},
		{in: "23:59", want: NewClock(23, 59)},
		{in: "12:30:00", want: NewClock(12, 30)},
		{in: "12:30:15", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "9h", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "07:05", NewClock(7, 5).String())
	assert.True(t, NewClock(23, 59).Valid())
	assert.False(t, Clock(24*60).Valid())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15/01/2024")
	require.Error(t, err)
}

func TestInterval_HalfOpen(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	blocked := Span(day, NewClock(10, 30), 30, time.UTC)

	tests := []struct {
		name     string
		cand     Interval
		overlaps bool
	}{
		{"ends where block starts", Span(day, NewClock(10, 0), 30, time.UTC), false},
		{"one minute into block", Span(day, NewClock(10, 0), 31, time.UTC), true},
		{"starts where block ends", Span(day, NewClock(11, 0), 30, time.UTC), false},
		{"straddles end", Span(day, NewClock(10, 45), 30, time.UTC), true},
		{"inside", Span(day, NewClock(10, 35), 10, time.UTC), true},
		{"covers", Span(day, NewClock(10, 0), 120, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, blocked.Overlaps(tt.cand))
			assert.Equal(t, tt.overlaps, tt.cand.Overlaps(blocked))
		})
	}
}

func TestInterval_Contains(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	lunch := Span(day, NewClock(12, 0), 60, time.UTC)

	assert.True(t, lunch.Contains(Span(day, NewClock(12, 30), 30, time.UTC)))
	assert.True(t, lunch.Contains(lunch))
	assert.False(t, lunch.Contains(Span(day, NewClock(12, 45), 30, time.UTC)))
	assert.False(t, lunch.Contains(Span(day, NewClock(11, 45), 30, time.UTC)))
}

func TestSpan_UsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	iv := Span(day, NewClock(9, 0), 45, loc)
	assert.Equal(t, 12, iv.Start.UTC().Hour())
	assert.Equal(t, 45*time.Minute, iv.End.Sub(iv.Start))
	assert.Equal(t, "2024-01-15 09:00-09:45", iv.String())
}

func TestDays(t *testing.T) {
	jan15 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jan16 := jan15.AddDate(0, 0, 1)

	tests := []struct {
		name     string
		start    Clock
		duration int
		want     []time.Time
	}{
		{"within the day", NewClock(9, 0), 30, []time.Time{jan15}},
		{"ends at midnight", NewClock(23, 30), 30, []time.Time{jan15}},
		{"crosses midnight", NewClock(23, 30), 60, []time.Time{jan15, jan16}},
		{"starts at midnight", NewClock(0, 0), 60, []time.Time{jan15}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Days(jan15, tt.start, tt.duration))
		})
	}
}
