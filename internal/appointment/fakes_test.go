package appointment

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]AppointmentSlot
	blocks map[uuid.UUID]BlockedInterval
	// extra simulates bookings owned by other tables, such as attendances.
	extra []BookedSlot
}

func newMemRepo() *memRepo {
	return &memRepo{
		appts:  make(map[uuid.UUID]AppointmentSlot),
		blocks: make(map[uuid.UUID]BlockedInterval),
	}
}

func (r *memRepo) Snapshot() func() {
	r.mu.Lock()
	appts, blocks := maps.Clone(r.appts), maps.Clone(r.blocks)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.appts, r.blocks = appts, blocks
		r.mu.Unlock()
	}
}

func (r *memRepo) ListBooked(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]BookedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []BookedSlot
	for _, a := range r.appts {
		if a.ProviderID != providerID || a.Status == StatusCancelled {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out = append(out, BookedSlot{ID: a.ID, Source: SourceAppointment, Date: a.Date, StartTime: a.StartTime, DurationMinutes: a.DurationMinutes})
	}
	out = append(out, r.extra...)
	return out, nil
}

// ListActiveBlockedOverlapping returns every active window of the provider;
// the checker does its own interval filtering.
func (r *memRepo) ListActiveBlockedOverlapping(_ context.Context, providerID uuid.UUID, _, _ time.Time) ([]BlockedInterval, error) {
	return r.ListActiveBlockedTimes(context.Background(), providerID)
}

func (r *memRepo) CreateAppointment(_ context.Context, a AppointmentSlot) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	r.appts[a.ID] = a
	return &a, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) ListAppointmentsByProviderDay(_ context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentSlot
	for _, a := range r.appts {
		if a.ProviderID == providerID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memRepo) UpdateAppointmentDetails(_ context.Context, a AppointmentSlot) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.appts[a.ID]
	if !ok || cur.Status.Terminal() {
		return nil, ErrAppointmentNotFound
	}
	cur.Date, cur.StartTime, cur.DurationMinutes = a.Date, a.StartTime, a.DurationMinutes
	cur.Procedure, cur.Notes = a.Procedure, a.Notes
	cur.UpdatedAt = time.Now()
	r.appts[a.ID] = cur
	return &cur, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.appts[id]
	if !ok || cur.Status != from {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = to
	r.appts[id] = cur
	return &cur, nil
}

func (r *memRepo) CreateBlockedTime(_ context.Context, b BlockedInterval) (*BlockedInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.Active = true
	r.blocks[b.ID] = b
	return &b, nil
}

func (r *memRepo) ListActiveBlockedTimes(_ context.Context, providerID uuid.UUID) ([]BlockedInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BlockedInterval
	for _, b := range r.blocks {
		if b.ProviderID == providerID && b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *memRepo) DeactivateBlockedTime(_ context.Context, id uuid.UUID) (*BlockedInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[id]
	if !ok || !b.Active {
		return nil, ErrBlockedTimeNotFound
	}
	b.Active = false
	r.blocks[id] = b
	return &b, nil
}
