// Package testutil provides in-memory stand-ins for the infrastructure the
// scheduling services depend on.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/reference"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// Snapshotter captures its state and returns a func that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

type txMarker struct{}

// Tx is a db.Transactor over in-memory stores. A failed unit of work
// restores every registered store, which is how rollback is observed.
type Tx struct {
	mu        sync.Mutex
	stores    []Snapshotter
	Keys      []string
	Commits   int
	Rollbacks int
}

func NewTx(stores ...Snapshotter) *Tx {
	return &Tx{stores: stores}
}

func (t *Tx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.Snapshot())
	}

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		t.mu.Lock()
		t.Rollbacks++
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.Commits++
	t.mu.Unlock()
	return nil
}

func (t *Tx) LockKey(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Keys = append(t.Keys, key)
	return nil
}

// Locker grants each key to one holder at a time. Hold simulates another
// instance owning a key; Fail simulates the lock store being unreachable.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

func (l *Locker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

func (l *Locker) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}

type RecordedEvent struct {
	Type        string
	AggregateID uuid.UUID
	Payload     any
}

// Recorder keeps events in memory and takes part in rollback.
type Recorder struct {
	mu     sync.Mutex
	Events []RecordedEvent
}

func (r *Recorder) Record(ctx context.Context, eventType string, aggregateID uuid.UUID, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, RecordedEvent{Type: eventType, AggregateID: aggregateID, Payload: payload})
	return nil
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *Recorder) Snapshot() func() {
	r.mu.Lock()
	saved := append([]RecordedEvent(nil), r.Events...)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.Events = saved
		r.mu.Unlock()
	}
}

// Directory is a map-backed reference.Directory.
type Directory struct {
	Patients  map[uuid.UUID]*reference.Patient
	Providers map[uuid.UUID]*reference.Provider
	Units     map[uuid.UUID]*reference.Unit
}

func NewDirectory() *Directory {
	return &Directory{
		Patients:  make(map[uuid.UUID]*reference.Patient),
		Providers: make(map[uuid.UUID]*reference.Provider),
		Units:     make(map[uuid.UUID]*reference.Unit),
	}
}

func (d *Directory) AddPatient(name string) uuid.UUID {
	id := uuid.New()
	d.Patients[id] = &reference.Patient{ID: id, Name: name}
	return id
}

func (d *Directory) AddProvider(name string) uuid.UUID {
	id := uuid.New()
	d.Providers[id] = &reference.Provider{ID: id, Name: name}
	return id
}

func (d *Directory) AddUnit(name string) uuid.UUID {
	id := uuid.New()
	d.Units[id] = &reference.Unit{ID: id, Name: name}
	return id
}

func (d *Directory) Patient(_ context.Context, id uuid.UUID) (*reference.Patient, error) {
	if p, ok := d.Patients[id]; ok {
		return p, nil
	}
	return nil, reference.ErrPatientNotFound
}

func (d *Directory) Provider(_ context.Context, id uuid.UUID) (*reference.Provider, error) {
	if p, ok := d.Providers[id]; ok {
		return p, nil
	}
	return nil, reference.ErrProviderNotFound
}

func (d *Directory) Unit(_ context.Context, id uuid.UUID) (*reference.Unit, error) {
	if u, ok := d.Units[id]; ok {
		return u, nil
	}
	return nil, reference.ErrUnitNotFound
}
