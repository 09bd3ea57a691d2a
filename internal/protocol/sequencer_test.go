package protocol

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/testutil"
)

type memRepo struct {
	mu        sync.Mutex
	protocols map[uuid.UUID]Protocol
	subs      map[uuid.UUID]Subscription
	sessions  map[uuid.UUID]ServiceSession
}

func newMemRepo() *memRepo {
	return &memRepo{
		protocols: make(map[uuid.UUID]Protocol),
		subs:      make(map[uuid.UUID]Subscription),
		sessions:  make(map[uuid.UUID]ServiceSession),
	}
}

func (r *memRepo) Snapshot() func() {
	r.mu.Lock()
	subs, sessions := maps.Clone(r.subs), maps.Clone(r.sessions)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.subs, r.sessions = subs, sessions
		r.mu.Unlock()
	}
}

func (r *memRepo) GetProtocol(_ context.Context, id uuid.UUID) (*Protocol, error) {
	p, ok := r.protocols[id]
	if !ok {
		return nil, ErrProtocolNotFound
	}
	return &p, nil
}

func (r *memRepo) CreateSubscription(_ context.Context, sub Subscription) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.CreatedAt = time.Now()
	r.subs[sub.ID] = sub
	return &sub, nil
}

func (r *memRepo) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (r *memRepo) CreateSession(_ context.Context, s ServiceSession) (*ServiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return &s, nil
}

func (r *memRepo) GetSession(_ context.Context, id uuid.UUID) (*ServiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *memRepo) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*ServiceSession, error) {
	return r.GetSession(ctx, id)
}

func (r *memRepo) LockPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error) {
	return r.ListPool(ctx, subscriptionID, serviceID)
}

func (r *memRepo) UpdateSession(_ context.Context, id uuid.UUID, number int, status SessionStatus) (*ServiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.SessionNumber, s.Status = number, status
	r.sessions[id] = s
	return &s, nil
}

func (r *memRepo) ListSessions(_ context.Context, subscriptionID uuid.UUID) ([]ServiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ServiceSession
	for _, s := range r.sessions {
		if s.SubscriptionID == subscriptionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionNumber < out[j].SessionNumber })
	return out, nil
}

func (r *memRepo) ListPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error) {
	all, _ := r.ListSessions(ctx, subscriptionID)
	var out []ServiceSession
	for _, s := range all {
		if s.ServiceID == serviceID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fixture struct {
	seq      *Sequencer
	repo     *memRepo
	tx       *testutil.Tx
	locker   *testutil.Locker
	rec      *testutil.Recorder
	patient  uuid.UUID
	protocol uuid.UUID
	physio   uuid.UUID
	massage  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := testutil.NewDirectory()
	f := &fixture{
		repo:    newMemRepo(),
		locker:  testutil.NewLocker(),
		rec:     &testutil.Recorder{},
		patient: dir.AddPatient("Marina Costa"),
		physio:  uuid.New(),
		massage: uuid.New(),
	}
	f.tx = testutil.NewTx(f.repo, f.rec)

	f.protocol = uuid.New()
	f.repo.protocols[f.protocol] = Protocol{
		ID:   f.protocol,
		Name: "Knee rehabilitation",
		Services: []ProtocolService{
			{ServiceID: f.physio, Name: "Physiotherapy", TotalSessions: 3},
			{ServiceID: f.massage, Name: "Massage", TotalSessions: 1},
			{ServiceID: uuid.New(), Name: "Evaluation", TotalSessions: 0},
		},
	}

	f.seq = NewSequencer(f.repo, dir, f.tx, f.locker, f.rec, zap.NewNop())
	return f
}

func (f *fixture) subscribe(t *testing.T) *Subscription {
	t.Helper()
	sub, _, err := f.seq.CreateSubscription(context.Background(), f.patient, f.protocol)
	require.NoError(t, err)
	return sub
}

func TestCreateSubscription_SeedsPlaceholders(t *testing.T) {
	f := newFixture(t)

	sub, sessions, err := f.seq.CreateSubscription(context.Background(), f.patient, f.protocol)
	require.NoError(t, err)
	require.Len(t, sessions, 2, "services without quota get no pool")

	for _, s := range sessions {
		assert.Equal(t, sub.ID, s.SubscriptionID)
		assert.True(t, s.Placeholder())
		assert.Equal(t, SessionScheduled, s.Status)
	}
	assert.Equal(t, []string{EventSubscriptionCreated}, f.rec.Types())
}

func TestCreateSubscription_References(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.seq.CreateSubscription(context.Background(), uuid.New(), f.protocol)
	require.ErrorIs(t, err, apperr.ErrInvalidReference)

	_, _, err = f.seq.CreateSubscription(context.Background(), f.patient, uuid.New())
	require.ErrorIs(t, err, apperr.ErrInvalidReference)
	require.ErrorIs(t, err, ErrProtocolNotFound)

	_, _, err = f.seq.CreateSubscription(context.Background(), f.patient, uuid.Nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestClaimNextSession_PoolMonotonicity(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	ctx := context.Background()

	last := 0
	for i := 0; i < 3; i++ {
		s, err := f.seq.ClaimNextSession(ctx, sub.ID, f.physio)
		require.NoError(t, err)
		assert.Greater(t, s.SessionNumber, last)
		assert.Equal(t, i+1, s.SessionNumber)
		assert.Equal(t, 3, s.TotalSessions)
		last = s.SessionNumber
	}

	_, err := f.seq.ClaimNextSession(ctx, sub.ID, f.physio)
	require.ErrorIs(t, err, ErrNoSessionsAvailable)

	pool, err := f.repo.ListPool(ctx, sub.ID, f.physio)
	require.NoError(t, err)
	require.Len(t, pool, 3)
	for _, s := range pool {
		assert.False(t, s.Placeholder(), "placeholder is never recreated")
	}
}

func TestClaimNextSession_CancelledSessionsConsumeQuota(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	ctx := context.Background()

	only, err := f.seq.ClaimNextSession(ctx, sub.ID, f.massage)
	require.NoError(t, err)

	_, err = f.seq.CancelSession(ctx, only.ID)
	require.NoError(t, err)

	_, err = f.seq.ClaimNextSession(ctx, sub.ID, f.massage)
	require.ErrorIs(t, err, ErrNoSessionsAvailable)
}

func TestClaimNextSession_UnknownService(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)

	_, err := f.seq.ClaimNextSession(context.Background(), sub.ID, uuid.New())
	require.ErrorIs(t, err, ErrServiceNotInSubscription)
	require.ErrorIs(t, err, apperr.ErrInvalidReference)
}

func TestClaimNextSession_PoolBusy(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	f.locker.Hold(redisclient.SessionPoolKey(sub.ID, f.physio))

	_, err := f.seq.ClaimNextSession(context.Background(), sub.ID, f.physio)
	require.ErrorIs(t, err, ErrPoolBusy)
}

func TestClaimNextSession_LockStoreDown(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	f.locker.Fail(errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))

	s, err := f.seq.ClaimNextSession(context.Background(), sub.ID, f.physio)
	require.NoError(t, err)
	assert.Equal(t, 1, s.SessionNumber)
	assert.Contains(t, f.tx.Keys, redisclient.SessionPoolKey(sub.ID, f.physio))
}

func TestClaimSession_Explicit(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	ctx := context.Background()

	first, err := f.seq.ClaimNextSession(ctx, sub.ID, f.physio)
	require.NoError(t, err)

	_, err = f.seq.ClaimSession(ctx, sub.ID, first.ID)
	require.ErrorIs(t, err, ErrAlreadyScheduled)

	_, err = f.seq.CompleteSession(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.seq.ClaimSession(ctx, sub.ID, first.ID)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	second, err := f.seq.ClaimNextSession(ctx, sub.ID, f.physio)
	require.NoError(t, err)
	_, err = f.seq.CancelSession(ctx, second.ID)
	require.NoError(t, err)

	rebooked, err := f.seq.ClaimSession(ctx, sub.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionScheduled, rebooked.Status)
	assert.Equal(t, second.SessionNumber, rebooked.SessionNumber, "explicit claims keep the number")

	_, err = f.seq.ClaimSession(ctx, uuid.New(), second.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidReference)

	_, err = f.seq.ClaimSession(ctx, sub.ID, uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClaimSession_PlaceholderIsAlreadyScheduled(t *testing.T) {
	f := newFixture(t)
	_, sessions, err := f.seq.CreateSubscription(context.Background(), f.patient, f.protocol)
	require.NoError(t, err)

	_, err = f.seq.ClaimSession(context.Background(), sessions[0].SubscriptionID, sessions[0].ID)
	require.ErrorIs(t, err, ErrAlreadyScheduled)
}

func TestFinish_RejectsPlaceholderAndTerminal(t *testing.T) {
	f := newFixture(t)
	_, sessions, err := f.seq.CreateSubscription(context.Background(), f.patient, f.protocol)
	require.NoError(t, err)

	_, err = f.seq.CompleteSession(context.Background(), sessions[0].ID)
	require.ErrorIs(t, err, ErrInvalidSessionTransition)

	claimed, err := f.seq.ClaimNextSession(context.Background(), sessions[0].SubscriptionID, sessions[0].ServiceID)
	require.NoError(t, err)
	_, err = f.seq.CancelSession(context.Background(), claimed.ID)
	require.NoError(t, err)
	_, err = f.seq.CompleteSession(context.Background(), claimed.ID)
	require.ErrorIs(t, err, ErrInvalidSessionTransition)
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := Subscription{ID: uuid.New(), PatientID: f.patient, ProtocolID: f.protocol}
	f.repo.subs[sub.ID] = sub
	statuses := []SessionStatus{SessionCompleted, SessionCompleted, SessionScheduled}
	for i, st := range statuses {
		id := uuid.New()
		f.repo.sessions[id] = ServiceSession{
			ID:             id,
			SubscriptionID: sub.ID,
			ServiceID:      f.physio,
			SessionNumber:  i + 1,
			TotalSessions:  5,
			Status:         st,
		}
	}

	p, err := f.seq.Progress(ctx, sub.ID, f.physio)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, "2/5", p.String())

	_, err = f.seq.Progress(ctx, uuid.New(), f.physio)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)

	_, err := f.seq.ClaimNextSession(context.Background(), sub.ID, f.physio)
	require.NoError(t, err)

	sessions, err := f.seq.ListSessions(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
