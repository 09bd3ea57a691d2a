package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/reference"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventSubscriptionCreated = "SUBSCRIPTION_CREATED"
	EventSessionClaimed      = "SESSION_CLAIMED"
	EventSessionCompleted    = "SESSION_COMPLETED"
	EventSessionCancelled    = "SESSION_CANCELLED"
)

var (
	ErrNoSessionsAvailable      = errors.New("no sessions available for this service")
	ErrAlreadyScheduled         = errors.New("session already scheduled")
	ErrAlreadyCompleted         = errors.New("session already performed")
	ErrInvalidSessionTransition = errors.New("invalid session transition")
	ErrPoolBusy                 = errors.New("session pool is being booked, please retry")
	ErrServiceNotInSubscription = fmt.Errorf("%w: service is not part of the patient protocol", apperr.ErrInvalidReference)
)

// Sequencer hands out the sessions of a patient's protocol one at a time.
// Every method joins a transaction already carried by ctx.
type Sequencer struct {
	repo   Repository
	dir    reference.Directory
	tx     db.Transactor
	locker redisclient.Locker
	events events.Recorder
	log    *zap.Logger
}

func NewSequencer(repo Repository, dir reference.Directory, tx db.Transactor, locker redisclient.Locker, rec events.Recorder, log *zap.Logger) *Sequencer {
	return &Sequencer{
		repo:   repo,
		dir:    dir,
		tx:     tx,
		locker: locker,
		events: rec,
		log:    log.Named("protocol"),
	}
}

// CreateSubscription records the purchase and seeds one unclaimed
// placeholder per catalog service.
func (s *Sequencer) CreateSubscription(ctx context.Context, patientID, protocolID uuid.UUID) (*Subscription, []ServiceSession, error) {
	if patientID == uuid.Nil {
		return nil, nil, apperr.Invalid("patientId", "is required")
	}
	if protocolID == uuid.Nil {
		return nil, nil, apperr.Invalid("protocolId", "is required")
	}

	if _, err := s.dir.Patient(ctx, patientID); err != nil {
		if reference.IsNotFound(err) {
			return nil, nil, apperr.Reference(err)
		}
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}

	proto, err := s.repo.GetProtocol(ctx, protocolID)
	if err != nil {
		if errors.Is(err, ErrProtocolNotFound) {
			return nil, nil, apperr.Reference(err)
		}
		return nil, nil, fmt.Errorf("load protocol: %w", err)
	}

	var purchasable []ProtocolService
	for _, svc := range proto.Services {
		if svc.TotalSessions > 0 {
			purchasable = append(purchasable, svc)
		}
	}
	if len(purchasable) == 0 {
		return nil, nil, apperr.Invalid("protocolId", "protocol has no services with sessions")
	}

	var (
		sub      *Subscription
		sessions []ServiceSession
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.repo.CreateSubscription(ctx, Subscription{
			ID:         uuid.New(),
			PatientID:  patientID,
			ProtocolID: protocolID,
		})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		sub = created

		for _, svc := range purchasable {
			placeholder, err := s.repo.CreateSession(ctx, ServiceSession{
				ID:             uuid.New(),
				SubscriptionID: sub.ID,
				ServiceID:      svc.ServiceID,
				SessionNumber:  0,
				TotalSessions:  svc.TotalSessions,
				Status:         SessionScheduled,
			})
			if err != nil {
				return fmt.Errorf("seed session pool: %w", err)
			}
			sessions = append(sessions, *placeholder)
		}

		return s.events.Record(ctx, EventSubscriptionCreated, sub.ID, map[string]any{
			"patient_id":  patientID,
			"protocol_id": protocolID,
			"services":    len(sessions),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("patient protocol created",
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("services", len(sessions)),
	)

	return sub, sessions, nil
}

func (s *Sequencer) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient protocol: %w", err)
	}
	return sub, nil
}

// ClaimNextSession allocates the next session number of the pool. The
// placeholder is promoted first; later claims add numbered rows while quota
// remains. No new placeholder is ever created, and cancelled sessions keep
// their quota.
func (s *Sequencer) ClaimNextSession(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*ServiceSession, error) {
	var claimed *ServiceSession

	err := s.withPool(ctx, subscriptionID, serviceID, func(ctx context.Context) error {
		sessions, err := s.repo.LockPool(ctx, subscriptionID, serviceID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return ErrServiceNotInSubscription
		}

		p := newPool(sessions)
		next := p.claimed + 1

		switch {
		case p.placeholder != nil:
			claimed, err = s.repo.UpdateSession(ctx, p.placeholder.ID, next, SessionScheduled)
		case p.remaining() > 0:
			claimed, err = s.repo.CreateSession(ctx, ServiceSession{
				ID:             uuid.New(),
				SubscriptionID: subscriptionID,
				ServiceID:      serviceID,
				SessionNumber:  next,
				TotalSessions:  p.total,
				Status:         SessionScheduled,
			})
		default:
			return ErrNoSessionsAvailable
		}
		if err != nil {
			return fmt.Errorf("claim session %d: %w", next, err)
		}

		return s.events.Record(ctx, EventSessionClaimed, claimed.ID, map[string]any{
			"subscription_id": subscriptionID,
			"service_id":      serviceID,
			"session_number":  claimed.SessionNumber,
			"total_sessions":  claimed.TotalSessions,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session claimed",
		zap.String("session_id", claimed.ID.String()),
		zap.Int("session_number", claimed.SessionNumber),
		zap.Int("total_sessions", claimed.TotalSessions),
	)

	return claimed, nil
}

// ClaimSession re-books one specific session row of the subscription,
// keeping its session number.
func (s *Sequencer) ClaimSession(ctx context.Context, subscriptionID, sessionID uuid.UUID) (*ServiceSession, error) {
	current, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if current.SubscriptionID != subscriptionID {
		return nil, apperr.Reference(ErrSessionNotFound)
	}

	var claimed *ServiceSession

	err = s.withPool(ctx, current.SubscriptionID, current.ServiceID, func(ctx context.Context) error {
		session, err := s.repo.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		switch session.Status {
		case SessionCompleted:
			return ErrAlreadyCompleted
		case SessionScheduled:
			return ErrAlreadyScheduled
		}

		claimed, err = s.repo.UpdateSession(ctx, session.ID, session.SessionNumber, SessionScheduled)
		if err != nil {
			return fmt.Errorf("reschedule session: %w", err)
		}

		return s.events.Record(ctx, EventSessionClaimed, claimed.ID, map[string]any{
			"subscription_id": claimed.SubscriptionID,
			"service_id":      claimed.ServiceID,
			"session_number":  claimed.SessionNumber,
			"rebooked":        true,
		})
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (s *Sequencer) CompleteSession(ctx context.Context, sessionID uuid.UUID) (*ServiceSession, error) {
	return s.finish(ctx, sessionID, SessionCompleted, EventSessionCompleted)
}

// CancelSession ends a claimed session. Its slot is not returned to the pool.
func (s *Sequencer) CancelSession(ctx context.Context, sessionID uuid.UUID) (*ServiceSession, error) {
	return s.finish(ctx, sessionID, SessionCancelled, EventSessionCancelled)
}

func (s *Sequencer) finish(ctx context.Context, sessionID uuid.UUID, to SessionStatus, eventType string) (*ServiceSession, error) {
	var updated *ServiceSession

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		session, err := s.repo.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if session.Placeholder() {
			return fmt.Errorf("%w: session has not been claimed", ErrInvalidSessionTransition)
		}
		if session.Status != SessionScheduled {
			return fmt.Errorf("%w: session is %s", ErrInvalidSessionTransition, session.Status)
		}

		updated, err = s.repo.UpdateSession(ctx, session.ID, session.SessionNumber, to)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		return s.events.Record(ctx, eventType, updated.ID, map[string]any{
			"subscription_id": updated.SubscriptionID,
			"service_id":      updated.ServiceID,
			"session_number":  updated.SessionNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Sequencer) ListSessions(ctx context.Context, subscriptionID uuid.UUID) ([]ServiceSession, error) {
	if _, err := s.repo.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, fmt.Errorf("load patient protocol: %w", err)
	}
	return s.repo.ListSessions(ctx, subscriptionID)
}

// Progress counts completed sessions against the pool's purchased total.
func (s *Sequencer) Progress(ctx context.Context, subscriptionID, serviceID uuid.UUID) (*Progress, error) {
	if _, err := s.repo.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, fmt.Errorf("load patient protocol: %w", err)
	}

	sessions, err := s.repo.ListPool(ctx, subscriptionID, serviceID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrServiceNotInSubscription
	}

	p := Progress{Total: sessions[0].TotalSessions}
	for _, session := range sessions {
		if session.Status == SessionCompleted {
			p.Completed++
		}
	}
	return &p, nil
}

// withPool runs fn in a transaction holding the pool's Redis and advisory
// locks. The advisory lock alone is held while Redis is unreachable.
func (s *Sequencer) withPool(ctx context.Context, subscriptionID, serviceID uuid.UUID, fn func(ctx context.Context) error) error {
	key := redisclient.SessionPoolKey(subscriptionID, serviceID)

	err := redisclient.WithLockFallback(ctx, s.locker, key, s.log, func(lockCtx context.Context) error {
		return s.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			if err := s.tx.LockKey(txCtx, key); err != nil {
				return err
			}
			return fn(txCtx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrPoolBusy
	}
	return err
}
