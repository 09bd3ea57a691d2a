package protocol

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProtocolNotFound     = errors.New("protocol not found")
	ErrSubscriptionNotFound = errors.New("patient protocol not found")
	ErrSessionNotFound      = errors.New("service session not found")
)

type Repository interface {
	GetProtocol(ctx context.Context, id uuid.UUID) (*Protocol, error)

	CreateSubscription(ctx context.Context, sub Subscription) (*Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)

	CreateSession(ctx context.Context, s ServiceSession) (*ServiceSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*ServiceSession, error)
	// GetSessionForUpdate row-locks the session until the transaction ends.
	GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*ServiceSession, error)
	// LockPool row-locks and returns every session of one pool, ordered by number.
	LockPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error)
	UpdateSession(ctx context.Context, id uuid.UUID, number int, status SessionStatus) (*ServiceSession, error)
	ListSessions(ctx context.Context, subscriptionID uuid.UUID) ([]ServiceSession, error)
	ListPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error)
}
