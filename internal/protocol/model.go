package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Protocol is a catalog bundle of services, each with a purchased session count.
type Protocol struct {
	ID        uuid.UUID
	Name      string
	Services  []ProtocolService
	CreatedAt time.Time
}

type ProtocolService struct {
	ServiceID     uuid.UUID
	Name          string
	TotalSessions int
}

// Subscription is one patient's purchase of a Protocol.
type Subscription struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProtocolID uuid.UUID
	CreatedAt  time.Time
}

// ServiceSession is one entry of a (subscription, service) pool. Session
// number 0 is the unclaimed placeholder; claimed sessions are numbered from 1.
type ServiceSession struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	ServiceID      uuid.UUID
	SessionNumber  int
	TotalSessions  int
	Status         SessionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s ServiceSession) Placeholder() bool {
	return s.SessionNumber == 0
}

type Progress struct {
	Completed int
	Total     int
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Completed, p.Total)
}

// pool is the locked view of one (subscription, service) pair.
type pool struct {
	placeholder *ServiceSession
	claimed     int
	total       int
}

func newPool(sessions []ServiceSession) pool {
	var p pool
	for i := range sessions {
		s := sessions[i]
		p.total = s.TotalSessions
		if s.Placeholder() {
			p.placeholder = &s
			continue
		}
		p.claimed++
	}
	return p
}

func (p pool) remaining() int {
	return p.total - p.claimed
}
