package reference

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrUnitNotFound     = errors.New("unit not found")
)

type Patient struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type Provider struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
}

type Unit struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Directory is the read-only view of records owned by other modules.
type Directory interface {
	Patient(ctx context.Context, id uuid.UUID) (*Patient, error)
	Provider(ctx context.Context, id uuid.UUID) (*Provider, error)
	Unit(ctx context.Context, id uuid.UUID) (*Unit, error)
}

// IsNotFound reports whether err is one of the directory's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrUnitNotFound)
}
