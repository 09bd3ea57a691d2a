package reference

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, name, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) Provider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, name, specialty
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) Unit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	var u Unit
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, name
		FROM units
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	return &u, nil
}
