package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const sessionColumns = `id, subscription_id, service_id, session_number, total_sessions, status, created_at, updated_at`

func scanSession(row pgx.Row) (*ServiceSession, error) {
	var s ServiceSession

	err := row.Scan(
		&s.ID,
		&s.SubscriptionID,
		&s.ServiceID,
		&s.SessionNumber,
		&s.TotalSessions,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription

	err := row.Scan(&s.ID, &s.PatientID, &s.ProtocolID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) querySessions(ctx context.Context, sql string, args ...any) ([]ServiceSession, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ServiceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateProtocol stores a catalog entry. Used by seeding; the scheduling
// core only reads the catalog.
func (r *PgRepository) CreateProtocol(ctx context.Context, p Protocol) error {
	q := db.Conn(ctx, r.pool)

	if _, err := q.Exec(ctx, `
		INSERT INTO protocols (id, name, created_at)
		VALUES ($1, $2, now())
	`, p.ID, p.Name); err != nil {
		return fmt.Errorf("insert protocol: %w", err)
	}

	for _, svc := range p.Services {
		if _, err := q.Exec(ctx, `
			INSERT INTO protocol_services (protocol_id, service_id, service_name, total_sessions)
			VALUES ($1, $2, $3, $4)
		`, p.ID, svc.ServiceID, svc.Name, svc.TotalSessions); err != nil {
			return fmt.Errorf("insert protocol service: %w", err)
		}
	}

	return nil
}

func (r *PgRepository) GetProtocol(ctx context.Context, id uuid.UUID) (*Protocol, error) {
	q := db.Conn(ctx, r.pool)

	var p Protocol
	err := q.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM protocols
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProtocolNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT service_id, service_name, total_sessions
		FROM protocol_services
		WHERE protocol_id = $1
		ORDER BY service_name, service_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list protocol services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var svc ProtocolService
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.TotalSessions); err != nil {
			return nil, err
		}
		p.Services = append(p.Services, svc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) CreateSubscription(ctx context.Context, sub Subscription) (*Subscription, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_protocols (id, patient_id, protocol_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, patient_id, protocol_id, created_at
	`, sub.ID, sub.PatientID, sub.ProtocolID)
	return scanSubscription(row)
}

func (r *PgRepository) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, patient_id, protocol_id, created_at
		FROM patient_protocols
		WHERE id = $1
	`, id)
	return scanSubscription(row)
}

func (r *PgRepository) CreateSession(ctx context.Context, s ServiceSession) (*ServiceSession, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO service_sessions (id, subscription_id, service_id, session_number, total_sessions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+sessionColumns,
		s.ID, s.SubscriptionID, s.ServiceID, s.SessionNumber, s.TotalSessions, s.Status)
	return scanSession(row)
}

func (r *PgRepository) GetSession(ctx context.Context, id uuid.UUID) (*ServiceSession, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM service_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*ServiceSession, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM service_sessions
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSession(row)
}

func (r *PgRepository) LockPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error) {
	sessions, err := r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM service_sessions
		WHERE subscription_id = $1
		  AND service_id = $2
		ORDER BY session_number
		FOR UPDATE
	`, subscriptionID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("lock session pool: %w", err)
	}
	return sessions, nil
}

func (r *PgRepository) UpdateSession(ctx context.Context, id uuid.UUID, number int, status SessionStatus) (*ServiceSession, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE service_sessions
		SET session_number = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, number, status)
	return scanSession(row)
}

func (r *PgRepository) ListSessions(ctx context.Context, subscriptionID uuid.UUID) ([]ServiceSession, error) {
	sessions, err := r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM service_sessions
		WHERE subscription_id = $1
		ORDER BY service_id, session_number
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *PgRepository) ListPool(ctx context.Context, subscriptionID, serviceID uuid.UUID) ([]ServiceSession, error) {
	sessions, err := r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM service_sessions
		WHERE subscription_id = $1
		  AND service_id = $2
		ORDER BY session_number
	`, subscriptionID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list session pool: %w", err)
	}
	return sessions, nil
}
