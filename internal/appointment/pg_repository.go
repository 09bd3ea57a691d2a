package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, provider_id, patient_id, date, to_char(start_time, 'HH24:MI'),
	duration_minutes, procedure, status, notes, created_at, updated_at`

const blockedColumns = `id, provider_id, start_at, end_at, kind, reason, active, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*AppointmentSlot, error) {
	var a AppointmentSlot
	var start string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.Date,
		&start,
		&a.DurationMinutes,
		&a.Procedure,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.StartTime, err = calendar.ParseClock(start); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanBlocked(row pgx.Row) (*BlockedInterval, error) {
	var b BlockedInterval

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.Start,
		&b.End,
		&b.Kind,
		&b.Reason,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockedTimeNotFound
		}
		return nil, err
	}

	return &b, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Calendar

func (r *PgRepository) ListBooked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BookedSlot, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, 'appointment', date, to_char(start_time, 'HH24:MI'), duration_minutes
		FROM appointments
		WHERE provider_id = $1
		  AND date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		UNION ALL
		SELECT id, 'attendance', date, to_char(start_time, 'HH24:MI'), duration_minutes
		FROM attendances
		WHERE provider_id = $1
		  AND date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		ORDER BY 3, 4
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	return collect(rows, func(row pgx.Row) (*BookedSlot, error) {
		var b BookedSlot
		var start string
		if err := row.Scan(&b.ID, &b.Source, &b.Date, &start, &b.DurationMinutes); err != nil {
			return nil, err
		}
		clock, err := calendar.ParseClock(start)
		if err != nil {
			return nil, err
		}
		b.StartTime = clock
		return &b, nil
	})
}

func (r *PgRepository) ListActiveBlockedOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]BlockedInterval, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_times
		WHERE provider_id = $1
		  AND active
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list overlapping blocked times: %w", err)
	}
	return collect(rows, scanBlocked)
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a AppointmentSlot) (*AppointmentSlot, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, date, start_time, duration_minutes, procedure, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::time, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.ProviderID, a.PatientID, a.Date, a.StartTime.String(), a.DurationMinutes, a.Procedure, a.Status, a.Notes)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		ORDER BY start_time, created_at
	`, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) UpdateAppointmentDetails(ctx context.Context, a AppointmentSlot) (*AppointmentSlot, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3::time,
		    duration_minutes = $4,
		    procedure = $5,
		    notes = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('completed', 'cancelled')
		RETURNING `+appointmentColumns,
		a.ID, a.Date, a.StartTime.String(), a.DurationMinutes, a.Procedure, a.Notes)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*AppointmentSlot, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)
	return scanAppointment(row)
}

// Blocked times

func (r *PgRepository) CreateBlockedTime(ctx context.Context, b BlockedInterval) (*BlockedInterval, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blocked_times (id, provider_id, start_at, end_at, kind, reason, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, now(), now())
		RETURNING `+blockedColumns,
		b.ID, b.ProviderID, b.Start, b.End, b.Kind, b.Reason)
	return scanBlocked(row)
}

func (r *PgRepository) ListActiveBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]BlockedInterval, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_times
		WHERE provider_id = $1
		  AND active
		ORDER BY start_at
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked times: %w", err)
	}
	return collect(rows, scanBlocked)
}

func (r *PgRepository) DeactivateBlockedTime(ctx context.Context, id uuid.UUID) (*BlockedInterval, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE blocked_times
		SET active = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND active
		RETURNING `+blockedColumns,
		id)
	return scanBlocked(row)
}
