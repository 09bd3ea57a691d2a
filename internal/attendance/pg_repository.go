package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const columns = `id, attendance_type, blocking, patient_id, provider_id, unit_id,
	patient_protocol_id, service_session_id, date, to_char(start_time, 'HH24:MI'),
	duration_minutes, procedure, notes, status, created_at, updated_at`

func scanAttendance(row pgx.Row) (*Attendance, error) {
	var a Attendance
	var start string

	err := row.Scan(
		&a.ID,
		&a.Type,
		&a.Blocking,
		&a.PatientID,
		&a.ProviderID,
		&a.UnitID,
		&a.PatientProtocolID,
		&a.ServiceSessionID,
		&a.Date,
		&start,
		&a.DurationMinutes,
		&a.Procedure,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttendanceNotFound
		}
		return nil, err
	}

	if a.StartTime, err = calendar.ParseClock(start); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, a Attendance) (*Attendance, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO attendances (
			id, attendance_type, blocking, patient_id, provider_id, unit_id,
			patient_protocol_id, service_session_id, date, start_time,
			duration_minutes, procedure, notes, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::time, $11, $12, $13, $14, now(), now())
		RETURNING `+columns,
		a.ID, a.Type, a.Blocking, a.PatientID, a.ProviderID, a.UnitID,
		a.PatientProtocolID, a.ServiceSessionID, a.Date, a.StartTime.String(),
		a.DurationMinutes, a.Procedure, a.Notes, a.Status)
	return scanAttendance(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+columns+`
		FROM attendances
		WHERE id = $1
	`, id)
	return scanAttendance(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status) (*Attendance, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE attendances
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+columns,
		id, to, from)
	return scanAttendance(row)
}
