package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Record(ctx context.Context, eventType string, aggregateID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	var aggID *uuid.UUID
	if aggregateID != uuid.Nil {
		aggID = &aggregateID
	}

	_, err = db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, aggID, data)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// ClaimUnpublished locks up to limit unpublished rows. Must run inside a
// transaction so concurrent relays skip each other's rows.
func (s *PgStore) ClaimUnpublished(ctx context.Context, limit int) ([]Event, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, event_type, aggregate_id, payload, created_at, published_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim unpublished events: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.AggregateID, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE event_logs SET published_at = $2 WHERE id = ANY($1)
	`, ids, at)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
