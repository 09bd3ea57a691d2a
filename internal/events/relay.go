package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

// Relay moves the event log to the broker with at-least-once delivery.
type Relay struct {
	store     Store
	publisher Publisher
	tx        db.TxRunner
	batchSize int
	log       *zap.Logger
	now       func() time.Time
}

func NewRelay(store Store, publisher Publisher, tx db.TxRunner, batchSize int, log *zap.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		tx:        tx,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

func (r *Relay) BatchSize() int { return r.batchSize }

// RunOnce publishes one batch and returns how many events were delivered.
// Events published before a failure are still marked.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var published int

	err := r.tx.WithinTx(ctx, func(txCtx context.Context) error {
		batch, err := r.store.ClaimUnpublished(txCtx, r.batchSize)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(batch))
		var pubErr error
		for _, ev := range batch {
			if err := r.publisher.Publish(txCtx, ev); err != nil {
				pubErr = err
				break
			}
			ids = append(ids, ev.ID)
		}

		if err := r.store.MarkPublished(txCtx, ids, r.now()); err != nil {
			return err
		}
		published = len(ids)

		if pubErr != nil {
			r.log.Warn("event relay stopped early",
				zap.Int("published", published),
				zap.Int("batch", len(batch)),
				zap.Error(pubErr),
			)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("relay events: %w", err)
	}

	return published, nil
}
