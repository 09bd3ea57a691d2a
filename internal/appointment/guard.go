package appointment

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/db"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var ErrCalendarBusy = errors.New("provider calendar is being booked, please retry")

// CalendarGuard serialises writes to a provider's days. The Redis locks
// turn away concurrent callers on any instance early; the advisory locks
// taken inside the transaction are what keep check-then-insert atomic, and
// they alone serialise writes while Redis is unreachable.
type CalendarGuard struct {
	locker redisclient.Locker
	tx     db.Transactor
	log    *zap.Logger
}

func NewCalendarGuard(locker redisclient.Locker, tx db.Transactor, log *zap.Logger) *CalendarGuard {
	return &CalendarGuard{locker: locker, tx: tx, log: log}
}

// Do runs fn in a transaction holding the lock of every day in days. Keys
// are taken in date order so two bookings sharing a midnight cannot
// deadlock.
func (g *CalendarGuard) Do(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context) error) error {
	keys := make([]string, 0, len(days))
	for _, d := range days {
		keys = append(keys, redisclient.ProviderDayKey(providerID, d))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	err := g.lockAll(ctx, keys, func(lockCtx context.Context) error {
		return g.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			for _, key := range keys {
				if err := g.tx.LockKey(txCtx, key); err != nil {
					return err
				}
			}
			return fn(txCtx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrCalendarBusy
	}
	return err
}

func (g *CalendarGuard) lockAll(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return redisclient.WithLockFallback(ctx, g.locker, keys[0], g.log, func(ctx context.Context) error {
		return g.lockAll(ctx, keys[1:], fn)
	})
}
