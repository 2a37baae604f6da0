package tickets

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/lightning"
	"github.com/5day4cast/coordinator/internal/store"
)

// Reaper reclaims Reserved tickets whose TTL has elapsed (§4.5
// "Reservation... expired unpaid reservations are reclaimed"), cancelling
// their Lightning invoice and marking them Expired so the capacity slot
// they held becomes available again.
type Reaper struct {
	DB        *store.DB
	Tickets   *store.TicketRepo
	Lightning lightning.Client
	Log       btclog.Logger
}

// Run performs a single reaper pass; designed to be called on a fixed
// interval, the same shape as the competition watcher's tick loop,
// rather than driven by its own goroutine.
func (r *Reaper) Run(ctx context.Context, now time.Time) error {
	expired, err := r.Tickets.ListExpiredReservations(ctx, now)
	if err != nil {
		return err
	}

	for _, t := range expired {
		if err := r.expireOne(ctx, t); err != nil {
			if r.Log != nil {
				r.Log.Errorf("reaping ticket %s: %v", t.ID, err)
			}
		}
	}
	return nil
}

func (r *Reaper) expireOne(ctx context.Context, t *domain.Ticket) error {
	var hash lightning.Hash
	copy(hash[:], t.Hash[:])
	if err := r.Lightning.CancelInvoice(ctx, hash); err != nil {
		return err
	}

	return r.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t.State = domain.TicketExpired
		return r.Tickets.Update(ctx, tx, t)
	})
}
