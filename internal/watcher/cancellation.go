package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/lightning"
)

// applyCancellation unwinds every held ticket for a competition an
// operator has requested cancellation of (§5 "Cancellation and timeouts":
// cancellation is reversible and refund-driven, unlike Fail). Runs before
// the competition's own state is persisted as Cancelled, so a crash
// between unwinding a ticket and committing the competition row simply
// replays this function — CancelInvoice and Settle are both tolerant of
// being called against an invoice already in its terminal state.
func (w *Watcher) applyCancellation(ctx context.Context, c *domain.Competition, now time.Time) error {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading entries for cancellation: %w", err)
	}

	for _, e := range entries {
		ticket, err := w.Tickets.Load(ctx, e.TicketID)
		if err != nil {
			return fmt.Errorf("loading ticket %s: %w", e.TicketID, err)
		}
		if ticket.State.IsTerminal() {
			continue
		}
		if !ticket.State.CanTransition(domain.TicketCancelled) {
			continue
		}

		hash := lightningHash(ticket.Hash)
		if err := w.Lightning.CancelInvoice(ctx, hash); err != nil {
			return fmt.Errorf("cancelling invoice for ticket %s: %w", ticket.ID, err)
		}
		if err := w.updateTicket(ctx, ticket, domain.TicketCancelled, now); err != nil {
			return fmt.Errorf("recording cancellation for ticket %s: %w", ticket.ID, err)
		}
	}
	return nil
}

// updateTicket persists t's new state (and the timestamp column that
// goes with it) in its own short transaction, the same read-then-write
// split every other handler uses (§5).
func (w *Watcher) updateTicket(ctx context.Context, t *domain.Ticket, newState domain.TicketState, now time.Time) error {
	ts := now
	switch newState {
	case domain.TicketPaid:
		t.PaidAt = &ts
	case domain.TicketSettled:
		t.SettledAt = &ts
	}
	t.State = newState

	return w.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return w.Tickets.Update(ctx, tx, t)
	})
}

// decryptPreimage opens a ticket's at-rest-sealed preimage (§9 "Secret
// handling") so the watcher can release it to the Lightning node once the
// competition's collateral has confirmed.
func (w *Watcher) decryptPreimage(t *domain.Ticket) (lightning.Preimage, error) {
	var preimage lightning.Preimage
	raw, err := w.Sealer.Open(t.EncryptedPreimage)
	if err != nil {
		return preimage, fmt.Errorf("opening sealed preimage: %w", err)
	}
	if len(raw) != len(preimage) {
		return preimage, fmt.Errorf("decrypted preimage has unexpected length %d", len(raw))
	}
	copy(preimage[:], raw)
	return preimage, nil
}
