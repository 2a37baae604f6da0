package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
)

// TicketRepo persists domain.Ticket rows.
type TicketRepo struct {
	db *DB
}

func NewTicketRepo(db *DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// Insert reserves a new ticket row (§4.5 "Reservation"). The unique index
// on hash makes a hash collision (astronomically unlikely for a random
// 32-byte preimage) surface as a constraint violation rather than a
// silent overwrite.
func (r *TicketRepo) Insert(ctx context.Context, t *domain.Ticket) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tickets (
			id, event_id, ephemeral_pubkey, encrypted_preimage, hash,
			payment_request, state, reserved_at, reserved_by,
			reservation_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.EventID, t.EphemeralPubkey, t.EncryptedPreimage, t.Hash[:],
		t.PaymentRequest, t.State, t.ReservedAt, t.ReservedBy,
		t.ReservationExpiresAt,
	)
	return err
}

// CountActive returns the number of tickets for event that still occupy a
// capacity slot (everything except Expired/Cancelled), enforcing §3's
// "entry count never exceeds total_allowed_entries" at the reservation
// gate (§4.5).
func (r *TicketRepo) CountActive(ctx context.Context, tx pgxTx, eventID uuid.UUID) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM tickets
		WHERE event_id = $1 AND state NOT IN ($2, $3)`,
		eventID, domain.TicketExpired, domain.TicketCancelled,
	).Scan(&count)
	return count, err
}

// Load reads one ticket row without locking it, for read-only status
// checks (§6 "GET .../tickets/{id}/status").
func (r *TicketRepo) Load(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	row := r.db.Pool.QueryRow(ctx, ticketSelectColumns+` FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

// LoadForUpdate locks one ticket row within tx.
func (r *TicketRepo) LoadForUpdate(ctx context.Context, tx pgxTx, id uuid.UUID) (*domain.Ticket, error) {
	row := tx.QueryRow(ctx, ticketSelectColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id)
	return scanTicket(row)
}

// ListByEventAndState locks and returns every ticket for event in any of
// the given states, within tx (used by the watcher's settlement and
// cancellation handlers to act on a whole batch atomically).
func (r *TicketRepo) ListByEventAndState(ctx context.Context, tx pgxTx, eventID uuid.UUID, states ...domain.TicketState) ([]*domain.Ticket, error) {
	rows, err := tx.Query(ctx, ticketSelectColumns+`
		FROM tickets WHERE event_id = $1 AND state = ANY($2) FOR UPDATE`,
		eventID, states,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListExpiredReservations finds Reserved tickets whose TTL has passed as
// of now, for the watcher's reservation reaper (§4.5, SPEC_FULL.md §D).
func (r *TicketRepo) ListExpiredReservations(ctx context.Context, now time.Time) ([]*domain.Ticket, error) {
	rows, err := r.db.Pool.Query(ctx, ticketSelectColumns+`
		FROM tickets WHERE state = $1 AND reservation_expires_at < $2`,
		domain.TicketReserved, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const ticketSelectColumns = `
	SELECT id, event_id, ephemeral_pubkey, encrypted_preimage, hash,
	       payment_request, state, reserved_at, reserved_by,
	       reservation_expires_at, paid_at, settled_at, escrow_transaction, version`

func scanTicket(row scanRow) (*domain.Ticket, error) {
	var (
		t      domain.Ticket
		hash   []byte
	)
	err := row.Scan(
		&t.ID, &t.EventID, &t.EphemeralPubkey, &t.EncryptedPreimage, &hash,
		&t.PaymentRequest, &t.State, &t.ReservedAt, &t.ReservedBy,
		&t.ReservationExpiresAt, &t.PaidAt, &t.SettledAt, &t.EscrowTransaction,
		&t.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(t.Hash[:], hash)
	return &t, nil
}

// Update persists t's mutable fields guarded by its version (§5).
func (r *TicketRepo) Update(ctx context.Context, tx pgxTx, t *domain.Ticket) error {
	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET
			state = $1, paid_at = $2, settled_at = $3,
			escrow_transaction = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		t.State, t.PaidAt, t.SettledAt, t.EscrowTransaction, t.ID, t.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	t.Version++
	return nil
}
