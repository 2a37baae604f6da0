package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is the admission token gating entry into a competition (§3, §4.5).
//
// The coordinator generates the preimage; it is encrypted at rest to the
// coordinator's key and never reaches the payer directly except as the
// hash bound into the BOLT-11 invoice (§9 "Secret handling").
type Ticket struct {
	ID              uuid.UUID   `json:"id"`
	EventID         uuid.UUID   `json:"event_id"`
	EphemeralPubkey []byte      `json:"ephemeral_pubkey"`
	EncryptedPreimage []byte    `json:"encrypted_preimage"`
	Hash            [32]byte    `json:"hash"`
	PaymentRequest  string      `json:"payment_request"`
	State           TicketState `json:"state"`

	ReservedAt *time.Time `json:"reserved_at,omitempty"`
	ReservedBy []byte     `json:"reserved_by"`
	ReservationExpiresAt time.Time `json:"reservation_expires_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`

	EscrowTransaction []byte `json:"escrow_transaction,omitempty"`

	Version int `json:"version"`
}

// NewTicket reserves a ticket for event at creation time now, expiring
// after ttl unless paid (§4.5 "Reservation is TTL-scoped").
func NewTicket(id, eventID uuid.UUID, reservedBy, ephemeralPubkey []byte, hash [32]byte, now time.Time, ttl time.Duration) *Ticket {
	return &Ticket{
		ID:                   id,
		EventID:              eventID,
		EphemeralPubkey:      ephemeralPubkey,
		Hash:                 hash,
		State:                TicketReserved,
		ReservedAt:           &now,
		ReservedBy:           reservedBy,
		ReservationExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether an unpaid reservation has aged out as of now.
func (t *Ticket) Expired(now time.Time) bool {
	return t.State == TicketReserved && now.After(t.ReservationExpiresAt)
}
