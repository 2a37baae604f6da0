// Package tickets implements the hodl-invoice ticket lifecycle described
// in §4.5: reservation, payment, escrow, and settlement, plus the
// reservation TTL reaper that reclaims unpaid reservations.
package tickets

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/lightning"
)

// DefaultReservationTTL is the default reservation window named in §4.5.
const DefaultReservationTTL = 10 * time.Minute

// Service drives ticket state transitions. It is a thin orchestration
// layer: all persistence goes through the store.TicketRepo the caller
// supplies at each call, the same "caller owns the transaction" shape
// internal/store's repos already follow.
type Service struct {
	Lightning lightning.Client
	Now       func() time.Time
}

// NewService builds a Service using time.Now for its clock.
func NewService(client lightning.Client) *Service {
	return &Service{Lightning: client, Now: time.Now}
}

// Reserve creates a new Reserved ticket for eventID, generating a fresh
// preimage and asking the Lightning node for a hodl invoice locked to its
// hash (§4.5 "Reservation"). The returned ticket's PaymentRequest is what
// the API layer hands back to the client; the preimage itself is encrypted
// by the caller before being persisted (internal/store only ever sees
// EncryptedPreimage).
func (s *Service) Reserve(ctx context.Context, eventID uuid.UUID, reservedBy, ephemeralPubkey []byte, entryFeeSat int64, ttl time.Duration) (*domain.Ticket, lightning.Preimage, error) {
	var preimage lightning.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, preimage, fmt.Errorf("generating ticket preimage: %w", err)
	}
	hash := preimage.Hash()

	now := s.Now()
	paymentRequest, err := s.Lightning.AddHodlInvoice(ctx, hash, entryFeeSat, eventID.String(), int64(ttl.Seconds()))
	if err != nil {
		return nil, preimage, fmt.Errorf("adding hodl invoice: %w", err)
	}

	ticket := domain.NewTicket(uuid.New(), eventID, reservedBy, ephemeralPubkey, [32]byte(hash), now, ttl)
	ticket.PaymentRequest = paymentRequest
	return ticket, preimage, nil
}

// ObservePayment polls the Lightning node for eventID's invoice state and
// reports whether it has moved to held/accepted (§4.5 "Paid"). Callers
// transition the ticket to TicketPaid and build the escrow refund
// transaction only after this returns true.
func (s *Service) ObservePayment(ctx context.Context, hash lightning.Hash) (bool, error) {
	inv, err := s.Lightning.LookupInvoice(ctx, hash)
	if err != nil {
		return false, err
	}
	return inv.State == lightning.InvoiceAccepted, nil
}

// Settle releases preimage to the Lightning node, completing payment only
// once the competition has reached FundingConfirmed (§4.5 "Settled").
// Callers must already have verified that precondition; Settle itself
// does not re-check competition state.
func (s *Service) Settle(ctx context.Context, preimage lightning.Preimage) error {
	return s.Lightning.SettleInvoice(ctx, preimage)
}

// Cancel aborts a held invoice, refunding the payer with no on-chain
// action (§4.5 "lncli cancelinvoice refunds the payer").
func (s *Service) Cancel(ctx context.Context, hash lightning.Hash) error {
	return s.Lightning.CancelInvoice(ctx, hash)
}

// HashPreimage is a small helper so callers that already hold a decrypted
// preimage (e.g. after loading EncryptedPreimage and decrypting it) can
// recompute and verify the ticket's hash column before trusting it.
func HashPreimage(preimage lightning.Preimage) []byte {
	hash := preimage.Hash()
	return hash[:]
}
