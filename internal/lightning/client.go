// Package lightning declares the coordinator's view of the Lightning node
// it runs in front of: hodl-invoice add/settle/cancel, the shape
// invoices/invoiceregistry.go exposes internally to an lnd daemon, here
// narrowed to the calls a coordinator process issues as a client (§1, §6 —
// the Lightning node is a collaborator, not a component this module owns).
package lightning

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Hash is a payment hash: SHA-256 of a Preimage.
type Hash [32]byte

// Preimage is a 32-byte hodl-invoice preimage.
type Preimage [32]byte

// Hash derives the payment hash locked to this preimage.
func (p Preimage) Hash() Hash {
	return Hash(sha256.Sum256(p[:]))
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// InvoiceState mirrors the subset of channeldb.ContractState a hodl
// invoice actually passes through from this coordinator's point of view.
type InvoiceState string

const (
	InvoiceOpen      InvoiceState = "open"
	InvoiceAccepted  InvoiceState = "accepted"
	InvoiceSettled   InvoiceState = "settled"
	InvoiceCancelled InvoiceState = "cancelled"
)

// Invoice is the subset of invoice state the coordinator needs to drive a
// ticket's lifecycle (§4.5).
type Invoice struct {
	Hash           Hash
	PaymentRequest string
	State          InvoiceState
	ValueSat       int64
}

// Client is the coordinator's Lightning node dependency.
type Client interface {
	// AddHodlInvoice creates a held invoice for amtSat locked to hash,
	// expiring after expiry. The preimage is never given to the node —
	// that's the entire point of a hodl invoice (§4.5 "Reservation").
	AddHodlInvoice(ctx context.Context, hash Hash, amtSat int64, memo string, expirySeconds int64) (paymentRequest string, err error)

	// LookupInvoice returns the current state of the invoice for hash,
	// used to poll for the HTLC-held → Paid transition (§4.5 "Paid").
	LookupInvoice(ctx context.Context, hash Hash) (*Invoice, error)

	// SettleInvoice releases preimage to the node, completing the
	// payment (§4.5 "Settled" — only ever called once the funding
	// transaction the payment is escrowing has confirmed).
	SettleInvoice(ctx context.Context, preimage Preimage) error

	// CancelInvoice aborts a held invoice, refunding the payer without
	// any on-chain action (§4.5 "Settled": "lncli cancelinvoice refunds
	// the payer").
	CancelInvoice(ctx context.Context, hash Hash) error

	// PayInvoice pays a BOLT-11 invoice a winning participant registered
	// as their payout destination (§4.6 cooperative payout path). It
	// blocks until the payment either settles or fails outright.
	PayInvoice(ctx context.Context, paymentRequest string, amtSat int64) (preimage Preimage, err error)
}
