package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Pick is a participant's prediction for one (station, metric) pair
// (§4.3 scoring rule).
type Pick string

const (
	PickOver  Pick = "over"
	PickPar   Pick = "par"
	PickUnder Pick = "under"
)

// StationPick holds every metric pick a participant made for one station.
type StationPick struct {
	StationID string          `json:"station_id"`
	Metrics   map[string]Pick `json:"metrics"`
}

// EntrySubmission is what a participant actually predicts (§3).
type EntrySubmission struct {
	Picks []StationPick `json:"picks"`
}

// Entry is one participant's submission (§3).
type Entry struct {
	ID              uuid.UUID `json:"id"`
	EventID         uuid.UUID `json:"event_id"`
	TicketID        uuid.UUID `json:"ticket_id"`
	UserPubkey      []byte    `json:"user_pubkey"`
	EphemeralPubkey []byte    `json:"ephemeral_pubkey"`

	EncryptedKeyMaterial []byte `json:"encrypted_key_material"`

	EntrySubmission EntrySubmission `json:"entry_submission"`

	PublicNonces       []byte            `json:"public_nonces,omitempty"`
	FundingPSBTSigned  []byte            `json:"funding_psbt_signed,omitempty"`
	PartialSignatures  map[string][]byte `json:"partial_signatures,omitempty"`

	PayoutLightningInvoice string `json:"payout_ln_invoice,omitempty"`

	NoncesSubmittedAt *time.Time `json:"nonces_submitted_at,omitempty"`
	SignedAt          *time.Time `json:"signed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	Version int `json:"version"`
}

// NewEntry binds an entry to a settled-or-paid ticket (§4.5 "Entry
// binding"). Callers must verify ephemeralPubkey matches the ticket's
// locked key before calling this constructor.
func NewEntry(id, eventID, ticketID uuid.UUID, userPubkey, ephemeralPubkey []byte, submission EntrySubmission, now time.Time) *Entry {
	return &Entry{
		ID:                id,
		EventID:           eventID,
		TicketID:          ticketID,
		UserPubkey:        userPubkey,
		EphemeralPubkey:   ephemeralPubkey,
		EntrySubmission:   submission,
		PartialSignatures: make(map[string][]byte),
		CreatedAt:         now,
	}
}

// AssignPlayerIndices sorts entries by id ascending and returns a map from
// entry id to its permanent player index (§3, §4.3 step 1).
func AssignPlayerIndices(entries []*Entry) map[uuid.UUID]int {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	indices := make(map[uuid.UUID]int, len(sorted))
	for i, e := range sorted {
		indices[e.ID] = i
	}
	return indices
}

// HasAllNonces reports whether every entry in the set has posted its
// round-1 public nonce (§4.4 round 1 completion condition).
func HasAllNonces(entries []*Entry) bool {
	for _, e := range entries {
		if len(e.PublicNonces) == 0 {
			return false
		}
	}
	return true
}

// HasAllPartialSignatures reports whether every entry has posted a
// partial signature for every one of the given transaction labels
// (§4.4 round 2 completion condition).
func HasAllPartialSignatures(entries []*Entry, txLabels []string) bool {
	for _, e := range entries {
		for _, label := range txLabels {
			if _, ok := e.PartialSignatures[label]; !ok {
				return false
			}
		}
	}
	return true
}
