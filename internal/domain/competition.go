package domain

import (
	"time"

	"github.com/google/uuid"
)

// Location identifies a weather station the oracle reports observations
// for.
type Location struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EventSubmission is the immutable specification supplied by the admin API
// when a competition is created (§3, §6 admin endpoint).
type EventSubmission struct {
	SigningDate             time.Time  `json:"signing_date"`
	StartObservationDate    time.Time  `json:"start_observation_date"`
	EndObservationDate      time.Time  `json:"end_observation_date"`
	EntryFee                int64      `json:"entry_fee"`
	CoordinatorFeePercentage float64   `json:"coordinator_fee_percentage"`
	TotalAllowedEntries     int        `json:"total_allowed_entries"`
	NumberOfPlacesWin       int        `json:"number_of_places_win"`
	NumberOfValuesPerEntry  int        `json:"number_of_values_per_entry"`
	Locations               []Location `json:"locations"`
}

// TotalCompetitionPool is the prize pool before the coordinator fee is
// deducted, assuming every allowed slot is filled.
func (e EventSubmission) TotalCompetitionPool() int64 {
	return e.EntryFee * int64(e.TotalAllowedEntries)
}

// EventAnnouncement is returned by the oracle when an event is registered
// (§4.2). OutcomeNonces binds each possible outcome index to the oracle's
// public nonce commitment for that outcome.
type EventAnnouncement struct {
	OracleEventID  string            `json:"oracle_event_id"`
	OraclePubkey   []byte            `json:"oracle_pubkey"`
	OutcomeNonces  map[int][]byte    `json:"outcome_nonces"`
	AnnouncedAt    time.Time         `json:"announced_at"`
	RawAnnouncement []byte           `json:"raw_announcement"`
}

// Attestation is the oracle's post-event signature reveal, selecting one
// outcome branch of the DLC (§3 invariant 3).
type Attestation struct {
	OracleEventID string    `json:"oracle_event_id"`
	OutcomeIndex  int       `json:"outcome_index"`
	Signature     []byte    `json:"signature"`
	AttestedAt    time.Time `json:"attested_at"`
}

// PayoutShare is one player's weight within a single outcome's payout
// matrix row (§4.3).
type PayoutShare struct {
	PlayerIndex int `json:"player_index"`
	Weight      int `json:"weight"`
}

// ContractParameters is the DLC payout matrix, keyed by oracle outcome
// index, computed once the entry set is frozen (§3, §4.3).
type ContractParameters struct {
	PayoutMatrix map[int][]PayoutShare `json:"payout_matrix"`
}

// Transitions records the timestamp at which each state was entered. Once
// set, a field is immutable (§3 invariant 2); it is used both for
// ordering and as an idempotency marker ("if set, don't redo the side
// effect").
type Transitions struct {
	EventCreatedAt               *time.Time `json:"event_created_at,omitempty"`
	EntriesCollectedAt           *time.Time `json:"entries_collected_at,omitempty"`
	EscrowFundsConfirmedAt       *time.Time `json:"escrow_funds_confirmed_at,omitempty"`
	ContractCreatedAt            *time.Time `json:"contract_created_at,omitempty"`
	NoncesCollectedAt            *time.Time `json:"nonces_collected_at,omitempty"`
	AggregateNoncesGeneratedAt   *time.Time `json:"aggregate_nonces_generated_at,omitempty"`
	PartialSignaturesCollectedAt *time.Time `json:"partial_signatures_collected_at,omitempty"`
	SigningCompleteAt            *time.Time `json:"signing_complete_at,omitempty"`
	FundingBroadcastedAt         *time.Time `json:"funding_broadcasted_at,omitempty"`
	FundingConfirmedAt           *time.Time `json:"funding_confirmed_at,omitempty"`
	FundingSettledAt             *time.Time `json:"funding_settled_at,omitempty"`
	OutcomeBroadcastedAt         *time.Time `json:"outcome_broadcasted_at,omitempty"`
	ExpiryBroadcastedAt          *time.Time `json:"expiry_broadcasted_at,omitempty"`
	DeltaBroadcastedAt           *time.Time `json:"delta_broadcasted_at,omitempty"`
	CompletedAt                  *time.Time `json:"completed_at,omitempty"`
	CancelledAt                  *time.Time `json:"cancelled_at,omitempty"`
	FailedAt                     *time.Time `json:"failed_at,omitempty"`
}

// CompetitionError is one entry in a competition's ordered error log
// (§3, §7). PlayerIndex is -1 for operator/protocol failures not
// attributable to a single participant.
type CompetitionError struct {
	At          time.Time `json:"at"`
	Reason      string    `json:"reason"`
	PlayerIndex int       `json:"player_index"`
}

// Competition is the canonical entity of §3.
type Competition struct {
	ID                 uuid.UUID           `json:"id"`
	EventSubmission    EventSubmission     `json:"event_submission"`
	EventAnnouncement  *EventAnnouncement  `json:"event_announcement,omitempty"`
	ContractParameters *ContractParameters `json:"contract_parameters,omitempty"`

	FundingPSBT        []byte `json:"funding_psbt,omitempty"`
	FundingOutpoint    string `json:"funding_outpoint,omitempty"`
	FundingTransaction []byte `json:"funding_transaction,omitempty"`

	OutcomeTransaction []byte            `json:"outcome_transaction,omitempty"`
	DeltaTransactions  map[string][]byte `json:"delta_transactions,omitempty"`

	Attestation *Attestation `json:"attestation,omitempty"`

	State       CompetitionState `json:"state"`
	Transitions Transitions      `json:"transitions"`
	Errors      []CompetitionError `json:"errors"`

	CancelRequested bool `json:"cancel_requested"`

	Version int `json:"version"`
}

// NewCompetition constructs a Competition in the Created state. id is
// client-assigned (§3: "UUIDv7, client-assigned").
func NewCompetition(id uuid.UUID, submission EventSubmission) *Competition {
	return &Competition{
		ID:              id,
		EventSubmission: submission,
		State:           Created,
		DeltaTransactions: make(map[string][]byte),
	}
}

// ValidFundingInvariant enforces §3 invariant 4: funding_outpoint is set
// iff funding_transaction is set.
func (c *Competition) ValidFundingInvariant() bool {
	return (c.FundingOutpoint != "") == (len(c.FundingTransaction) != 0)
}

// ValidAttestationInvariant enforces §3 invariant 3: an attestation
// implies an announcement is already present.
func (c *Competition) ValidAttestationInvariant() bool {
	if c.Attestation == nil {
		return true
	}
	return c.EventAnnouncement != nil
}

// AppendError records a participant- or operator-attributable failure
// without itself changing state (§7); the caller's handler decides
// whether to Stay, exclude a participant, or Cancel/Fail.
func (c *Competition) AppendError(at time.Time, reason string, playerIndex int) {
	c.Errors = append(c.Errors, CompetitionError{
		At:          at,
		Reason:      reason,
		PlayerIndex: playerIndex,
	})
}
