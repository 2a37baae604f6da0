package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Well-known transaction-kind labels used as signing session keys and as
// Entry.PartialSignatures map keys (§4.4). Outcome and sellback kinds are
// parameterized by index/player and built with OutcomeTxKind/SellbackTxKind.
const (
	TxKindFunding TxKindPrefix = "funding"
	TxKindDelta1  TxKindPrefix = "delta_1"
	TxKindDelta2  TxKindPrefix = "delta_2"
)

// TxKindPrefix names one of the transaction families signed per §4.4.
type TxKindPrefix = string

// OutcomeTxKind names the outcome transaction for a specific oracle outcome
// index.
func OutcomeTxKind(outcomeIdx int) string {
	return "outcome:" + strconv.Itoa(outcomeIdx)
}

// SellbackTxKind names the cooperative sellback transaction for a specific
// player index.
func SellbackTxKind(playerIndex int) string {
	return "sellback:" + strconv.Itoa(playerIndex)
}

// SigningSession is the per-transaction MuSig2 state described in §4.4:
// coordinator round-1 nonce, the aggregated round-1 nonce once every
// participant has posted theirs, and the final aggregated signature once
// round 2 completes. CoordinatorSecNonce holds the coordinator's secret
// nonce half sealed via internal/crypto — a Session object never survives
// between watcher ticks, so this is the only thing that lets the
// coordinator sign once round-1 completes instead of reusing a nonce it
// never kept (§9 "Secret handling").
type SigningSession struct {
	CompetitionID       uuid.UUID
	TxKind              string
	State               SigningSessionState
	CoordinatorNonce    []byte
	CoordinatorSecNonce []byte
	AggregateNonce      []byte
	AggregateKey        []byte
	SigHash             []byte
	FinalSignature      []byte
	Error               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int
}

// NewSigningSession starts a session in the Pending state for the given
// competition/tx-kind pair.
func NewSigningSession(competitionID uuid.UUID, txKind string, now time.Time) *SigningSession {
	return &SigningSession{
		CompetitionID: competitionID,
		TxKind:        txKind,
		State:         SigningPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
