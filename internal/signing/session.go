// Package signing implements the two-round MuSig2 collection described in
// §4.4: per-transaction sessions that collect round-1 public nonces,
// aggregate them, collect round-2 partial signatures, verify each one
// before it is allowed to advance the session, and aggregate the result
// into the final Schnorr signature attached to the transaction.
package signing

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator/internal/domain"
)

// EnclaveClient is the subset of enclave.Client the session machine needs,
// declared locally so this package doesn't import internal/enclave just to
// spell out a dependency.
type EnclaveClient interface {
	OpenSession(ctx context.Context, sessionID string, participantPub *btcec.PublicKey) (*musig2.Nonces, error)
	Sign(ctx context.Context, sessionID string, aggregateNonce [66]byte, aggregateKey *btcec.PublicKey, sigHash [32]byte) (*musig2.PartialSignature, error)
}

// Participant is one signer in a session besides the coordinator: their
// static pubkey, their posted round-1 nonce (nil until received) and
// posted round-2 partial signature (nil until received).
type Participant struct {
	PlayerIndex int
	PubKey      *btcec.PublicKey
	PubNonce    *[66]byte
	PartialSig  *musig2.PartialSignature
}

// Session drives one transaction's round-1/round-2 collection per §4.4.
// It is pure state: all persistence is the caller's responsibility via
// domain.SigningSession / store.SigningSessionRepo, so the same Session
// value can be rehydrated from a store row after a restart (§4.1 recovery
// policy extends to in-flight signing sessions).
type Session struct {
	TxKind         string
	CoordinatorKey *btcec.PrivateKey
	Participants   []*Participant

	coordinatorNonce *musig2.Nonces
	aggregateNonce   [66]byte
	aggregateKey     *btcec.PublicKey
	sigHash          [32]byte

	coordinatorPartialSig *musig2.PartialSignature
	finalSig              []byte
}

// NewSession builds a fresh in-memory session for txKind over the given
// aggregate key and sighash. participants must be ordered by player index.
func NewSession(txKind string, coordinatorKey *btcec.PrivateKey, aggregateKey *btcec.PublicKey, sigHash [32]byte, participants []*Participant) *Session {
	return &Session{
		TxKind:         txKind,
		CoordinatorKey: coordinatorKey,
		Participants:   participants,
		aggregateKey:   aggregateKey,
		sigHash:        sigHash,
	}
}

// GenerateCoordinatorNonce produces the coordinator's own round-1 nonce.
// Called once per session, when it first enters NoncesPending.
func (s *Session) GenerateCoordinatorNonce() ([66]byte, error) {
	nonces, err := musig2.GenNonces()
	if err != nil {
		return [66]byte{}, fmt.Errorf("generating coordinator nonce for %s: %w", s.TxKind, err)
	}
	s.coordinatorNonce = nonces
	return nonces.PubNonce, nil
}

// RestoreCoordinatorNonce reinstalls a previously-generated coordinator
// nonce's public half after a restart, without regenerating it. Round 1
// only ever needs the public half to aggregate, so this is sufficient
// for HasAllNonces/AggregateRound1; signing needs the secret half too,
// restored separately via RestoreCoordinatorSecretNonce.
func (s *Session) RestoreCoordinatorNonce(pub [66]byte) {
	s.coordinatorNonce = &musig2.Nonces{PubNonce: pub}
}

// RestoreCoordinatorSecretNonce reinstalls both halves of a previously
// generated coordinator nonce, required before SignCoordinator can run.
// A Session is rebuilt fresh from store state on every watcher tick
// (§4.4), so the secret half generated in the Pending tick would
// otherwise never reach the tick that signs — the caller is expected to
// have kept it sealed at rest (internal/crypto) between the two ticks.
func (s *Session) RestoreCoordinatorSecretNonce(pub [66]byte, sec [97]byte) {
	s.coordinatorNonce = &musig2.Nonces{PubNonce: pub, SecNonce: sec}
}

// SetParticipantNonce records participant playerIndex's round-1 nonce.
func (s *Session) SetParticipantNonce(playerIndex int, pubNonce [66]byte) error {
	p := s.participant(playerIndex)
	if p == nil {
		return fmt.Errorf("no participant at player index %d for session %s", playerIndex, s.TxKind)
	}
	p.PubNonce = &pubNonce
	return nil
}

// HasAllNonces reports whether every participant plus the coordinator has
// posted a round-1 nonce — the §4.4 round-1 completion condition.
func (s *Session) HasAllNonces() bool {
	if s.coordinatorNonce == nil {
		return false
	}
	for _, p := range s.Participants {
		if p.PubNonce == nil {
			return false
		}
	}
	return true
}

// AggregateRound1 combines every posted nonce into the session's
// aggregate nonce, advancing round 1 to completion.
func (s *Session) AggregateRound1() ([66]byte, error) {
	if !s.HasAllNonces() {
		return [66]byte{}, errors.New("cannot aggregate round 1: missing nonces")
	}

	all := make([][66]byte, 0, len(s.Participants)+1)
	all = append(all, s.coordinatorNonce.PubNonce)
	for _, p := range s.Participants {
		all = append(all, *p.PubNonce)
	}

	agg, err := musig2.AggregateNonces(all)
	if err != nil {
		return [66]byte{}, fmt.Errorf("aggregating round-1 nonces for %s: %w", s.TxKind, err)
	}
	s.aggregateNonce = agg
	return agg, nil
}

// pubKeys returns coordinator + participant keys in the same fixed order
// AggregateRound1/AggregateFundingKey used, required for verification.
func (s *Session) pubKeys() []*btcec.PublicKey {
	keys := make([]*btcec.PublicKey, 0, len(s.Participants)+1)
	keys = append(keys, s.CoordinatorKey.PubKey())
	for _, p := range s.Participants {
		keys = append(keys, p.PubKey)
	}
	return keys
}

// SignCoordinator produces the coordinator's own round-2 partial
// signature, once the round-1 aggregate nonce is known.
func (s *Session) SignCoordinator() error {
	sig, err := musig2.Sign(s.coordinatorNonce.SecNonce, s.CoordinatorKey, s.aggregateNonce, s.pubKeys(), s.sigHash)
	if err != nil {
		return fmt.Errorf("coordinator signing %s: %w", s.TxKind, err)
	}
	s.coordinatorPartialSig = sig
	return nil
}

// VerifyAndSetPartialSig is the §4.4 verification contract: a participant's
// partial signature is checked against their public nonce, the aggregate
// nonce, the aggregate key, and the sighash before it is recorded. A
// participant whose signature fails verification does not advance the
// session — the caller is expected to fail that entry rather than retry
// silently.
func (s *Session) VerifyAndSetPartialSig(playerIndex int, sig *musig2.PartialSignature) error {
	p := s.participant(playerIndex)
	if p == nil {
		return fmt.Errorf("no participant at player index %d for session %s", playerIndex, s.TxKind)
	}
	if p.PubNonce == nil {
		return fmt.Errorf("player %d has no round-1 nonce on file for session %s", playerIndex, s.TxKind)
	}

	ok := sig.Verify(*p.PubNonce, s.aggregateNonce, s.pubKeys(), p.PubKey, s.sigHash)
	if !ok {
		return fmt.Errorf("partial signature from player %d failed verification for session %s", playerIndex, s.TxKind)
	}

	p.PartialSig = sig
	return nil
}

// HasAllPartialSigs reports whether every participant plus the coordinator
// has a verified partial signature on file.
func (s *Session) HasAllPartialSigs() bool {
	if s.coordinatorPartialSig == nil {
		return false
	}
	for _, p := range s.Participants {
		if p.PartialSig == nil {
			return false
		}
	}
	return true
}

// AggregateRound2 combines every partial signature into the final Schnorr
// signature over the session's sighash.
func (s *Session) AggregateRound2() ([]byte, error) {
	if !s.HasAllPartialSigs() {
		return nil, errors.New("cannot aggregate round 2: missing partial signatures")
	}

	sigs := make([]*musig2.PartialSignature, 0, len(s.Participants)+1)
	sigs = append(sigs, s.coordinatorPartialSig)
	for _, p := range s.Participants {
		sigs = append(sigs, p.PartialSig)
	}

	finalSig, err := musig2.AggregateSigs(s.aggregateKey, sigs)
	if err != nil {
		return nil, fmt.Errorf("aggregating round-2 signatures for %s: %w", s.TxKind, err)
	}

	s.finalSig = finalSig.Serialize()
	return s.finalSig, nil
}

func (s *Session) participant(playerIndex int) *Participant {
	for _, p := range s.Participants {
		if p.PlayerIndex == playerIndex {
			return p
		}
	}
	return nil
}

// NextState computes the session's next domain.SigningSessionState given
// its current persisted state and the live in-memory progress, so the
// caller can drive domain.SigningSession.State without re-deriving this
// logic at every call site.
func NextState(current domain.SigningSessionState, s *Session) domain.SigningSessionState {
	switch current {
	case domain.SigningPending:
		return domain.SigningNoncesPending
	case domain.SigningNoncesPending:
		if s.HasAllNonces() {
			return domain.SigningNoncesComplete
		}
		return domain.SigningNoncesPending
	case domain.SigningNoncesComplete:
		return domain.SigningSigsPending
	case domain.SigningSigsPending:
		if s.HasAllPartialSigs() {
			return domain.SigningSigsComplete
		}
		return domain.SigningSigsPending
	case domain.SigningSigsComplete:
		return domain.SigningBroadcast
	default:
		return current
	}
}
