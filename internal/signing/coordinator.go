package signing

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator/internal/crypto"
	"github.com/5day4cast/coordinator/internal/domain"
)

// Coordinator drives the §4.4 signing sessions for one competition. It
// holds the coordinator's own long-term signing key directly (the
// coordinator is not an enclave participant) and reaches the enclave only
// to register sessions on participants' behalf, identified by session ID
// alone — participant secrets never cross into this process. Sealer seals
// the coordinator's own MuSig2 secret nonce at rest between ticks, since
// a Session never survives one (§9 "Secret handling").
type Coordinator struct {
	Enclave        EnclaveClient
	CoordinatorKey *btcec.PrivateKey
	Sealer         *crypto.Sealer
}

// SessionID builds the enclave session identifier for one (competition,
// tx kind, player) triple.
func SessionID(competitionID uuid.UUID, txKind string, playerIndex int) string {
	return fmt.Sprintf("%s:%s:%d", competitionID, txKind, playerIndex)
}

// OpenEnclaveSessions registers one enclave session per entry for txKind,
// so that when that entry later submits its round-1 nonce or round-2
// partial signature through the API, the enclave can find the matching
// session. Safe to call more than once; OpenSession is expected to be
// idempotent on the enclave side for a session ID already registered.
func (c *Coordinator) OpenEnclaveSessions(ctx context.Context, competitionID uuid.UUID, txKind string, entries []*domain.Entry, playerIndices map[uuid.UUID]int) error {
	for _, e := range entries {
		idx, ok := playerIndices[e.ID]
		if !ok {
			return fmt.Errorf("entry %s has no assigned player index", e.ID)
		}
		pub, err := btcec.ParsePubKey(e.EphemeralPubkey)
		if err != nil {
			return fmt.Errorf("parsing ephemeral pubkey for entry %s: %w", e.ID, err)
		}
		sessionID := SessionID(competitionID, txKind, idx)
		if _, err := c.Enclave.OpenSession(ctx, sessionID, pub); err != nil {
			return fmt.Errorf("opening enclave session %s: %w", sessionID, err)
		}
	}
	return nil
}

// BuildSession assembles an in-memory Session for txKind from the frozen
// entry set, pulling each participant's currently-known round-1 nonce and
// round-2 partial signature for txKind out of their entry row (§4.4
// "coordinator polls each entry's public_nonces column").
func (c *Coordinator) BuildSession(txKind string, aggregateKey *btcec.PublicKey, sigHash [32]byte, entries []*domain.Entry, playerIndices map[uuid.UUID]int) (*Session, error) {
	participants := make([]*Participant, len(entries))
	for _, e := range entries {
		idx, ok := playerIndices[e.ID]
		if !ok {
			return nil, fmt.Errorf("entry %s has no assigned player index", e.ID)
		}
		pub, err := btcec.ParsePubKey(e.EphemeralPubkey)
		if err != nil {
			return nil, fmt.Errorf("parsing ephemeral pubkey for entry %s: %w", e.ID, err)
		}

		p := &Participant{PlayerIndex: idx, PubKey: pub}
		if len(e.PublicNonces) == 66 {
			var n [66]byte
			copy(n[:], e.PublicNonces)
			p.PubNonce = &n
		}
		if raw, ok := e.PartialSignatures[txKind]; ok && len(raw) > 0 {
			sig, err := decodePartialSig(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding partial sig for entry %s: %w", e.ID, err)
			}
			p.PartialSig = sig
		}
		participants[idx] = p
	}

	return NewSession(txKind, c.CoordinatorKey, aggregateKey, sigHash, participants), nil
}

// Advance runs one step of stored's state machine against the live
// Session, mutating stored in place. The caller persists stored via
// store.SigningSessionRepo.Update within the same competition-row
// transaction that invoked it (§5 serialization).
func (c *Coordinator) Advance(ctx context.Context, session *Session, stored *domain.SigningSession, now time.Time) error {
	switch stored.State {
	case domain.SigningPending:
		nonce, err := session.GenerateCoordinatorNonce()
		if err != nil {
			return err
		}
		secNonce, err := c.Sealer.Seal(session.coordinatorNonce.SecNonce[:])
		if err != nil {
			return fmt.Errorf("sealing coordinator secret nonce for %s: %w", stored.TxKind, err)
		}
		stored.CoordinatorNonce = nonce[:]
		stored.CoordinatorSecNonce = secNonce
		stored.AggregateKey = session.aggregateKey.SerializeCompressed()
		stored.SigHash = session.sigHash[:]
		stored.State = domain.SigningNoncesPending

	case domain.SigningNoncesPending:
		if len(stored.CoordinatorNonce) == 66 {
			var n [66]byte
			copy(n[:], stored.CoordinatorNonce)
			session.RestoreCoordinatorNonce(n)
		}
		if !session.HasAllNonces() {
			return nil
		}
		agg, err := session.AggregateRound1()
		if err != nil {
			return err
		}
		stored.AggregateNonce = agg[:]
		stored.State = domain.SigningNoncesComplete

	case domain.SigningNoncesComplete:
		if len(stored.AggregateNonce) == 66 {
			copy(session.aggregateNonce[:], stored.AggregateNonce)
		}
		if err := c.restoreCoordinatorSecretNonce(session, stored); err != nil {
			return err
		}
		if err := session.SignCoordinator(); err != nil {
			return err
		}
		stored.State = domain.SigningSigsPending

	case domain.SigningSigsPending:
		if len(stored.AggregateNonce) == 66 {
			copy(session.aggregateNonce[:], stored.AggregateNonce)
		}
		// The coordinator's partial signature is not persisted; session is
		// fresh this tick, so re-derive it from the sealed secret nonce.
		if err := c.restoreCoordinatorSecretNonce(session, stored); err != nil {
			return err
		}
		if err := session.SignCoordinator(); err != nil {
			return err
		}
		for _, p := range session.Participants {
			if p.PartialSig == nil {
				continue
			}
			if err := session.VerifyAndSetPartialSig(p.PlayerIndex, p.PartialSig); err != nil {
				stored.Error = err.Error()
				stored.State = domain.SigningFailed
				return nil
			}
		}
		if !session.HasAllPartialSigs() {
			return nil
		}
		finalSig, err := session.AggregateRound2()
		if err != nil {
			return err
		}
		stored.FinalSignature = finalSig
		stored.State = domain.SigningSigsComplete

	case domain.SigningSigsComplete:
		stored.State = domain.SigningBroadcast
	}

	stored.UpdatedAt = now
	return nil
}

// restoreCoordinatorSecretNonce unseals stored's persisted coordinator
// nonce and fully reinstalls it on session, both halves, since session is
// rebuilt fresh from store state every tick and SignCoordinator needs the
// secret half that only ever lived in the tick that generated it.
func (c *Coordinator) restoreCoordinatorSecretNonce(session *Session, stored *domain.SigningSession) error {
	if len(stored.CoordinatorNonce) != 66 {
		return fmt.Errorf("session %s has no coordinator public nonce on file", stored.TxKind)
	}
	if len(stored.CoordinatorSecNonce) == 0 {
		return fmt.Errorf("session %s has no sealed coordinator secret nonce on file", stored.TxKind)
	}

	raw, err := c.Sealer.Open(stored.CoordinatorSecNonce)
	if err != nil {
		return fmt.Errorf("opening sealed coordinator secret nonce for %s: %w", stored.TxKind, err)
	}
	if len(raw) != 97 {
		return fmt.Errorf("unsealed coordinator secret nonce for %s has unexpected length %d", stored.TxKind, len(raw))
	}

	var pub [66]byte
	copy(pub[:], stored.CoordinatorNonce)
	var sec [97]byte
	copy(sec[:], raw)

	session.RestoreCoordinatorSecretNonce(pub, sec)
	return nil
}

func decodePartialSig(raw []byte) (*musig2.PartialSignature, error) {
	var sig musig2.PartialSignature
	if err := sig.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &sig, nil
}
