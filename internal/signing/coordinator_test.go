package signing

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/crypto"
	"github.com/5day4cast/coordinator/internal/domain"
)

func newSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	return sealer
}

func newTestEntry(t *testing.T, playerIndices map[uuid.UUID]int, idx int, pub *btcec.PublicKey, pubNonce [66]byte) *domain.Entry {
	t.Helper()
	e := &domain.Entry{
		ID:                uuid.New(),
		EphemeralPubkey:   pub.SerializeCompressed(),
		PublicNonces:      pubNonce[:],
		PartialSignatures: map[string][]byte{},
	}
	playerIndices[e.ID] = idx
	return e
}

// TestCoordinator_AdvanceAcrossSeparateSessions drives Coordinator.Advance
// across a fresh BuildSession call per tick, the way stepSigningSession
// actually calls it in production — rather than a single reused Session,
// which masks the secret nonce never surviving between ticks.
func TestCoordinator_AdvanceAcrossSeparateSessions(t *testing.T) {
	coordinatorKey := newPrivKey(t)
	p0Key := newPrivKey(t)
	p1Key := newPrivKey(t)

	aggKey, err := musig2.AggregateKeys(
		[]*btcec.PublicKey{coordinatorKey.PubKey(), p0Key.PubKey(), p1Key.PubKey()}, false,
	)
	require.NoError(t, err)

	sigHash := sha256.Sum256([]byte("funding tx sighash"))

	p0Nonces, err := musig2.GenNonces()
	require.NoError(t, err)
	p1Nonces, err := musig2.GenNonces()
	require.NoError(t, err)

	playerIndices := map[uuid.UUID]int{}
	e0 := newTestEntry(t, playerIndices, 0, p0Key.PubKey(), p0Nonces.PubNonce)
	e1 := newTestEntry(t, playerIndices, 1, p1Key.PubKey(), p1Nonces.PubNonce)
	entries := []*domain.Entry{e0, e1}

	coordinator := &Coordinator{CoordinatorKey: coordinatorKey, Sealer: newSealer(t)}
	stored := domain.NewSigningSession(uuid.New(), domain.TxKindFunding, time.Time{})

	// Tick 1: SigningPending -> SigningNoncesPending. Generates and seals
	// the coordinator's secret nonce; the Session built for this tick is
	// discarded immediately afterward, exactly like stepSigningSession.
	session, err := coordinator.BuildSession(domain.TxKindFunding, aggKey.FinalKey, sigHash, entries, playerIndices)
	require.NoError(t, err)
	require.NoError(t, coordinator.Advance(context.Background(), session, stored, time.Time{}))
	require.Equal(t, domain.SigningNoncesPending, stored.State)
	require.NotEmpty(t, stored.CoordinatorSecNonce)

	// Tick 2: SigningNoncesPending -> SigningNoncesComplete, against a
	// brand new Session that never saw tick 1's in-memory nonce.
	session, err = coordinator.BuildSession(domain.TxKindFunding, aggKey.FinalKey, sigHash, entries, playerIndices)
	require.NoError(t, err)
	require.NoError(t, coordinator.Advance(context.Background(), session, stored, time.Time{}))
	require.Equal(t, domain.SigningNoncesComplete, stored.State)

	// Tick 3: SigningNoncesComplete -> SigningSigsPending. This is the
	// tick that used to panic: session.coordinatorNonce was nil on this
	// freshly built Session, since nothing had restored the secret half.
	session, err = coordinator.BuildSession(domain.TxKindFunding, aggKey.FinalKey, sigHash, entries, playerIndices)
	require.NoError(t, err)
	require.NoError(t, coordinator.Advance(context.Background(), session, stored, time.Time{}))
	require.Equal(t, domain.SigningSigsPending, stored.State)

	var aggNonce [66]byte
	copy(aggNonce[:], stored.AggregateNonce)

	p0Sig, err := musig2.Sign(p0Nonces.SecNonce, p0Key, aggNonce, session.pubKeys(), sigHash)
	require.NoError(t, err)
	p1Sig, err := musig2.Sign(p1Nonces.SecNonce, p1Key, aggNonce, session.pubKeys(), sigHash)
	require.NoError(t, err)

	require.NoError(t, session.VerifyAndSetPartialSig(0, p0Sig))
	require.NoError(t, session.VerifyAndSetPartialSig(1, p1Sig))

	finalSig, err := session.AggregateRound2()
	require.NoError(t, err)
	require.NotEmpty(t, finalSig)
}

// TestCoordinator_AdvanceFailsWithoutSealedSecretNonce confirms that a
// signing session which never went through the SigningPending tick (and
// so never had a secret nonce sealed) fails loudly at SigningNoncesComplete
// instead of panicking.
func TestCoordinator_AdvanceFailsWithoutSealedSecretNonce(t *testing.T) {
	coordinatorKey := newPrivKey(t)
	p0Key := newPrivKey(t)

	aggKey, err := musig2.AggregateKeys([]*btcec.PublicKey{coordinatorKey.PubKey(), p0Key.PubKey()}, false)
	require.NoError(t, err)

	sigHash := sha256.Sum256([]byte("funding tx sighash"))

	p0Nonces, err := musig2.GenNonces()
	require.NoError(t, err)

	playerIndices := map[uuid.UUID]int{}
	e0 := newTestEntry(t, playerIndices, 0, p0Key.PubKey(), p0Nonces.PubNonce)
	entries := []*domain.Entry{e0}

	coordinator := &Coordinator{CoordinatorKey: coordinatorKey, Sealer: newSealer(t)}
	stored := domain.NewSigningSession(uuid.New(), domain.TxKindFunding, time.Time{})
	stored.State = domain.SigningNoncesComplete
	stored.CoordinatorNonce = make([]byte, 66)
	stored.AggregateKey = aggKey.FinalKey.SerializeCompressed()

	session, err := coordinator.BuildSession(domain.TxKindFunding, aggKey.FinalKey, sigHash, entries, playerIndices)
	require.NoError(t, err)

	err = coordinator.Advance(context.Background(), session, stored, time.Time{})
	require.Error(t, err)
}
