package signing

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/stretchr/testify/require"
)

func newPrivKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

// TestSession_TwoRoundHappyPath exercises §4.4's full state progression
// for a two-participant session: both rounds complete, every partial
// signature verifies, and the aggregated signature comes out non-empty.
func TestSession_TwoRoundHappyPath(t *testing.T) {
	coordinatorKey := newPrivKey(t)
	p0Key := newPrivKey(t)
	p1Key := newPrivKey(t)

	aggKey, err := musig2.AggregateKeys(
		[]*btcec.PublicKey{coordinatorKey.PubKey(), p0Key.PubKey(), p1Key.PubKey()}, false,
	)
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("funding tx sighash"))

	participants := []*Participant{
		{PlayerIndex: 0, PubKey: p0Key.PubKey()},
		{PlayerIndex: 1, PubKey: p1Key.PubKey()},
	}

	session := NewSession("funding", coordinatorKey, aggKey.FinalKey, msg, participants)

	_, err = session.GenerateCoordinatorNonce()
	require.NoError(t, err)
	require.False(t, session.HasAllNonces())

	p0Nonces, err := musig2.GenNonces()
	require.NoError(t, err)
	p1Nonces, err := musig2.GenNonces()
	require.NoError(t, err)

	require.NoError(t, session.SetParticipantNonce(0, p0Nonces.PubNonce))
	require.NoError(t, session.SetParticipantNonce(1, p1Nonces.PubNonce))
	require.True(t, session.HasAllNonces())

	aggNonce, err := session.AggregateRound1()
	require.NoError(t, err)

	require.NoError(t, session.SignCoordinator())

	p0Sig, err := musig2.Sign(p0Nonces.SecNonce, p0Key, aggNonce, session.pubKeys(), msg)
	require.NoError(t, err)
	p1Sig, err := musig2.Sign(p1Nonces.SecNonce, p1Key, aggNonce, session.pubKeys(), msg)
	require.NoError(t, err)

	require.NoError(t, session.VerifyAndSetPartialSig(0, p0Sig))
	require.NoError(t, session.VerifyAndSetPartialSig(1, p1Sig))
	require.True(t, session.HasAllPartialSigs())

	finalSig, err := session.AggregateRound2()
	require.NoError(t, err)
	require.NotEmpty(t, finalSig)
}

// TestSession_InvalidPartialSigRejected confirms the §4.4 verification
// contract: a partial signature produced against the wrong message must
// fail verification and must not be recorded.
func TestSession_InvalidPartialSigRejected(t *testing.T) {
	coordinatorKey := newPrivKey(t)
	p0Key := newPrivKey(t)

	aggKey, err := musig2.AggregateKeys([]*btcec.PublicKey{coordinatorKey.PubKey(), p0Key.PubKey()}, false)
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("real sighash"))
	wrongMsg := sha256.Sum256([]byte("wrong sighash"))

	participants := []*Participant{{PlayerIndex: 0, PubKey: p0Key.PubKey()}}
	session := NewSession("funding", coordinatorKey, aggKey.FinalKey, msg, participants)

	_, err = session.GenerateCoordinatorNonce()
	require.NoError(t, err)

	p0Nonces, err := musig2.GenNonces()
	require.NoError(t, err)
	require.NoError(t, session.SetParticipantNonce(0, p0Nonces.PubNonce))

	aggNonce, err := session.AggregateRound1()
	require.NoError(t, err)

	badSig, err := musig2.Sign(p0Nonces.SecNonce, p0Key, aggNonce, session.pubKeys(), wrongMsg)
	require.NoError(t, err)

	err = session.VerifyAndSetPartialSig(0, badSig)
	require.Error(t, err)
	require.False(t, session.HasAllPartialSigs())
}
