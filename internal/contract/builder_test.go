package contract

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

type fakeWallet struct {
	coins       []Utxo
	changeScript []byte
	pub         *btcec.PublicKey
}

func (f *fakeWallet) ListUnspent() ([]Utxo, error)        { return f.coins, nil }
func (f *fakeWallet) NewChangeScript() ([]byte, error)    { return f.changeScript, nil }
func (f *fakeWallet) PublicKey() (*btcec.PublicKey, error) { return f.pub, nil }

func newTestKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestBuildContract_ReproduciblePSBT(t *testing.T) {
	coordinatorPub := newTestKey(t)
	p0 := newTestKey(t)
	p1 := newTestKey(t)

	coins := []Utxo{
		{OutPoint: wire.OutPoint{Index: 0}, Value: 50000, PkScript: []byte{0x00, 0x14}},
		{OutPoint: wire.OutPoint{Index: 1}, Value: 80000, PkScript: []byte{0x00, 0x14}},
	}
	var h1, h2 [32]byte
	rand.Read(h1[:])
	rand.Read(h2[:])
	coins[0].OutPoint.Hash = h1
	coins[1].OutPoint.Hash = h2

	wallet := &fakeWallet{coins: coins, changeScript: []byte{0x00, 0x14, 0x01}, pub: coordinatorPub}

	entries := []*domain.Entry{{}, {}}
	participants := map[int]*btcec.PublicKey{0: p0, 1: p1}
	announcement := &domain.EventAnnouncement{
		OutcomeNonces: map[int][]byte{0: {1}, 1: {2}},
	}
	observationsFor := func(outcomeIdx int) map[string]Observation { return nil }

	builder := &Builder{Wallet: wallet, FeeRateSatPerVByte: 10}

	_, psbt1, err := builder.BuildContract(entries, participants, announcement, observationsFor, 1, btcutil.Amount(100000))
	require.NoError(t, err)

	_, psbt2, err := builder.BuildContract(entries, participants, announcement, observationsFor, 1, btcutil.Amount(100000))
	require.NoError(t, err)

	require.True(t, bytes.Equal(psbt1, psbt2), "rebuilding the funding PSBT from identical inputs must be byte-identical")
}
