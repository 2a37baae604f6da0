package tickets

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestBuildEscrowRefundTransaction(t *testing.T) {
	coordinatorPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	userPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	script, err := escrowScript(coordinatorPriv.PubKey(), userPriv.PubKey(), defaultRefundLockHeight)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	outpoint := wire.OutPoint{Index: 0}
	tx, err := BuildEscrowRefundTransaction(outpoint, 50000, script, defaultRefundLockHeight)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, uint32(defaultRefundLockHeight), tx.TxIn[0].Sequence)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, int64(50000), tx.TxOut[0].Value)
}

func TestBuildEscrowRefundTransaction_RejectsInvalidLockHeight(t *testing.T) {
	_, err := BuildEscrowRefundTransaction(wire.OutPoint{}, 1000, []byte{0x51}, 0)
	require.Error(t, err)
}
