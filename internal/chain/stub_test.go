package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestBuildStubSpend(t *testing.T) {
	var hash chainhash.Hash
	copy(hash[:], []byte("0123456789abcdef0123456789abcdef"))
	outpoint := wire.OutPoint{Hash: hash, Index: 1}

	tx, err := BuildStubSpend(outpoint, "outcome:3")
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, outpoint, tx.TxIn[0].PreviousOutPoint)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, int64(0), tx.TxOut[0].Value)

	class := txscript.GetScriptClass(tx.TxOut[0].PkScript)
	require.Equal(t, txscript.NullDataTy, class)
}

func TestParseOutpoint_RoundTrip(t *testing.T) {
	var hash chainhash.Hash
	copy(hash[:], []byte("0123456789abcdef0123456789abcdef"))
	original := wire.OutPoint{Hash: hash, Index: 7}

	parsed, err := ParseOutpoint(original.String())
	require.NoError(t, err)
	require.Equal(t, original, parsed)
}

func TestParseOutpoint_Malformed(t *testing.T) {
	_, err := ParseOutpoint("not-an-outpoint")
	require.Error(t, err)
}
