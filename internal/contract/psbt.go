package contract

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// AggregateFundingKey derives the MuSig2 aggregate key of {coordinator,
// all participants}, the key the Taproot funding output pays to (§4.3
// step 3). Nonce/signature aggregation for spending happens later, in
// internal/signing; this is a pure key-aggregation call with no signing
// context, safe to run at build time without involving the enclave.
func AggregateFundingKey(coordinatorPub *btcec.PublicKey, participantPubs []*btcec.PublicKey) (*btcec.PublicKey, error) {
	keys := make([]*btcec.PublicKey, 0, len(participantPubs)+1)
	keys = append(keys, coordinatorPub)
	keys = append(keys, participantPubs...)

	aggKey, err := musig2.AggregateKeys(keys, false)
	if err != nil {
		return nil, fmt.Errorf("aggregating musig2 keys: %w", err)
	}
	return aggKey.FinalKey, nil
}

// BuildFundingPSBT assembles the unsigned funding PSBT paying from the
// coordinator wallet into a single Taproot output controlled by
// aggregateKey (§4.3 step 3). Output ordering is fixed (funding output
// first, change last) and input ordering follows SelectCoins's
// deterministic scan, so two builds over the same inputs produce
// byte-identical PSBTs (§4.3, §8 "Rebuilding the funding PSBT ... yields
// byte-identical bytes").
func BuildFundingPSBT(selected []Utxo, changeAmt btcutil.Amount, changeScript []byte, fundingAmt btcutil.Amount, aggregateKey *btcec.PublicKey) (*psbt.Packet, error) {
	fundingScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(schnorrSerialize(aggregateKey)).
		Script()
	if err != nil {
		return nil, fmt.Errorf("building taproot funding script: %w", err)
	}

	tx := wire.NewMsgTx(2)
	for _, u := range selected {
		tx.AddTxIn(wire.NewTxIn(&u.OutPoint, nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(int64(fundingAmt), fundingScript))
	if changeAmt > 0 {
		tx.AddTxOut(wire.NewTxOut(int64(changeAmt), changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("building psbt: %w", err)
	}

	for i, u := range selected {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(int64(u.Value), u.PkScript)
	}

	return packet, nil
}

// schnorrSerialize returns the 32-byte x-only serialization Taproot
// scripts use.
func schnorrSerialize(pub *btcec.PublicKey) []byte {
	return pub.SerializeCompressed()[1:]
}

// EncodePSBT serializes packet to its canonical bytes, used both to
// persist Competition.FundingPSBT and to compare two builds for the
// reproducibility property in §8.
func EncodePSBT(packet *psbt.Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FundingOutpoint returns the outpoint of the funding output within an
// already-broadcast (or about to be broadcast) funding transaction,
// pinning Competition.FundingOutpoint per §4.3 step 5.
func FundingOutpoint(tx *wire.MsgTx) wire.OutPoint {
	return wire.OutPoint{Hash: tx.TxHash(), Index: 0}
}
