package tickets

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// defaultRefundLockHeight mirrors submarine.defaultLockHeight: the number
// of blocks the user's CSV-locked refund path must wait after the escrow
// output confirms before it becomes spendable. The lock is relative to
// that confirmation; it is not tied to the competition's expiry.
const defaultRefundLockHeight = 72

// escrowScript builds the script an escrowed ticket pays into: the
// coordinator can always spend immediately (its normal path, once the
// ticket settles), while the user can reclaim their fee unilaterally
// after lockHeight blocks if the coordinator never does (§4.5 "unilateral
// refund path"). This generalizes genSubmarineSwapScript's hash-gated
// branch into a pure CSV timeout, since there is no preimage reveal on
// the refund side — only a height condition.
func escrowScript(coordinatorPub, userPub *btcec.PublicKey, lockHeight int64) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddData(schnorrXOnly(coordinatorPub))
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_1)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(lockHeight)
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(schnorrXOnly(userPub))
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

func schnorrXOnly(pub *btcec.PublicKey) []byte {
	return pub.SerializeCompressed()[1:]
}

// BuildEscrowRefundTransaction constructs the unsigned refund transaction
// described in §4.5: spends the escrow output at escrowOutpoint back to
// refundScript (the user's reported on-chain address), sequence-locked so
// it cannot be mined until lockHeight relative blocks after confirmation
// of the escrow output itself.
func BuildEscrowRefundTransaction(escrowOutpoint wire.OutPoint, escrowValue int64, refundScript []byte, lockHeight int64) (*wire.MsgTx, error) {
	if lockHeight <= 0 || lockHeight > wire.SequenceLockTimeMask {
		return nil, fmt.Errorf("invalid escrow refund lock height %d", lockHeight)
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&escrowOutpoint, nil, nil)
	txIn.Sequence = uint32(lockHeight)
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(escrowValue, refundScript))

	return tx, nil
}
