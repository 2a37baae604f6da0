package chain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BuildStubSpend constructs a single-input, single-output transaction
// spending outpoint into an OP_RETURN output tagging it with label. The
// coordinator's outcome/delta/sellback transactions pay real per-player
// payout scripts in a full deployment; constructing those scripts is
// outside this module's scope (Non-goals: DLC payout cryptography), so
// every stage of the settlement pipeline after funding broadcasts this
// placeholder instead, keeping the broadcaster/confirmation machinery
// exercised end to end without inventing payout addresses the domain
// layer has no record of.
func BuildStubSpend(outpoint wire.OutPoint, label string) (*wire.MsgTx, error) {
	script, err := txscript.NullDataScript([]byte(label))
	if err != nil {
		return nil, fmt.Errorf("building stub output script for %q: %w", label, err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, script))
	return tx, nil
}

// ParseOutpoint parses the "hash:index" form wire.OutPoint.String() emits,
// the format Competition.FundingOutpoint is stored in.
func ParseOutpoint(s string) (wire.OutPoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return wire.OutPoint{}, fmt.Errorf("malformed outpoint %q", s)
	}

	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("parsing outpoint hash %q: %w", parts[0], err)
	}

	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("parsing outpoint index %q: %w", parts[1], err)
	}

	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}
