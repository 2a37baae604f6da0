// Package chain implements the thin broadcaster/watcher layer of §4.6:
// submitting raw transactions to the Bitcoin node, tracking confirmations,
// and deciding between the cooperative (Lightning sellback) and
// uncooperative (on-chain delta) payout paths.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/wire"

	"github.com/5day4cast/coordinator/internal/bitcoin"
)

// BroadcastResult mirrors the three outcomes §4.6 names for
// broadcast(txid, raw_hex).
type BroadcastResult int

const (
	Accepted BroadcastResult = iota
	AlreadyKnown
	Rejected
)

func (r BroadcastResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case AlreadyKnown:
		return "already_known"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Broadcaster submits transactions to the Bitcoin node, collapsing
// "already in mempool" into success the way §4.6 specifies, so the
// watcher can always advance state on the next tick after a broadcast
// call returns without error.
type Broadcaster struct {
	Node bitcoin.Client
}

// Broadcast submits tx. A return of (AlreadyKnown, nil) and (Accepted,
// nil) are both successes from the caller's point of view — scenario 3
// in §8 depends on AlreadyKnown being indistinguishable from a fresh
// accept for state-advancement purposes.
func (b *Broadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx) (BroadcastResult, error) {
	err := b.Node.BroadcastTransaction(ctx, tx)
	if err == nil {
		return Accepted, nil
	}

	if isAlreadyKnown(err) {
		return AlreadyKnown, nil
	}

	return Rejected, fmt.Errorf("broadcasting %s: %w", tx.TxHash(), err)
}

// isAlreadyKnown recognizes the handful of node error strings that mean
// "this transaction is already in the mempool or a block" rather than a
// real rejection. Bitcoin Core-derived nodes don't expose a typed error
// here, only these message fragments.
func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"already in block chain", "txn-already-known", "already have transaction"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// ErrNotBroadcast names a transaction this process never submitted and the
// node has never seen. Watcher does not return it: Confirmations reports
// such a transaction as 0 confirmations.
var ErrNotBroadcast = errors.New("transaction not known to the node")
