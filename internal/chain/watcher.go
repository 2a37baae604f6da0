package chain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/5day4cast/coordinator/internal/bitcoin"
)

// Watcher tracks confirmation depth for transactions the coordinator
// cares about. Unlike chainntnfs.TxConfNotifier, which maintains
// in-memory subscriber channels across block connect/disconnect
// notifications, this watcher is polled once per tick — consistent with
// §5's "a single long-lived watcher task ticks on a timer" rather than a
// push-based notification pipeline.
type Watcher struct {
	Node bitcoin.Client
}

// Confirmations returns how many confirmations txid currently has, or 0
// if it's unconfirmed or the node doesn't know about it.
func (w *Watcher) Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error) {
	return w.Node.GetTransactionConfirmations(ctx, txid)
}

// ThresholdReached reports whether txid has at least threshold
// confirmations — the §4.6 "watch(txid, threshold)" operation. Callers
// use this to decide when a competition's timestamp column (e.g.
// funding_confirmed_at) should be set.
func (w *Watcher) ThresholdReached(ctx context.Context, txid chainhash.Hash, threshold uint32) (bool, error) {
	confs, err := w.Confirmations(ctx, txid)
	if err != nil {
		return false, err
	}
	return confs >= threshold, nil
}
