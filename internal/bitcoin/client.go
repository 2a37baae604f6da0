// Package bitcoin declares the coordinator's view of the Bitcoin node it
// broadcasts and watches transactions against. Call shapes are grounded
// on chainntnfs/btcdnotify's rpcclient usage and chainntnfs/
// txconfnotifier.go's confirmation bookkeeping, narrowed to what a
// coordinator process needs as an RPC client rather than as an embedded
// chain-notification subsystem (§1, §6).
package bitcoin

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Client is the coordinator's Bitcoin node dependency.
type Client interface {
	// BroadcastTransaction submits tx to the network. A nil error means
	// the node accepted it into its mempool (or it was already there);
	// it does not mean the transaction has confirmed.
	BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error

	// GetTransactionConfirmations returns the number of confirmations
	// txid has, or 0 if it is unconfirmed or unknown to the node.
	GetTransactionConfirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)

	// GetBlockHeight returns the node's current best block height, used
	// to evaluate CSV/CLTV-style expiry conditions against wall height
	// rather than wall time (§4.6).
	GetBlockHeight(ctx context.Context) (uint32, error)
}
