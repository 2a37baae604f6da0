// Package wallet implements the single coordinator-owned wallet that
// funds and changes every contract the Contract Builder assembles (§9
// "the coordinator wallet ... mutated by exactly one component: Contract
// Builder"). It is deliberately not a general-purpose wallet: the
// coordinator never custodies participant funds or keys, only its own
// fee/change UTXOs and the one signing key it uses as its MuSig2 signing
// leg (internal/signing.Coordinator.CoordinatorKey).
package wallet

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/5day4cast/coordinator/internal/contract"
)

// Wallet is the coordinator's own Bitcoin wallet: a single static signing
// key plus whatever UTXOs the node it's paired with tracks for that
// key's address. Coin selection and PSBT assembly stay in
// internal/contract; this package only answers "what do I have" and
// "sign with what", the same split lnwallet draws between a wallet
// backend and btcwallet's coin-selection helpers.
type Wallet struct {
	rpc *rpcclient.Client
	key *btcec.PrivateKey
}

// Load opens rpc and loads the coordinator's singleton signing key from
// keyPath, generating and persisting a fresh one the first time the
// coordinator runs. The key never rotates afterward: every MuSig2
// session across the coordinator's lifetime uses this one key (§9).
// Change outputs do not derive from it: NewChangeScript pays to
// addresses the paired node hands out.
func Load(keyPath string, rpc *rpcclient.Client) (*Wallet, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading coordinator wallet key: %w", err)
	}
	return &Wallet{rpc: rpc, key: key}, nil
}

func loadOrCreateKey(keyPath string) (*btcec.PrivateKey, error) {
	raw, err := os.ReadFile(keyPath)
	if err == nil {
		decoded, err := hex.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding wallet key file %s: %w", keyPath, err)
		}
		if len(decoded) != btcec.PrivKeyBytesLen {
			return nil, fmt.Errorf("wallet key file %s: expected %d bytes, got %d", keyPath, btcec.PrivKeyBytesLen, len(decoded))
		}
		priv, _ := btcec.PrivKeyFromBytes(decoded)
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading wallet key file %s: %w", keyPath, err)
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating coordinator wallet key: %w", err)
	}
	encoded := hex.EncodeToString(priv.Serialize())
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("persisting coordinator wallet key to %s: %w", keyPath, err)
	}
	return priv, nil
}

// CoordinatorKey returns the wallet's signing key, for wiring into
// signing.Coordinator.CoordinatorKey. The same key signs every MuSig2
// session the coordinator ever participates in.
func (w *Wallet) CoordinatorKey() *btcec.PrivateKey {
	return w.key
}

// PublicKey satisfies contract.WalletSource.
func (w *Wallet) PublicKey() (*btcec.PublicKey, error) {
	return w.key.PubKey(), nil
}

// ListUnspent satisfies contract.WalletSource by asking the paired node
// for every UTXO it tracks for the coordinator's addresses, the same
// listunspent RPC lnd's own on-chain wallet wraps.
func (w *Wallet) ListUnspent() ([]contract.Utxo, error) {
	results, err := w.rpc.ListUnspent()
	if err != nil {
		return nil, fmt.Errorf("listing coordinator wallet utxos: %w", err)
	}

	utxos := make([]contract.Utxo, 0, len(results))
	for _, r := range results {
		if !r.Spendable {
			continue
		}

		txHash, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, fmt.Errorf("parsing utxo txid %s: %w", r.TxID, err)
		}

		amount, err := btcutil.NewAmount(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("parsing utxo amount for %s:%d: %w", r.TxID, r.Vout, err)
		}

		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("decoding utxo script for %s:%d: %w", r.TxID, r.Vout, err)
		}

		utxos = append(utxos, contract.Utxo{
			OutPoint: *wire.NewOutPoint(txHash, r.Vout),
			Value:    amount,
			PkScript: pkScript,
		})
	}
	return utxos, nil
}

// NewChangeScript satisfies contract.WalletSource by asking the node for
// a fresh change address and returning its output script, mirroring the
// getrawchangeaddress + PayToAddrScript pairing lnwallet's own change
// handling uses.
func (w *Wallet) NewChangeScript() ([]byte, error) {
	addr, err := w.rpc.GetRawChangeAddress("")
	if err != nil {
		return nil, fmt.Errorf("requesting change address: %w", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("building change script: %w", err)
	}
	return script, nil
}

var _ contract.WalletSource = (*Wallet)(nil)
