package contract

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is one spendable output in the coordinator wallet.
type Utxo struct {
	OutPoint wire.OutPoint
	Value    btcutil.Amount
	PkScript []byte
}

// ErrInsufficientFunds mirrors lnwallet.ErrInsufficientFunds: the wallet
// doesn't have enough confirmed value to fund the requested amount.
type ErrInsufficientFunds struct {
	Needed   btcutil.Amount
	Selected btcutil.Amount
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: need %v, have %v", e.Needed, e.Selected)
}

const (
	// txInWeight and txOutWeight are rough vbyte costs for a single
	// P2WPKH input / P2TR output, used only to keep the deterministic fee
	// loop converging quickly; exact script weights are the broadcaster's
	// concern once PSBT finalization fills them in precisely.
	txInWeight  = 68
	txOutWeight = 43
	txOverhead  = 11
)

// feeForVSize is a linear fee-rate helper matching lnwallet.SatPerVByte's
// shape (satoshi-per-vbyte * vsize).
func feeForVSize(satPerVByte int64, vsize int64) btcutil.Amount {
	return btcutil.Amount(satPerVByte * vsize)
}

// SelectCoins implements the spec's requirement that coordinator wallet
// UTXO selection be "deterministic via lowest-scoring coin-selection"
// (§4.3): coins are sorted ascending by value and consumed smallest-first,
// so the same wallet UTXO set always produces the same selection. This is
// the same shape as lnwallet.coinSelect's iterative fee/overshoot loop,
// with the scan order pinned instead of left to map iteration.
func SelectCoins(feeRateSatPerVByte int64, amt btcutil.Amount, coins []Utxo) ([]Utxo, btcutil.Amount, error) {
	sorted := make([]Utxo, len(coins))
	copy(sorted, coins)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		// Outpoint string comparison breaks ties deterministically when
		// two coins share a value.
		return sorted[i].OutPoint.String() < sorted[j].OutPoint.String()
	})

	amtNeeded := amt
	for {
		selected, total, err := selectAscending(amtNeeded, sorted)
		if err != nil {
			return nil, 0, err
		}

		vsize := int64(txOverhead) + int64(len(selected))*txInWeight + 2*txOutWeight
		requiredFee := feeForVSize(feeRateSatPerVByte, vsize)

		overshoot := total - amt
		if overshoot < requiredFee {
			amtNeeded = amt + requiredFee
			continue
		}

		changeAmt := overshoot - requiredFee
		return selected, changeAmt, nil
	}
}

func selectAscending(amt btcutil.Amount, coins []Utxo) ([]Utxo, btcutil.Amount, error) {
	var total btcutil.Amount
	for i, c := range coins {
		total += c.Value
		if total >= amt {
			out := make([]Utxo, i+1)
			copy(out, coins[:i+1])
			return out, total, nil
		}
	}
	return nil, 0, &ErrInsufficientFunds{Needed: amt, Selected: total}
}
