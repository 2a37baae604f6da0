package contract

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/5day4cast/coordinator/internal/domain"
)

// WalletSource is the narrow slice of coordinator-wallet behavior the
// builder needs: listing spendable coins and deriving a fresh change
// address. Implemented against whatever wallet the coordinator runs in
// front of its Bitcoin node (§9 "the coordinator wallet ... mutated by
// exactly one component: Contract Builder").
type WalletSource interface {
	ListUnspent() ([]Utxo, error)
	NewChangeScript() ([]byte, error)
	PublicKey() (*btcec.PublicKey, error)
}

// OutcomeObservations resolves, for a given outcome index, the set of
// station/metric observations that outcome represents. The Oracle Bridge
// supplies this once the observation window has closed; for outcomes
// that can only be scored after attestation, only the attested outcome's
// observations are ever actually needed by BuildContract — the others
// are present in the matrix only as a placeholder until an outcome is
// selected.
type OutcomeObservations func(outcomeIndex int) map[string]Observation

// Builder implements §4.3's five steps.
type Builder struct {
	Wallet       WalletSource
	FeeRateSatPerVByte int64
}

// BuildContract assigns player indices, computes the payout matrix for
// every oracle-possible outcome, and assembles the funding PSBT. entries
// must already be the frozen, settled entry set for the competition
// (§4.1 EntriesCollected).
func (b *Builder) BuildContract(
	entries []*domain.Entry,
	participantPubkeys map[int]*btcec.PublicKey,
	announcement *domain.EventAnnouncement,
	observationsFor OutcomeObservations,
	numberOfPlacesWin int,
	fundingAmt btcutil.Amount,
) (*domain.ContractParameters, []byte, error) {

	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("cannot build contract with zero entries")
	}

	matrix := make(map[int][]domain.PayoutShare, len(announcement.OutcomeNonces))
	for outcomeIdx := range announcement.OutcomeNonces {
		observations := observationsFor(outcomeIdx)
		matrix[outcomeIdx] = BuildPayoutMatrix(entries, observations, numberOfPlacesWin)
	}

	coordinatorPub, err := b.Wallet.PublicKey()
	if err != nil {
		return nil, nil, fmt.Errorf("loading coordinator pubkey: %w", err)
	}

	participants := make([]*btcec.PublicKey, 0, len(entries))
	for i := range entries {
		pub, ok := participantPubkeys[i]
		if !ok {
			return nil, nil, fmt.Errorf("missing ephemeral pubkey for player index %d", i)
		}
		participants = append(participants, pub)
	}

	aggKey, err := AggregateFundingKey(coordinatorPub, participants)
	if err != nil {
		return nil, nil, err
	}

	coins, err := b.Wallet.ListUnspent()
	if err != nil {
		return nil, nil, fmt.Errorf("listing coordinator wallet utxos: %w", err)
	}
	selected, changeAmt, err := SelectCoins(b.FeeRateSatPerVByte, fundingAmt, coins)
	if err != nil {
		return nil, nil, fmt.Errorf("selecting coins: %w", err)
	}

	changeScript, err := b.Wallet.NewChangeScript()
	if err != nil {
		return nil, nil, fmt.Errorf("deriving change script: %w", err)
	}

	packet, err := BuildFundingPSBT(selected, changeAmt, changeScript, fundingAmt, aggKey)
	if err != nil {
		return nil, nil, err
	}

	raw, err := EncodePSBT(packet)
	if err != nil {
		return nil, nil, err
	}

	return &domain.ContractParameters{PayoutMatrix: matrix}, raw, nil
}
