package watcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

func TestStay(t *testing.T) {
	o := Stay()
	require.Equal(t, outcomeStay, o.kind)
}

func TestAdvance(t *testing.T) {
	o := Advance(domain.EventCreated)
	require.Equal(t, outcomeAdvance, o.kind)
	require.Equal(t, domain.EventCreated, o.next)
}

func TestCancel(t *testing.T) {
	o := Cancel("no entries received by signing date")
	require.Equal(t, outcomeCancel, o.kind)
	require.Equal(t, domain.Cancelled, o.next)
	require.Equal(t, "no entries received by signing date", o.reason)
}

func TestFail(t *testing.T) {
	o := Fail("protocol violation")
	require.Equal(t, outcomeFail, o.kind)
	require.Equal(t, domain.Failed, o.next)
	require.Equal(t, "protocol violation", o.reason)
}

// nonTerminalStates lists every domain.CompetitionState a real competition
// can be loaded in mid-flight, mirroring domain/state.go's edges map minus
// the two terminal escape states.
var nonTerminalStates = []domain.CompetitionState{
	domain.Created,
	domain.EventCreated,
	domain.EntriesCollected,
	domain.EscrowFundsConfirmed,
	domain.ContractCreated,
	domain.NoncesCollected,
	domain.AggregateNoncesGenerated,
	domain.PartialSignaturesCollected,
	domain.SigningComplete,
	domain.FundingBroadcasted,
	domain.FundingConfirmed,
	domain.FundingSettled,
	domain.OutcomeBroadcasted,
	domain.ExpiryBroadcasted,
	domain.DeltaBroadcasted,
}

// TestDispatchCovered guards against a state being added to domain's DAG
// without a matching handler ever being registered, which tickOne would
// otherwise only discover at runtime via its "no handler registered" log
// line.
func TestDispatchCovered(t *testing.T) {
	for _, state := range nonTerminalStates {
		_, ok := dispatch[state]
		require.Truef(t, ok, "state %s has no registered handler", state)
	}
	require.Len(t, dispatch, len(nonTerminalStates))
}

func TestSigningKindsFor_NoContractYet(t *testing.T) {
	c := &domain.Competition{}
	kinds := signingKindsFor(c)
	require.Equal(t, []string{domain.TxKindFunding, domain.TxKindDelta1, domain.TxKindDelta2}, kinds)
}

func TestSigningKindsFor_IncludesOutcomesSorted(t *testing.T) {
	c := &domain.Competition{
		ContractParameters: &domain.ContractParameters{
			PayoutMatrix: map[int][]domain.PayoutShare{
				2: nil,
				0: nil,
				1: nil,
			},
		},
	}
	kinds := signingKindsFor(c)
	require.Equal(t, []string{
		domain.TxKindFunding,
		domain.TxKindDelta1,
		domain.TxKindDelta2,
		domain.OutcomeTxKind(0),
		domain.OutcomeTxKind(1),
		domain.OutcomeTxKind(2),
	}, kinds)
}
