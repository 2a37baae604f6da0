package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/5day4cast/coordinator/internal/chain"
	"github.com/5day4cast/coordinator/internal/contract"
	"github.com/5day4cast/coordinator/internal/domain"
)

// handleCreated registers the competition as an oracle event, the first
// external call in its lifecycle (§4.2 "register a competition").
func handleCreated(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	sub := c.EventSubmission
	announcement, err := w.Oracle.CreateEvent(ctx, c.ID.String(), sub.Locations, sub.StartObservationDate, sub.EndObservationDate, sub.NumberOfValuesPerEntry)
	if err != nil {
		return Outcome{}, fmt.Errorf("registering oracle event: %w", err)
	}
	c.EventAnnouncement = announcement
	return Advance(domain.EventCreated), nil
}

// handleEventCreated waits for the entry book to fill, either by reaching
// capacity or by the signing date arriving with whatever entries exist
// (§4.1 "entries_collected: the entry set is frozen").
func handleEventCreated(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	count, err := w.Entries.CountByEvent(ctx, c.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("counting entries: %w", err)
	}

	if count >= c.EventSubmission.TotalAllowedEntries {
		return Advance(domain.EntriesCollected), nil
	}
	if now.Before(c.EventSubmission.SigningDate) {
		return Stay(), nil
	}
	if count == 0 {
		return Cancel("no entries received by signing date"), nil
	}
	return Advance(domain.EntriesCollected), nil
}

// handleEntriesCollected publishes the frozen entry count to the oracle
// (idempotent — see oracle.Client.do's 409-as-success handling) and waits
// for every bound ticket to have actually paid before treating the
// competition's collateral as escrowed (§4.2, §4.5).
func handleEntriesCollected(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading entries: %w", err)
	}
	if len(entries) == 0 {
		return Cancel("entry set empty at entries_collected"), nil
	}

	if err := w.Oracle.PublishEntries(ctx, c.ID.String(), len(entries)); err != nil {
		return Outcome{}, fmt.Errorf("publishing entries to oracle: %w", err)
	}

	for _, e := range entries {
		ticket, err := w.Tickets.Load(ctx, e.TicketID)
		if err != nil {
			return Outcome{}, fmt.Errorf("loading ticket %s: %w", e.TicketID, err)
		}
		if ticket.State != domain.TicketPaid && ticket.State != domain.TicketSettled {
			return Stay(), nil
		}
	}
	return Advance(domain.EscrowFundsConfirmed), nil
}

// handleEscrowFundsConfirmed runs the Contract Builder over the frozen
// entry set: assigns player indices, computes the payout matrix for every
// oracle-enumerated outcome, and assembles the funding PSBT (§4.3). It
// also opens one signing session per transaction kind the competition
// will eventually need signed (§4.4).
func handleEscrowFundsConfirmed(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading entries: %w", err)
	}
	if c.EventAnnouncement == nil {
		return Outcome{}, fmt.Errorf("competition %s has no event announcement at contract build time", c.ID)
	}

	indices := domain.AssignPlayerIndices(entries)
	participantPubkeys := make(map[int]*btcec.PublicKey, len(entries))
	for _, e := range entries {
		pub, err := btcec.ParsePubKey(e.EphemeralPubkey)
		if err != nil {
			return Outcome{}, fmt.Errorf("parsing ephemeral pubkey for entry %s: %w", e.ID, err)
		}
		participantPubkeys[indices[e.ID]] = pub
	}

	keys := contract.StationMetricKeys(entries)
	observationsFor := func(outcomeIdx int) map[string]contract.Observation {
		return contract.DecodeEnumeratedOutcome(outcomeIdx, keys)
	}

	fundingAmt := btcutil.Amount(c.EventSubmission.TotalCompetitionPool())
	params, psbtRaw, err := w.Builder.BuildContract(entries, participantPubkeys, c.EventAnnouncement, observationsFor, c.EventSubmission.NumberOfPlacesWin, fundingAmt)
	if err != nil {
		return Outcome{}, fmt.Errorf("building contract: %w", err)
	}
	c.ContractParameters = params
	c.FundingPSBT = psbtRaw

	if err := w.openSigningSessions(ctx, c, entries, indices, now); err != nil {
		return Outcome{}, fmt.Errorf("opening signing sessions: %w", err)
	}

	return Advance(domain.ContractCreated), nil
}

// driveFundingSigningStep steps the funding transaction's signing session
// forward exactly one internal state (§4.4) and advances the competition
// only once that specific step has actually completed, otherwise staying
// put until the next tick finds more participant input posted.
func driveFundingSigningStep(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time, expect domain.SigningSessionState, next domain.CompetitionState) (Outcome, error) {
	state, err := w.stepSigningSession(ctx, c, domain.TxKindFunding, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("stepping funding signing session: %w", err)
	}
	if state != expect {
		return Stay(), nil
	}
	return Advance(next), nil
}

// handleContractCreated drives the funding session's coordinator-nonce
// step, the round-1 counterpart to the signing protocol's Pending state
// (§4.4).
func handleContractCreated(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	return driveRound1SigningStep(ctx, w, c, now, domain.SigningNoncesPending, domain.NoncesCollected)
}

// handleNoncesCollected waits for every participant to post their round-1
// nonce, then aggregates them (§4.4 round 1 completion).
func handleNoncesCollected(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	return driveRound1SigningStep(ctx, w, c, now, domain.SigningNoncesComplete, domain.AggregateNoncesGenerated)
}

// driveRound1SigningStep wraps driveFundingSigningStep with the §4.4
// Round-1 Timeout: a funding session still waiting on round-1 nonces once
// signing_date has passed cancels instead of staying pending forever,
// refunding every held ticket via applyCancellation. Round-2 handlers
// drive through driveFundingSigningStep directly since this deadline only
// governs round 1.
func driveRound1SigningStep(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time, expect domain.SigningSessionState, next domain.CompetitionState) (Outcome, error) {
	outcome, err := driveFundingSigningStep(ctx, w, c, now, expect, next)
	if err != nil || outcome.kind != outcomeStay {
		return outcome, err
	}
	if now.Before(c.EventSubmission.SigningDate) {
		return outcome, nil
	}
	return Cancel("signing_timeout_round_1"), nil
}

// handleAggregateNoncesGenerated drives the coordinator's own round-2
// partial signature over the aggregated nonce.
func handleAggregateNoncesGenerated(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	return driveFundingSigningStep(ctx, w, c, now, domain.SigningSigsPending, domain.PartialSignaturesCollected)
}

// handlePartialSignaturesCollected waits for every participant's round-2
// partial signature, then aggregates the final signature (§4.4 round 2
// completion).
func handlePartialSignaturesCollected(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	return driveFundingSigningStep(ctx, w, c, now, domain.SigningSigsComplete, domain.SigningComplete)
}

// handleSigningComplete finalizes the funding session, then actually
// broadcasts the funding transaction, pinning its outpoint for every
// later handler (§4.3 step 5, §4.6).
func handleSigningComplete(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	outcome, err := driveFundingSigningStep(ctx, w, c, now, domain.SigningBroadcast, domain.FundingBroadcasted)
	if err != nil || outcome.kind != outcomeAdvance {
		return outcome, err
	}

	tx, err := w.finalizeFundingTransaction(c)
	if err != nil {
		return Outcome{}, fmt.Errorf("finalizing funding transaction: %w", err)
	}
	if _, err := w.Broadcaster.Broadcast(ctx, tx); err != nil {
		return Outcome{}, fmt.Errorf("broadcasting funding transaction: %w", err)
	}

	raw, err := encodeTx(tx)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding funding transaction: %w", err)
	}
	c.FundingTransaction = raw
	c.FundingOutpoint = contract.FundingOutpoint(tx).String()

	return outcome, nil
}

// handleFundingBroadcasted polls the node for the funding transaction's
// confirmation depth, advancing once the configured threshold is reached
// (§4.6 "watch(txid, threshold)").
func handleFundingBroadcasted(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	outpoint, err := chain.ParseOutpoint(c.FundingOutpoint)
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing funding outpoint: %w", err)
	}

	reached, err := w.ChainWatcher.ThresholdReached(ctx, outpoint.Hash, w.FundingConfThreshold)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking funding confirmations: %w", err)
	}
	if !reached {
		return Stay(), nil
	}
	return Advance(domain.FundingConfirmed), nil
}

// handleFundingConfirmed releases every entry's ticket preimage now that
// the collateral backing it has confirmed on-chain (§4.5 "Settled": only
// once the funding transaction has confirmed).
func handleFundingConfirmed(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading entries: %w", err)
	}

	for _, e := range entries {
		ticket, err := w.Tickets.Load(ctx, e.TicketID)
		if err != nil {
			return Outcome{}, fmt.Errorf("loading ticket %s: %w", e.TicketID, err)
		}
		if ticket.State != domain.TicketPaid {
			continue
		}

		preimage, err := w.decryptPreimage(ticket)
		if err != nil {
			return Outcome{}, fmt.Errorf("decrypting preimage for ticket %s: %w", ticket.ID, err)
		}
		if err := w.TicketSvc.Settle(ctx, preimage); err != nil {
			return Outcome{}, fmt.Errorf("settling ticket %s: %w", ticket.ID, err)
		}
		if err := w.updateTicket(ctx, ticket, domain.TicketSettled, now); err != nil {
			return Outcome{}, fmt.Errorf("recording settlement for ticket %s: %w", ticket.ID, err)
		}
	}
	return Advance(domain.FundingSettled), nil
}

// handleFundingSettled polls the oracle for attestation, paced by
// w.OraclePoller (§4.2 "capped at one outstanding request per
// competition"). An attestation selects one outcome branch and broadcasts
// its outcome transaction; the absence of one by AttestationDeadline
// instead broadcasts the expiry refund path (§3 invariant 3, §4.6).
func handleFundingSettled(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	if c.Transitions.FundingSettledAt == nil {
		return Stay(), nil
	}

	if !w.OraclePoller.Allow() {
		return Stay(), nil
	}

	status, err := w.Oracle.GetEventStatus(ctx, c.ID.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("polling oracle for attestation: %w", err)
	}

	if status.Attested {
		c.Attestation = status.Attestation
		return broadcastOutcomeLeg(ctx, w, c, domain.OutcomeTxKind(status.Attestation.OutcomeIndex), domain.OutcomeBroadcasted)
	}

	deadline := c.Transitions.FundingSettledAt.Add(w.AttestationDeadline)
	if now.Before(deadline) {
		return Stay(), nil
	}
	return broadcastOutcomeLeg(ctx, w, c, "expiry", domain.ExpiryBroadcasted)
}

// broadcastOutcomeLeg builds and broadcasts the stub transaction spending
// the funding output for either the attested outcome or the expiry path,
// recording it in the single OutcomeTransaction column the two paths
// share (they are mutually exclusive — §3 invariant 3).
func broadcastOutcomeLeg(ctx context.Context, w *Watcher, c *domain.Competition, label string, next domain.CompetitionState) (Outcome, error) {
	outpoint, err := chain.ParseOutpoint(c.FundingOutpoint)
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing funding outpoint: %w", err)
	}

	tx, err := chain.BuildStubSpend(outpoint, label)
	if err != nil {
		return Outcome{}, fmt.Errorf("building %s transaction: %w", label, err)
	}
	if _, err := w.Broadcaster.Broadcast(ctx, tx); err != nil {
		return Outcome{}, fmt.Errorf("broadcasting %s transaction: %w", label, err)
	}

	raw, err := encodeTx(tx)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding %s transaction: %w", label, err)
	}
	c.OutcomeTransaction = raw
	return Advance(next), nil
}

// handleDeltaStage drives the cooperative/uncooperative payout split of
// §4.6 for both the attested-outcome and expiry legs (dispatch maps both
// OutcomeBroadcasted and ExpiryBroadcasted here). Winning players with a
// registered Lightning payout invoice are paid cooperatively the first
// time this handler runs for the competition; everyone else is settled by
// the two-stage delta broadcast chain, itself a stub spend per §D's
// simplification since real per-player payout scripts are out of scope.
func handleDeltaStage(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	if _, broadcastDelta1 := c.DeltaTransactions[domain.TxKindDelta1]; !broadcastDelta1 {
		if c.Attestation != nil && c.ContractParameters != nil {
			if err := w.payCooperativeWinners(ctx, c); err != nil {
				return Outcome{}, fmt.Errorf("paying cooperative winners: %w", err)
			}
		}

		prev, err := decodeTx(c.OutcomeTransaction)
		if err != nil {
			return Outcome{}, fmt.Errorf("decoding outcome/expiry transaction: %w", err)
		}
		tx, err := chain.BuildStubSpend(wire.OutPoint{Hash: prev.TxHash(), Index: 0}, domain.TxKindDelta1)
		if err != nil {
			return Outcome{}, fmt.Errorf("building delta_1 transaction: %w", err)
		}
		if _, err := w.Broadcaster.Broadcast(ctx, tx); err != nil {
			return Outcome{}, fmt.Errorf("broadcasting delta_1 transaction: %w", err)
		}
		raw, err := encodeTx(tx)
		if err != nil {
			return Outcome{}, err
		}
		c.DeltaTransactions[domain.TxKindDelta1] = raw
		return Stay(), nil
	}

	if _, broadcastDelta2 := c.DeltaTransactions[domain.TxKindDelta2]; !broadcastDelta2 {
		delta1, err := decodeTx(c.DeltaTransactions[domain.TxKindDelta1])
		if err != nil {
			return Outcome{}, fmt.Errorf("decoding delta_1 transaction: %w", err)
		}
		tx, err := chain.BuildStubSpend(wire.OutPoint{Hash: delta1.TxHash(), Index: 0}, domain.TxKindDelta2)
		if err != nil {
			return Outcome{}, fmt.Errorf("building delta_2 transaction: %w", err)
		}
		if _, err := w.Broadcaster.Broadcast(ctx, tx); err != nil {
			return Outcome{}, fmt.Errorf("broadcasting delta_2 transaction: %w", err)
		}
		raw, err := encodeTx(tx)
		if err != nil {
			return Outcome{}, err
		}
		c.DeltaTransactions[domain.TxKindDelta2] = raw
	}

	return Advance(domain.DeltaBroadcasted), nil
}

// handleDeltaBroadcasted waits for the delta_2 transaction to confirm
// before declaring the competition finished (§4.1 "completed: every
// payout obligation has been discharged").
func handleDeltaBroadcasted(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error) {
	delta2, err := decodeTx(c.DeltaTransactions[domain.TxKindDelta2])
	if err != nil {
		return Outcome{}, fmt.Errorf("decoding delta_2 transaction: %w", err)
	}

	reached, err := w.ChainWatcher.ThresholdReached(ctx, delta2.TxHash(), w.DeltaConfThreshold)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking delta_2 confirmations: %w", err)
	}
	if !reached {
		return Stay(), nil
	}
	return Advance(domain.Completed), nil
}

// payCooperativeWinners pays every winning player that registered a
// Lightning payout invoice directly, ahead of the on-chain delta chain.
// Runs once, the same tick delta_1 is broadcast; a retry of this tick
// after a version conflict would re-issue the payment, which is safe only
// insofar as the Lightning node itself deduplicates by payment hash —
// real per-player payout scripts would make this unconditionally safe,
// but those are out of scope (§D).
func (w *Watcher) payCooperativeWinners(ctx context.Context, c *domain.Competition) error {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	indices := domain.AssignPlayerIndices(entries)
	byIndex := make(map[int]*domain.Entry, len(entries))
	for _, e := range entries {
		byIndex[indices[e.ID]] = e
	}

	shares := c.ContractParameters.PayoutMatrix[c.Attestation.OutcomeIndex]
	poolAfterFee := coordinatorFeeAdjustedPool(c.EventSubmission)
	amounts := contract.PayoutAmounts(shares, poolAfterFee)

	for playerIndex, amt := range amounts {
		entry, ok := byIndex[playerIndex]
		if !ok || entry.PayoutLightningInvoice == "" {
			continue
		}
		if _, err := w.Lightning.PayInvoice(ctx, entry.PayoutLightningInvoice, amt); err != nil {
			return fmt.Errorf("paying player %d's payout invoice: %w", playerIndex, err)
		}
	}
	return nil
}

// coordinatorFeeAdjustedPool returns the prize pool remaining after the
// coordinator's percentage fee, the basis PayoutAmounts distributes
// across winning shares (§4.3).
func coordinatorFeeAdjustedPool(sub domain.EventSubmission) int64 {
	pool := sub.TotalCompetitionPool()
	fee := int64(float64(pool) * sub.CoordinatorFeePercentage / 100)
	return pool - fee
}
