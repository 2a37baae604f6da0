package watcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/contract"
	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/store"
)

// signingKindsFor lists every transaction kind a competition's signing
// sessions cover: the funding transaction, the two delta stages, and one
// outcome transaction per row of the payout matrix once it exists (§4.3,
// §4.4).
func signingKindsFor(c *domain.Competition) []string {
	kinds := []string{domain.TxKindFunding, domain.TxKindDelta1, domain.TxKindDelta2}
	if c.ContractParameters == nil {
		return kinds
	}

	outcomeIdxs := make([]int, 0, len(c.ContractParameters.PayoutMatrix))
	for idx := range c.ContractParameters.PayoutMatrix {
		outcomeIdxs = append(outcomeIdxs, idx)
	}
	sort.Ints(outcomeIdxs)
	for _, idx := range outcomeIdxs {
		kinds = append(kinds, domain.OutcomeTxKind(idx))
	}
	return kinds
}

// openSigningSessions registers one enclave session per entry for every
// transaction kind the competition will eventually need to sign, then
// idempotently creates the corresponding Pending rows (§4.4). Called once,
// from the EscrowFundsConfirmed -> ContractCreated transition.
func (w *Watcher) openSigningSessions(ctx context.Context, c *domain.Competition, entries []*domain.Entry, indices map[uuid.UUID]int, now time.Time) error {
	kinds := signingKindsFor(c)

	for _, kind := range kinds {
		if err := w.Signing.OpenEnclaveSessions(ctx, c.ID, kind, entries, indices); err != nil {
			return fmt.Errorf("opening enclave sessions for %s: %w", kind, err)
		}
	}

	return w.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := w.Sessions.ListByCompetition(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(existing))
		for _, s := range existing {
			have[s.TxKind] = true
		}

		for _, kind := range kinds {
			if have[kind] {
				continue
			}
			if err := w.Sessions.Insert(ctx, tx, domain.NewSigningSession(c.ID, kind, now)); err != nil {
				return err
			}
		}
		return nil
	})
}

// aggregateKeyFor recomputes the MuSig2 funding aggregate key from the
// coordinator wallet's own key plus every entry's ephemeral pubkey. Every
// transaction kind spends from the same funding output, so they all share
// this one aggregate key; recomputing it is cheap and avoids persisting a
// value BuildContract can already reproduce deterministically.
func (w *Watcher) aggregateKeyFor(entries []*domain.Entry, indices map[uuid.UUID]int) (*btcec.PublicKey, error) {
	coordinatorPub, err := w.Builder.Wallet.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("loading coordinator pubkey: %w", err)
	}

	participants := make([]*btcec.PublicKey, len(entries))
	for _, e := range entries {
		idx, ok := indices[e.ID]
		if !ok {
			return nil, fmt.Errorf("entry %s has no assigned player index", e.ID)
		}
		pub, err := btcec.ParsePubKey(e.EphemeralPubkey)
		if err != nil {
			return nil, fmt.Errorf("parsing ephemeral pubkey for entry %s: %w", e.ID, err)
		}
		participants[idx] = pub
	}

	return contract.AggregateFundingKey(coordinatorPub, participants)
}

// sessionSigHash derives a deterministic per-(competition, tx kind)
// binding digest. A full implementation would sign the actual spend
// transaction's sighash for each kind; building that transaction ahead of
// broadcast time is outside this module's scope (Non-goals: DLC payout
// cryptography), so every session instead binds participants to this
// digest as a commitment/acknowledgment over the kind, keeping the full
// round-1/round-2 MuSig2 state machine exercised without requiring real
// payout scripts to exist up front.
func sessionSigHash(competitionID uuid.UUID, txKind string) [32]byte {
	return sha256.Sum256([]byte(competitionID.String() + ":" + txKind))
}

// stepSigningSession runs one Coordinator.Advance step for (c, txKind) and
// persists the result, returning the session's state after the step.
func (w *Watcher) stepSigningSession(ctx context.Context, c *domain.Competition, txKind string, now time.Time) (domain.SigningSessionState, error) {
	entries, err := w.loadEntries(ctx, c.ID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no entries for competition %s", c.ID)
	}
	indices := domain.AssignPlayerIndices(entries)

	aggKey, err := w.aggregateKeyFor(entries, indices)
	if err != nil {
		return "", err
	}

	session, err := w.Signing.BuildSession(txKind, aggKey, sessionSigHash(c.ID, txKind), entries, indices)
	if err != nil {
		return "", err
	}

	var state domain.SigningSessionState
	err = w.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		stored, err := w.Sessions.LoadForUpdate(ctx, tx, c.ID, txKind)
		if err != nil {
			return err
		}
		if err := w.Signing.Advance(ctx, session, stored, now); err != nil {
			return err
		}
		if err := w.Sessions.Update(ctx, tx, stored, now); err != nil {
			return err
		}
		state = stored.State
		return nil
	})
	if err != nil {
		return "", err
	}
	return state, nil
}

// advanceBackgroundSessions steps every non-funding signing session one
// tick forward regardless of the competition's current state, so delta_1,
// delta_2 and every outcome session are already complete by the time
// settlement actually needs them (§4.4). The funding session is driven
// explicitly by the ContractCreated..PartialSignaturesCollected handlers
// instead, since it alone gates the competition's own state progression.
func (w *Watcher) advanceBackgroundSessions(ctx context.Context, c *domain.Competition, now time.Time) error {
	if c.ContractParameters == nil {
		return nil
	}

	for _, kind := range signingKindsFor(c) {
		if kind == domain.TxKindFunding {
			continue
		}
		if _, err := w.stepSigningSession(ctx, c, kind, now); err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return err
		}
	}
	return nil
}

// finalizeFundingTransaction recovers the unsigned funding transaction
// from the PSBT BuildContract produced. The coordinator wallet's own
// input signatures are supplied by whatever wallet backs contract.Builder
// (Non-goals exclude reimplementing that signing step); the funding
// MuSig2 session instead binds every participant to the transaction via
// sessionSigHash before this point is ever reached.
func (w *Watcher) finalizeFundingTransaction(c *domain.Competition) (*wire.MsgTx, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(c.FundingPSBT), false)
	if err != nil {
		return nil, fmt.Errorf("decoding funding psbt: %w", err)
	}
	return packet.UnsignedTx, nil
}

// encodeTx serializes tx to wire bytes for persistence on the competition
// row.
func encodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeTx is encodeTx's inverse.
func decodeTx(raw []byte) (*wire.MsgTx, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &tx, nil
}
