package watcher

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/bitcoin"
	"github.com/5day4cast/coordinator/internal/chain"
	"github.com/5day4cast/coordinator/internal/contract"
	"github.com/5day4cast/coordinator/internal/crypto"
	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/lightning"
	"github.com/5day4cast/coordinator/internal/metrics"
	"github.com/5day4cast/coordinator/internal/oracle"
	"github.com/5day4cast/coordinator/internal/signing"
	"github.com/5day4cast/coordinator/internal/store"
	"github.com/5day4cast/coordinator/internal/tickets"
)

// Watcher is the single long-lived loop described in §4.1: every tick it
// loads every non-terminal competition, runs its state's handler, and
// commits whatever the handler decided, one short transaction at a time
// so no handler ever holds a row lock across an external call (§5).
type Watcher struct {
	DB           *store.DB
	Competitions *store.CompetitionRepo
	Entries      *store.EntryRepo
	Tickets      *store.TicketRepo
	Sessions     *store.SigningSessionRepo

	Oracle       *oracle.Client
	OraclePoller *oracle.Poller

	Builder *contract.Builder
	Signing *signing.Coordinator

	TicketSvc *tickets.Service
	Reaper    *tickets.Reaper

	Broadcaster  *chain.Broadcaster
	ChainWatcher *chain.Watcher
	Node         bitcoin.Client

	Lightning lightning.Client
	Sealer    *crypto.Sealer

	FundingConfThreshold       uint32
	DeltaConfThreshold         uint32
	ExternalCallTimeout        time.Duration
	TickDeadlinePerCompetition time.Duration
	AttestationDeadline        time.Duration

	Log btclog.Logger
	Now func() time.Time
}

// dispatch maps every non-terminal state to the handler that decides its
// next move. Populated in handlers.go; declared here so Tick's lookup and
// the handlers themselves live in one place each.
var dispatch = map[domain.CompetitionState]func(ctx context.Context, w *Watcher, c *domain.Competition, now time.Time) (Outcome, error){
	domain.Created:                    handleCreated,
	domain.EventCreated:               handleEventCreated,
	domain.EntriesCollected:           handleEntriesCollected,
	domain.EscrowFundsConfirmed:       handleEscrowFundsConfirmed,
	domain.ContractCreated:            handleContractCreated,
	domain.NoncesCollected:            handleNoncesCollected,
	domain.AggregateNoncesGenerated:   handleAggregateNoncesGenerated,
	domain.PartialSignaturesCollected: handlePartialSignaturesCollected,
	domain.SigningComplete:            handleSigningComplete,
	domain.FundingBroadcasted:         handleFundingBroadcasted,
	domain.FundingConfirmed:           handleFundingConfirmed,
	domain.FundingSettled:             handleFundingSettled,
	domain.OutcomeBroadcasted:         handleDeltaStage,
	domain.ExpiryBroadcasted:          handleDeltaStage,
	domain.DeltaBroadcasted:           handleDeltaBroadcasted,
}

// Run drives the watcher's tick loop on interval until ctx is cancelled,
// mirroring the single-goroutine-on-a-timer shape §5 calls for rather
// than a notification-driven design. The first tick runs immediately so a
// freshly-started process doesn't wait a full interval before its
// recovery scan (§4.1 "Recovery policy").
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	w.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one pass over every non-terminal competition plus the ticket
// reservation reaper (SPEC_FULL.md §D: "an explicit sweep in the watcher
// tick"), and refreshes the per-state gauge once at the end.
func (w *Watcher) Tick(ctx context.Context) {
	start := w.Now()
	defer func() {
		metrics.TickDuration.Observe(w.Now().Sub(start).Seconds())
	}()

	competitions, err := w.Competitions.ListNonTerminal(ctx)
	if err != nil {
		w.Log.Errorf("listing non-terminal competitions: %v", err)
		return
	}

	stateCounts := make(map[domain.CompetitionState]int, len(competitions))
	for _, c := range competitions {
		stateCounts[c.State]++

		compCtx, cancel := context.WithTimeout(ctx, w.TickDeadlinePerCompetition)
		w.tickOne(compCtx, c.ID)
		cancel()
	}

	metrics.CompetitionsByState.Reset()
	for state, count := range stateCounts {
		metrics.CompetitionsByState.WithLabelValues(string(state)).Set(float64(count))
	}

	if w.Reaper != nil {
		if err := w.Reaper.Run(ctx, start); err != nil {
			w.Log.Errorf("running ticket reaper: %v", err)
		}
	}
}

// tickOne advances a single competition by at most one state, per §4.1's
// "one DB transaction per competition per tick" rule split into a
// lock-free read, the handler's own I/O, and a separately-committed
// write (§5).
func (w *Watcher) tickOne(ctx context.Context, id uuid.UUID) {
	now := w.Now()

	c, err := w.Competitions.Load(ctx, id)
	if err != nil {
		w.Log.Errorf("loading competition %s: %v", id, err)
		return
	}
	if c.State.IsTerminal() {
		return
	}

	if err := w.advanceBackgroundSessions(ctx, c, now); err != nil {
		w.Log.Debugf("advancing background signing sessions for %s: %v", id, err)
	}

	if c.CancelRequested {
		if err := w.applyCancellation(ctx, c, now); err != nil {
			w.Log.Errorf("applying cancellation for %s: %v", id, err)
			return
		}
		w.finish(ctx, c, Cancel("cancel_requested"), now)
		return
	}

	handler, ok := dispatch[c.State]
	if !ok {
		w.Log.Errorf("no handler registered for competition %s in state %s", id, c.State)
		return
	}

	outcome, err := handler(ctx, w, c, now)
	if err != nil {
		if store.IsTransient(err) || oracle.IsTransient(err) {
			w.Log.Debugf("transient error advancing competition %s: %v", id, err)
			return
		}
		w.Log.Errorf("handler failed for competition %s in state %s: %v", id, c.State, err)
		metrics.HandlerFailures.WithLabelValues(string(c.State), "handler_error").Inc()
		outcome = Fail(err.Error())
	}

	if outcome.kind == outcomeCancel {
		if err := w.applyCancellation(ctx, c, now); err != nil {
			w.Log.Errorf("applying cancellation for %s: %v", id, err)
			return
		}
	}

	w.finish(ctx, c, outcome, now)
}

// finish persists the outcome of one handler invocation in its own short
// transaction, relying on CommitTransition's version precondition for
// concurrency safety rather than holding a row lock across the handler's
// external calls (§5 "a handler opens a transaction, reads, releases,
// performs external I/O, then opens a second transaction to commit the
// result").
func (w *Watcher) finish(ctx context.Context, c *domain.Competition, outcome Outcome, now time.Time) {
	switch outcome.kind {
	case outcomeStay:
		return

	case outcomeAdvance:
		if !c.State.CanTransition(outcome.next) {
			w.Log.Errorf("competition %s: illegal transition %s -> %s", c.ID, c.State, outcome.next)
			metrics.HandlerFailures.WithLabelValues(string(c.State), "illegal_transition").Inc()
			return
		}
		c.State = outcome.next
		setTransitionTimestamp(&c.Transitions, outcome.next, now)

	case outcomeCancel, outcomeFail:
		c.AppendError(now, outcome.reason, -1)
		c.State = outcome.next
		setTransitionTimestamp(&c.Transitions, outcome.next, now)
		if outcome.kind == outcomeFail {
			metrics.HandlerFailures.WithLabelValues(string(outcome.next), outcome.reason).Inc()
		}
	}

	err := w.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return w.Competitions.CommitTransition(ctx, tx, c)
	})
	if err != nil {
		if err == store.ErrVersionConflict || store.IsTransient(err) {
			w.Log.Debugf("competition %s: commit deferred to next tick: %v", c.ID, err)
			return
		}
		w.Log.Errorf("committing competition %s transition: %v", c.ID, err)
	}
}

// setTransitionTimestamp records the first time a state was entered
// (§3 invariant 2: each Transitions field is set exactly once).
func setTransitionTimestamp(t *domain.Transitions, state domain.CompetitionState, now time.Time) {
	switch state {
	case domain.EventCreated:
		setOnce(&t.EventCreatedAt, now)
	case domain.EntriesCollected:
		setOnce(&t.EntriesCollectedAt, now)
	case domain.EscrowFundsConfirmed:
		setOnce(&t.EscrowFundsConfirmedAt, now)
	case domain.ContractCreated:
		setOnce(&t.ContractCreatedAt, now)
	case domain.NoncesCollected:
		setOnce(&t.NoncesCollectedAt, now)
	case domain.AggregateNoncesGenerated:
		setOnce(&t.AggregateNoncesGeneratedAt, now)
	case domain.PartialSignaturesCollected:
		setOnce(&t.PartialSignaturesCollectedAt, now)
	case domain.SigningComplete:
		setOnce(&t.SigningCompleteAt, now)
	case domain.FundingBroadcasted:
		setOnce(&t.FundingBroadcastedAt, now)
	case domain.FundingConfirmed:
		setOnce(&t.FundingConfirmedAt, now)
	case domain.FundingSettled:
		setOnce(&t.FundingSettledAt, now)
	case domain.OutcomeBroadcasted:
		setOnce(&t.OutcomeBroadcastedAt, now)
	case domain.ExpiryBroadcasted:
		setOnce(&t.ExpiryBroadcastedAt, now)
	case domain.DeltaBroadcasted:
		setOnce(&t.DeltaBroadcastedAt, now)
	case domain.Completed:
		setOnce(&t.CompletedAt, now)
	case domain.Cancelled:
		setOnce(&t.CancelledAt, now)
	case domain.Failed:
		setOnce(&t.FailedAt, now)
	}
}

func setOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}

// loadEntries locks and returns the frozen entry set for a competition's
// event within its own short transaction. Every handler past
// EscrowFundsConfirmed treats this set as immutable (§3).
func (w *Watcher) loadEntries(ctx context.Context, eventID uuid.UUID) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	err := w.DB.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		entries, err = w.Entries.ListByEvent(ctx, tx, eventID)
		return err
	})
	return entries, err
}

// lightningHash converts a ticket's stored payment hash into the
// lightning package's Hash type.
func lightningHash(raw [32]byte) lightning.Hash {
	return lightning.Hash(raw)
}
