package chain

import "github.com/5day4cast/coordinator/internal/domain"

// PayoutPath is the outcome of racing the two signals §4.6 describes for a
// winning player: a cooperative Lightning payout request arriving, or the
// on-chain delta broadcast deadline being reached first. This mirrors
// htlcOutgoingContestResolver.Resolve's shape — check whether the
// "already settled cooperatively" signal fired first, then fall back to
// the timeout branch — collapsed into a single poll-driven decision
// instead of a goroutine race, since the watcher is tick-driven rather
// than notification-driven (§5).
type PayoutPath int

const (
	// PayoutPending means neither signal has fired yet; the caller
	// should take no action this tick.
	PayoutPending PayoutPath = iota

	// PayoutCooperative means the player supplied a valid
	// payout_ln_invoice before the delta deadline: pay over Lightning
	// and broadcast that player's sellback transaction instead of the
	// on-chain delta path.
	PayoutCooperative

	// PayoutUncooperative means the delta broadcast deadline arrived
	// with no Lightning invoice on file: fall through to delta_1/delta_2.
	PayoutUncooperative
)

// ResolvePayoutPath decides a single winning player's payout path as of
// currentHeight. entry must be one of the winning entries for the
// attested outcome; deltaDeadlineHeight is the block height at which the
// on-chain delta broadcast is triggered if no cooperative payout has
// happened yet.
func ResolvePayoutPath(entry *domain.Entry, currentHeight, deltaDeadlineHeight uint32) PayoutPath {
	// Check the "already resolved cooperatively" signal first, mirroring
	// the contest resolver's non-blocking select before it falls back to
	// a height comparison.
	if entry.PayoutLightningInvoice != "" {
		return PayoutCooperative
	}

	if currentHeight >= deltaDeadlineHeight {
		return PayoutUncooperative
	}

	return PayoutPending
}
