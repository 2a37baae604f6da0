// Package watcher implements the Competition Watcher of §4.1: the single
// tick-driven loop that owns every competition's state transitions, the
// dispatch table of per-state handlers, and the cancellation executor that
// unwinds a competition's held funds when an operator requests it.
package watcher

import "github.com/5day4cast/coordinator/internal/domain"

type outcomeKind int

const (
	outcomeStay outcomeKind = iota
	outcomeAdvance
	outcomeCancel
	outcomeFail
)

// Outcome is what a handler returns after looking at one competition: stay
// put, advance to a named successor state, or escape to one of the two
// terminal states (§4.1 "Advance(new_state) / Stay / Cancel(reason) /
// Fail(reason)").
type Outcome struct {
	kind   outcomeKind
	next   domain.CompetitionState
	reason string
}

// Stay leaves the competition's state untouched this tick — used while
// waiting on an external signal (an oracle attestation, a confirmation
// threshold, a full entry set) that simply hasn't happened yet.
func Stay() Outcome {
	return Outcome{kind: outcomeStay}
}

// Advance moves the competition to next, which must be a declared
// successor of its current state (enforced by domain.CanTransition in
// finish, not by the handler itself).
func Advance(next domain.CompetitionState) Outcome {
	return Outcome{kind: outcomeAdvance, next: next}
}

// Cancel escapes to the reversible terminal state, reason logged as the
// final competition error. The cancellation executor runs before the
// state is actually persisted as Cancelled, since unwinding held funds
// must happen first (§5 "Cancellation and timeouts").
func Cancel(reason string) Outcome {
	return Outcome{kind: outcomeCancel, next: domain.Cancelled, reason: reason}
}

// Fail escapes to the irreversible terminal state for operator- or
// protocol-attributable failures that cannot be resolved by a refund
// (§7's Operator-attributable and Protocol-violation classes).
func Fail(reason string) Outcome {
	return Outcome{kind: outcomeFail, next: domain.Failed, reason: reason}
}
