// Package domain holds the coordinator's core data model: competitions,
// tickets and entries, their states, and the invariants that bind them.
package domain

// CompetitionState is one position in the competition's monotonic
// progression from Created to a terminal state.
type CompetitionState string

const (
	Created                    CompetitionState = "created"
	EventCreated               CompetitionState = "event_created"
	EntriesCollected           CompetitionState = "entries_collected"
	EscrowFundsConfirmed       CompetitionState = "escrow_funds_confirmed"
	ContractCreated            CompetitionState = "contract_created"
	NoncesCollected            CompetitionState = "nonces_collected"
	AggregateNoncesGenerated   CompetitionState = "aggregate_nonces_generated"
	PartialSignaturesCollected CompetitionState = "partial_signatures_collected"
	SigningComplete            CompetitionState = "signing_complete"
	FundingBroadcasted         CompetitionState = "funding_broadcasted"
	FundingConfirmed           CompetitionState = "funding_confirmed"
	FundingSettled             CompetitionState = "funding_settled"
	OutcomeBroadcasted         CompetitionState = "outcome_broadcasted"
	ExpiryBroadcasted          CompetitionState = "expiry_broadcasted"
	DeltaBroadcasted           CompetitionState = "delta_broadcasted"
	Completed                  CompetitionState = "completed"

	// Terminal states, reachable from anywhere in the DAG.
	Cancelled CompetitionState = "cancelled"
	Failed    CompetitionState = "failed"
)

// edges is the declared DAG of §4.1. Each state lists the states it may
// advance to on a successful handler return. Cancelled and Failed are
// omitted from every list below and checked separately in CanTransition,
// since they're reachable from any non-terminal state.
var edges = map[CompetitionState][]CompetitionState{
	Created:                    {EventCreated},
	EventCreated:               {EntriesCollected},
	EntriesCollected:           {EscrowFundsConfirmed},
	EscrowFundsConfirmed:       {ContractCreated},
	ContractCreated:            {NoncesCollected},
	NoncesCollected:            {AggregateNoncesGenerated},
	AggregateNoncesGenerated:   {PartialSignaturesCollected},
	PartialSignaturesCollected: {SigningComplete},
	SigningComplete:            {FundingBroadcasted},
	FundingBroadcasted:         {FundingConfirmed},
	FundingConfirmed:           {FundingSettled},
	FundingSettled:             {OutcomeBroadcasted, ExpiryBroadcasted},
	OutcomeBroadcasted:         {DeltaBroadcasted},
	ExpiryBroadcasted:          {DeltaBroadcasted},
	DeltaBroadcasted:           {Completed},
	Completed:                  {},
	Cancelled:                  {},
	Failed:                     {},
}

// IsTerminal reports whether a competition in this state can never
// transition again.
func (s CompetitionState) IsTerminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// CanTransition reports whether moving from s to next obeys the DAG:
// either next is a declared successor of s, or next is one of the two
// terminal escape hatches and s is not itself already terminal.
func (s CompetitionState) CanTransition(next CompetitionState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == Cancelled || next == Failed {
		return true
	}
	for _, candidate := range edges[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TicketState is the lifecycle of a single admission ticket (§3, §4.5).
type TicketState string

const (
	TicketReserved  TicketState = "reserved"
	TicketPaid      TicketState = "paid"
	TicketSettled   TicketState = "settled"
	TicketExpired   TicketState = "expired"
	TicketUsed      TicketState = "used"
	TicketCancelled TicketState = "cancelled"
)

var ticketEdges = map[TicketState][]TicketState{
	TicketReserved:  {TicketPaid, TicketExpired, TicketCancelled},
	TicketPaid:      {TicketSettled, TicketCancelled},
	TicketSettled:   {TicketUsed, TicketCancelled},
	TicketExpired:   {},
	TicketUsed:      {},
	TicketCancelled: {},
}

func (s TicketState) CanTransition(next TicketState) bool {
	for _, candidate := range ticketEdges[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s TicketState) IsTerminal() bool {
	switch s {
	case TicketExpired, TicketUsed, TicketCancelled:
		return true
	default:
		return false
	}
}

// SigningSessionState is the per-transaction MuSig2 session state (§4.4).
type SigningSessionState string

const (
	SigningPending        SigningSessionState = "pending"
	SigningNoncesPending  SigningSessionState = "nonces_pending"
	SigningNoncesComplete SigningSessionState = "nonces_complete"
	SigningSigsPending    SigningSessionState = "sigs_pending"
	SigningSigsComplete   SigningSessionState = "sigs_complete"
	SigningBroadcast      SigningSessionState = "broadcast"
	SigningFailed         SigningSessionState = "failed"
)
