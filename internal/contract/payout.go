// Package contract implements the Contract Builder (spec §4.3): player
// index assignment, outcome scoring, payout-matrix construction, and
// deterministic funding PSBT assembly.
package contract

import (
	"sort"

	"github.com/google/uuid"

	"github.com/5day4cast/coordinator/internal/domain"
)

// Observation is the oracle's actual reading for one (station, metric)
// pair, used to score every entry's picks once the observation window
// has closed and an outcome index is being evaluated.
type Observation struct {
	StationID string
	Metric    string
	Forecast  float64
	Actual    float64
}

// Score implements §4.3 step 2's scoring rule for a single pick against
// its observation: Over wins 1 point if actual > forecast, Par wins 2
// points if actual == forecast, Under wins 1 point if actual < forecast,
// otherwise 0.
func Score(pick domain.Pick, o Observation) int {
	switch pick {
	case domain.PickOver:
		if o.Actual > o.Forecast {
			return 1
		}
	case domain.PickPar:
		if o.Actual == o.Forecast {
			return 2
		}
	case domain.PickUnder:
		if o.Actual < o.Forecast {
			return 1
		}
	}
	return 0
}

// ScoreEntry totals an entry's picks against the observation set for one
// outcome. observations is keyed by "stationID/metric".
func ScoreEntry(e *domain.Entry, observations map[string]Observation) int {
	total := 0
	for _, station := range e.EntrySubmission.Picks {
		for metric, pick := range station.Metrics {
			o, ok := observations[station.StationID+"/"+metric]
			if !ok {
				continue
			}
			total += Score(pick, o)
		}
	}
	return total
}

// BuildPayoutMatrix computes the payout shares for one outcome: the
// numberOfPlacesWin entries with the highest score, plus every entry tied
// with the last of them, each receive an equal weight of 1. Weights are
// not graded by rank: every winner's share is the same, and PayoutAmounts
// gives the floor-division remainder to the lowest player index (§4.3 step
// 2, SPEC_FULL.md/DESIGN.md's tie-break decision).
//
// entries must already be in player-index order (domain.AssignPlayerIndices).
func BuildPayoutMatrix(entries []*domain.Entry, observations map[string]Observation, numberOfPlacesWin int) []domain.PayoutShare {
	type scored struct {
		playerIndex int
		score       int
	}

	scores := make([]scored, len(entries))
	for i, e := range entries {
		scores[i] = scored{playerIndex: i, score: ScoreEntry(e, observations)}
	}

	// Stable sort by score descending, player index ascending as tiebreak
	// for ordering purposes only (actual prize ties are resolved below).
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].playerIndex < scores[j].playerIndex
	})

	if numberOfPlacesWin > len(scores) {
		numberOfPlacesWin = len(scores)
	}
	if numberOfPlacesWin == 0 {
		return nil
	}

	// The cutoff score is the score of the last winning place. Every
	// entry with a score >= cutoff is a winner; entries tied at the
	// cutoff split that place's worth of weight among themselves.
	cutoffScore := scores[numberOfPlacesWin-1].score

	var winners []scored
	for _, s := range scores {
		if s.score >= cutoffScore {
			winners = append(winners, s)
		}
	}

	// Every winner, including every entry tied at the cutoff, gets the same
	// weight, so tied winners split the pool equally; PayoutAmounts hands
	// the satoshi remainder of that split to the lowest player index
	// (DESIGN.md Open Question decision #1).
	shares := make([]domain.PayoutShare, 0, len(winners))
	for _, w := range winners {
		shares = append(shares, domain.PayoutShare{PlayerIndex: w.playerIndex, Weight: 1})
	}

	sort.Slice(shares, func(i, j int) bool { return shares[i].PlayerIndex < shares[j].PlayerIndex })
	return shares
}

// PlayerIndexFor is a small convenience wrapper around
// domain.AssignPlayerIndices for callers that only need one entry's index.
func PlayerIndexFor(entries []*domain.Entry, id uuid.UUID) (int, bool) {
	indices := domain.AssignPlayerIndices(entries)
	idx, ok := indices[id]
	return idx, ok
}

// PayoutAmounts converts a payout matrix row into satoshi amounts, given
// the pool remaining after the coordinator fee. Weighted shares split the
// pool proportionally; any remainder from integer division goes to the
// lowest player index among the winners, matching the tie-break policy
// used for weight assignment itself.
func PayoutAmounts(shares []domain.PayoutShare, poolAfterFee int64) map[int]int64 {
	totalWeight := 0
	for _, s := range shares {
		totalWeight += s.Weight
	}
	if totalWeight == 0 {
		return nil
	}

	amounts := make(map[int]int64, len(shares))
	var distributed int64
	sorted := make([]domain.PayoutShare, len(shares))
	copy(sorted, shares)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PlayerIndex < sorted[j].PlayerIndex })

	// Floor-divide every share except the lowest player index, then hand
	// the lowest index whatever satoshi remainder is left over — same
	// tie-break policy as the weight assignment above.
	for i := 1; i < len(sorted); i++ {
		amt := poolAfterFee * int64(sorted[i].Weight) / int64(totalWeight)
		amounts[sorted[i].PlayerIndex] = amt
		distributed += amt
	}
	if len(sorted) > 0 {
		amounts[sorted[0].PlayerIndex] = poolAfterFee - distributed
	}
	return amounts
}
