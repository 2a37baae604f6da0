package contract

import (
	"sort"

	"github.com/5day4cast/coordinator/internal/domain"
)

// StationMetricKeys returns the sorted, deduplicated set of "station/metric"
// keys scored across entries — the canonical ordering DecodeEnumeratedOutcome
// assigns its mixed-radix digits to. Sorted so two calls over the same
// entry set always agree, independent of map iteration order.
func StationMetricKeys(entries []*domain.Entry) []string {
	seen := make(map[string]struct{})
	for _, e := range entries {
		for _, station := range e.EntrySubmission.Picks {
			for metric := range station.Metrics {
				seen[station.StationID+"/"+metric] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// outcomeDigits is the radix DecodeEnumeratedOutcome encodes each scored
// key's hypothetical result in: one of Under, Par, Over.
var outcomeDigits = [3]domain.Pick{domain.PickUnder, domain.PickPar, domain.PickOver}

// DecodeEnumeratedOutcome maps an oracle outcome index to the synthetic
// observation set it represents. A DLC-style oracle announcement enumerates
// every possible outcome up front (§3 invariant: "attestation selects one
// outcome branch"), so there is no real weather reading behind any given
// index until attestation — each index instead names one specific
// hypothetical combination of over/par/under results across every scored
// (station, metric) pair, via a base-3 (mixed-radix) encoding over keys,
// the canonical key ordering StationMetricKeys returns. This lets the
// Contract Builder compute the full payout matrix for every outcome before
// attestation, matching BuildContract's existing "iterate every outcome
// nonce" behavior.
func DecodeEnumeratedOutcome(outcomeIdx int, keys []string) map[string]Observation {
	observations := make(map[string]Observation, len(keys))

	remaining := outcomeIdx
	for _, key := range keys {
		digit := remaining % len(outcomeDigits)
		remaining /= len(outcomeDigits)

		pick := outcomeDigits[digit]
		observations[key] = observationFor(pick)
	}
	return observations
}

// observationFor builds the forecast/actual pair that scores pick as the
// winning pick for its (station, metric) pair: Score compares Actual
// against Forecast, so a fixed Forecast of 0 and an Actual offset in the
// pick's direction always reproduces the intended outcome.
func observationFor(pick domain.Pick) Observation {
	switch pick {
	case domain.PickOver:
		return Observation{Forecast: 0, Actual: 1}
	case domain.PickUnder:
		return Observation{Forecast: 0, Actual: -1}
	default:
		return Observation{Forecast: 0, Actual: 0}
	}
}
