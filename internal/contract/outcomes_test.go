package contract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

func TestStationMetricKeys_SortedAndDeduped(t *testing.T) {
	entries := []*domain.Entry{
		newTestEntry(t, "KORD", "high", domain.PickOver),
		newTestEntry(t, "KJFK", "low", domain.PickUnder),
		newTestEntry(t, "KORD", "high", domain.PickUnder),
	}
	keys := StationMetricKeys(entries)
	require.Equal(t, []string{"KJFK/low", "KORD/high"}, keys)
}

func TestDecodeEnumeratedOutcome_MixedRadix(t *testing.T) {
	keys := []string{"KJFK/low", "KORD/high"}

	// index 0 -> digit 0 for every key -> Under across the board.
	obs := DecodeEnumeratedOutcome(0, keys)
	require.Len(t, obs, 2)
	require.Equal(t, domain.PickUnder, scorePick(t, obs["KJFK/low"]))
	require.Equal(t, domain.PickUnder, scorePick(t, obs["KORD/high"]))

	// index 1 -> first key's digit rolls to 1 (Par), second stays 0 (Under).
	obs1 := DecodeEnumeratedOutcome(1, keys)
	require.Equal(t, domain.PickPar, scorePick(t, obs1["KJFK/low"]))
	require.Equal(t, domain.PickUnder, scorePick(t, obs1["KORD/high"]))

	// index 3 (= 0*3^0 + 1*3^1, i.e. digit0:0, digit1:1) -> second key rolls.
	obs3 := DecodeEnumeratedOutcome(3, keys)
	require.Equal(t, domain.PickUnder, scorePick(t, obs3["KJFK/low"]))
	require.Equal(t, domain.PickPar, scorePick(t, obs3["KORD/high"]))
}

func TestDecodeEnumeratedOutcome_Deterministic(t *testing.T) {
	keys := []string{"KJFK/low", "KORD/high"}
	a := DecodeEnumeratedOutcome(5, keys)
	b := DecodeEnumeratedOutcome(5, keys)
	require.Equal(t, a, b)
}

// scorePick recovers which Pick an Observation was built to reward, by
// running it through Score against every candidate pick.
func scorePick(t *testing.T, o Observation) domain.Pick {
	t.Helper()
	for _, p := range []domain.Pick{domain.PickOver, domain.PickPar, domain.PickUnder} {
		if Score(p, o) > 0 {
			return p
		}
	}
	t.Fatalf("observation %+v scores zero for every pick", o)
	return ""
}
