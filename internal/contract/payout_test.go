package contract

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

func newTestEntry(t *testing.T, station string, metric string, pick domain.Pick) *domain.Entry {
	t.Helper()
	return &domain.Entry{
		ID: uuid.New(),
		EntrySubmission: domain.EntrySubmission{
			Picks: []domain.StationPick{
				{StationID: station, Metrics: map[string]domain.Pick{metric: pick}},
			},
		},
	}
}

func TestScore_Par(t *testing.T) {
	// Scenario 4: station KORD, forecast high = 72, observation high = 72,
	// player picked Par. Expected: 2 points.
	o := Observation{StationID: "KORD", Metric: "high", Forecast: 72, Actual: 72}
	require.Equal(t, 2, Score(domain.PickPar, o))
}

func TestScore_OverUnder(t *testing.T) {
	o := Observation{Forecast: 50, Actual: 55}
	require.Equal(t, 1, Score(domain.PickOver, o))
	require.Equal(t, 0, Score(domain.PickUnder, o))

	o2 := Observation{Forecast: 50, Actual: 45}
	require.Equal(t, 1, Score(domain.PickUnder, o2))
	require.Equal(t, 0, Score(domain.PickOver, o2))
}

func TestBuildPayoutMatrix_TwoPlayersOneWinner(t *testing.T) {
	// Scenario 1: two players, one winning place, player 0 wins.
	winner := newTestEntry(t, "KORD", "high", domain.PickOver)
	loser := newTestEntry(t, "KORD", "high", domain.PickUnder)
	entries := []*domain.Entry{winner, loser}

	observations := map[string]Observation{
		"KORD/high": {StationID: "KORD", Metric: "high", Forecast: 50, Actual: 60},
	}

	shares := BuildPayoutMatrix(entries, observations, 1)
	require.Len(t, shares, 1)
	require.Equal(t, 0, shares[0].PlayerIndex)
	require.Equal(t, 1, shares[0].Weight)

	amounts := PayoutAmounts(shares, 2000)
	require.Equal(t, int64(2000), amounts[0])
}

func TestBuildPayoutMatrix_Tie(t *testing.T) {
	// Scenario 5: players 0 and 2 tie for first; remainder goes to the
	// lower index; sum of payouts equals the pool exactly.
	p0 := newTestEntry(t, "KORD", "high", domain.PickOver)
	p1 := newTestEntry(t, "KORD", "high", domain.PickUnder)
	p2 := newTestEntry(t, "KORD", "high", domain.PickOver)
	entries := []*domain.Entry{p0, p1, p2}

	observations := map[string]Observation{
		"KORD/high": {StationID: "KORD", Metric: "high", Forecast: 50, Actual: 60},
	}

	shares := BuildPayoutMatrix(entries, observations, 1)
	require.Len(t, shares, 2)
	for _, s := range shares {
		require.Contains(t, []int{0, 2}, s.PlayerIndex)
	}

	amounts := PayoutAmounts(shares, 101)
	var sum int64
	for _, amt := range amounts {
		sum += amt
	}
	require.Equal(t, int64(101), sum)
	// player 0 (lower index) gets the odd satoshi.
	require.Greater(t, amounts[0], amounts[2])
}

func TestBuildPayoutMatrix_SinglePlayer(t *testing.T) {
	// Boundary: exactly one entry, single-player degenerate case must
	// succeed.
	only := newTestEntry(t, "KORD", "high", domain.PickOver)
	entries := []*domain.Entry{only}

	observations := map[string]Observation{
		"KORD/high": {StationID: "KORD", Metric: "high", Forecast: 50, Actual: 60},
	}

	shares := BuildPayoutMatrix(entries, observations, 1)
	require.Len(t, shares, 1)
	require.Equal(t, 0, shares[0].PlayerIndex)
}
