package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

func TestResolvePayoutPath(t *testing.T) {
	cooperative := &domain.Entry{PayoutLightningInvoice: "lnbc1..."}
	require.Equal(t, PayoutCooperative, ResolvePayoutPath(cooperative, 100, 200))

	uncooperative := &domain.Entry{}
	require.Equal(t, PayoutUncooperative, ResolvePayoutPath(uncooperative, 200, 200))
	require.Equal(t, PayoutPending, ResolvePayoutPath(uncooperative, 150, 200))
}

func TestIsAlreadyKnown(t *testing.T) {
	require.True(t, isAlreadyKnown(errTest{"Transaction already in block chain"}))
	require.True(t, isAlreadyKnown(errTest{"txn-already-known"}))
	require.False(t, isAlreadyKnown(errTest{"insufficient fee"}))
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
