package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoller_Allow_RateLimited(t *testing.T) {
	p := NewPoller(time.Hour, time.Second, time.Minute)
	require.True(t, p.Allow())
	require.False(t, p.Allow())
}

func TestPoller_BackoffFor_GrowsAndCaps(t *testing.T) {
	p := NewPoller(time.Hour, time.Second, 10*time.Second)

	require.Equal(t, time.Second, p.BackoffFor(0))
	require.Equal(t, 2*time.Second, p.BackoffFor(1))
	require.Equal(t, 4*time.Second, p.BackoffFor(2))
	require.Equal(t, 10*time.Second, p.BackoffFor(10))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&TransientError{Err: errors.New("network blip")}))
	require.False(t, IsTransient(errors.New("plain error")))
}
