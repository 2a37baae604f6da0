package oracle

import (
	"errors"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Poller paces the coordinator's oracle calls the way discovery/syncer.go
// paces gossip queries with a rate.Limiter: one outstanding request per
// competition, with exponential backoff layered on top for 5xx/network
// failures (§4.2 "retries with exponential backoff on 5xx and network
// errors").
type Poller struct {
	limiter *rate.Limiter

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewPoller allows at most one oracle call per competition every
// minInterval, with retry backoff starting at baseDelay and capped at
// maxDelay.
func NewPoller(minInterval, baseDelay, maxDelay time.Duration) *Poller {
	return &Poller{
		limiter:   rate.NewLimiter(rate.Every(minInterval), 1),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Allow reports whether a new oracle call may be issued for this
// competition right now, enforcing the "capped at one outstanding request
// per competition" rule from §4.2. A tick that finds Allow false should
// simply skip the oracle call this round.
func (p *Poller) Allow() bool {
	return p.limiter.Allow()
}

// BackoffFor returns the exponential backoff delay before attempt number
// attempt (0-indexed) should be retried, capped at maxDelay.
func (p *Poller) BackoffFor(attempt int) time.Duration {
	delay := time.Duration(float64(p.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > p.maxDelay || delay <= 0 {
		return p.maxDelay
	}
	return delay
}

// IsTransient reports whether err is a retryable oracle failure per §7's
// taxonomy (network timeout, 5xx) as opposed to a semantic or protocol
// failure that should not be retried blindly.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
