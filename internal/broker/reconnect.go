package broker

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff implements §4.4's exponential-backoff reconnect
// policy: delay = min(2^(attempt-1), 32) seconds, overall capped at
// 60s. RandomizationFactor is zeroed so the sequence is exactly
// 1s, 2s, 4s, 8s, 16s, 32s, 32s, ... rather than cenkalti/backoff's
// default jittered curve.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 32 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // never give up; the outer loop retries forever
	b.Reset()
	return b
}

// reconnectCap is the prose ceiling from §4.4 ("capped at 60s"); the
// formula itself never exceeds 32s, so this is a defensive outer bound.
const reconnectCap = 60 * time.Second

func cappedNext(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d > reconnectCap {
		return reconnectCap
	}
	return d
}
