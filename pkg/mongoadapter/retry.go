package mongoadapter

import (
	"context"
	"math/rand"
	"time"
)

// retryBases are the three backoff bases from spec §4.7: 50ms, 200ms,
// 800ms, each jittered by ±20%. The pattern (exponential base with
// randomized jitter to avoid thundering herds) follows the retry loop in
// nodestorage's FindOneAndUpdate, adapted from a version-conflict retry to
// a transient-network-error retry.
var retryBases = [...]time.Duration{
	50 * time.Millisecond,
	200 * time.Millisecond,
	800 * time.Millisecond,
}

const retryJitter = 0.20

func jittered(base time.Duration) time.Duration {
	delta := float64(base) * retryJitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}

// withRetry runs op up to len(retryBases)+1 times, retrying only on
// isTransient errors, with jittered exponential backoff between
// attempts. Non-transient errors are returned as-is; once the retries are
// exhausted, the last transient error is returned wrapped so that it
// unwraps to ErrUpstreamUnavailable. op names the call for logging and
// metrics.
func (a *Adapter) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
		if attempt >= len(retryBases) {
			a.log.WithField("op", op).Warnf("mongo adapter: giving up after %d retries: %s", attempt, lastErr)
			return wrapUpstream(lastErr)
		}
		if a.metrics != nil {
			a.metrics.IncMongoRetry(op)
		}
		delay := jittered(retryBases[attempt])
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
