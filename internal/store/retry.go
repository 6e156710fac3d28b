package store

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"tweetnorm/internal/logging"
	"tweetnorm/internal/metrics"
)

// RetryPolicy bounds the backoff applied to connection failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is five attempts starting at 500ms, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 30 * time.Second}
}

// WithRetry runs fn until it succeeds, fails with something other than a
// connection failure, or the attempts run out. Waits double each attempt
// with +/-20% jitter.
func WithRetry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	backoff := p.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil || !IsConnectionFailure(err) {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		wait := jitter(backoff)
		metrics.IncStoreRetry(op)
		logging.Warn("store_retry", map[string]any{
			"op": op, "attempt": attempt, "wait": wait.String(), "error": err.Error(),
		})
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op)
		}
		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return errors.Wrapf(lastErr, "%s failed after %d attempts", op, p.MaxAttempts)
}

func jitter(d time.Duration) time.Duration {
	j := time.Duration(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return d - j + rand.N(2*j)
}
