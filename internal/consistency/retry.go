package consistency

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/model"
)

// MaxBackoff caps a single retry delay before jitter
const MaxBackoff = 30 * time.Second

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy bounds retries of transient classifier failures
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Sleep       SleepFunc // nil waits on a timer
}

// AggregateWithRetry runs Aggregate and retries transient failures with
// exponential backoff. It returns the number of retries spent.
func (a *Aggregator) AggregateWithRetry(ctx context.Context, call classify.CallFunc, in classify.Input, nSamples int, temperature float64, policy RetryPolicy) (*model.Prediction, int, error) {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		pred, err := a.Aggregate(ctx, call, in, nSamples, temperature)
		if err == nil {
			return pred, attempt, nil
		}
		lastErr = err
		if !model.IsTransient(err) || ctx.Err() != nil {
			return nil, attempt, err
		}
		if attempt < maxRetries {
			if err := sleep(ctx, Backoff(policy.BaseBackoff, attempt)); err != nil {
				return nil, attempt, err
			}
		}
	}
	return nil, maxRetries, fmt.Errorf("retries exhausted: %w", lastErr)
}

// Backoff returns base*2^attempt, capped at MaxBackoff, with up to 50% jitter
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << uint(attempt)
	if d > MaxBackoff || d <= 0 {
		d = MaxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// SleepContext waits for d unless ctx is done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
