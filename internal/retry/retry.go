// Package retry re-runs rate-limited calls with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"roas-notifier/internal/logger"
)

// RateLimitError is returned by sources when the upstream throttles us.
// It is the only error Do retries.
type RateLimitError struct {
	Source     string
	StatusCode int
	RetryAfter time.Duration // zero when the upstream gave no hint
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limited by %s", e.Source)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimit reports whether err carries a *RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Backoff returns min(2^(attempt-1), cap) seconds plus up to 10% jitter.
// attempt starts at 1. r may be nil, in which case no jitter is added.
func Backoff(attempt int, maxBackoff time.Duration, r *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := maxBackoff
	if seconds := math.Pow(2, float64(attempt-1)); seconds < maxBackoff.Seconds() {
		base = time.Duration(seconds * float64(time.Second))
	}
	if r == nil {
		return base
	}
	return base + time.Duration(r.Float64()*0.1*float64(base))
}

// waitFor is the backoff for attempt, raised to the upstream's Retry-After
// hint when that is longer. The hint never exceeds MaxBackoff.
func waitFor(err error, attempt int, p Policy) time.Duration {
	wait := Backoff(attempt, p.MaxBackoff, p.Rand)
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > wait {
		wait = rl.RetryAfter
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
	return wait
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds one retried call site.
type Policy struct {
	Scope       string // name used in logs and metrics
	MaxAttempts int
	MaxBackoff  time.Duration
	Sleep       Sleeper
	Rand        *rand.Rand
	// OnRateLimit is called before every backoff sleep
	OnRateLimit func(scope string, attempt int, wait time.Duration)
}

// Do calls fn until it succeeds, fails with a non-rate-limit error, or the
// attempt ceiling is reached. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRateLimit(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := waitFor(err, attempt, p)
		logger.RateLimited(ctx, p.Scope, attempt, wait, "max_attempts", attempts)
		if p.OnRateLimit != nil {
			p.OnRateLimit(p.Scope, attempt, wait)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", p.Scope, attempts, err)
}
