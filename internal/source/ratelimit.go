package source

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// RateLimiter is a token bucket pacing requests to one upstream host.
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex
}

// NewRateLimiter allows bursts of maxTokens and one more request every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// tryAcquire takes a token, or reports how long until the next refill.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate <= 0 {
		return 0, true
	}

	now := time.Now()
	if add := int(now.Sub(rl.lastRefillTime) / rl.refillRate); add > 0 {
		rl.tokens += add
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefillTime = rl.lastRefillTime.Add(time.Duration(add) * rl.refillRate)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return 0, true
	}
	return rl.refillRate - now.Sub(rl.lastRefillTime), false
}

// HostLimiter keeps one RateLimiter per upstream host, created on first use.
type HostLimiter struct {
	maxTokens  int
	refillRate time.Duration

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

func NewHostLimiter(maxTokens int, refillRate time.Duration) *HostLimiter {
	return &HostLimiter{
		maxTokens:  maxTokens,
		refillRate: refillRate,
		limiters:   make(map[string]*RateLimiter),
	}
}

// Wait paces a request to rawURL. A nil HostLimiter never blocks.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	l, ok := h.limiters[host]
	if !ok {
		l = NewRateLimiter(h.maxTokens, h.refillRate)
		h.limiters[host] = l
	}
	h.mu.Unlock()

	return l.Wait(ctx)
}
