package gateway

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tokenLimiterEntry tracks one bearer token's token-bucket state (a
// rate.Limiter; there is no sliding window).
type tokenLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenRateLimiter enforces a per-token actions/second ceiling, the same
// sync.Map-of-limiters shape used for per-IP limiting elsewhere, re-keyed
// from client IP to bearer token since every /action call already carries
// one.
type TokenRateLimiter struct {
	limiters sync.Map // map[string]*tokenLimiterEntry
	rps      float64
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTokenRateLimiter builds a limiter allowing rps actions/second per token,
// bursting up to burst. A background goroutine runs once a minute and evicts
// tokens unseen for two minutes so idle tokens don't pin memory forever.
func NewTokenRateLimiter(rps float64, burst int) *TokenRateLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	rl := &TokenRateLimiter{rps: rps, burst: burst, stopCh: make(chan struct{})}
	go rl.cleanupLoop()
	return rl
}

func (rl *TokenRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *TokenRateLimiter) getLimiter(token string) *rate.Limiter {
	now := time.Now()
	if entry, ok := rl.limiters.Load(token); ok {
		e := entry.(*tokenLimiterEntry)
		e.lastSeen = now
		return e.limiter
	}
	entry := &tokenLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst), lastSeen: now}
	actual, _ := rl.limiters.LoadOrStore(token, entry)
	return actual.(*tokenLimiterEntry).limiter
}

// Allow reports whether a request for token may proceed right now.
func (rl *TokenRateLimiter) Allow(token string) bool {
	return rl.getLimiter(token).Allow()
}

// RetryAfter estimates the wait before the next token would be allowed,
// used to populate the RATE_LIMITED error's retryAfterMs.
func (rl *TokenRateLimiter) RetryAfter(token string) time.Duration {
	res := rl.getLimiter(token).Reserve()
	defer res.Cancel()
	return res.Delay()
}

func (rl *TokenRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			rl.limiters.Range(func(key, value interface{}) bool {
				if value.(*tokenLimiterEntry).lastSeen.Before(cutoff) {
					rl.limiters.Delete(key)
				}
				return true
			})
		}
	}
}

// bearerToken extracts the token from an Authorization: Bearer <token>
// header, or "" if missing/malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}
