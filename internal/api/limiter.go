package api

import (
	"sync"

	"agendei/internal/config"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per API key (or peer address for
// unauthenticated gRPC calls).
type rateLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &rateLimiter{rps: rate.Limit(cfg.RPS), burst: burst}
}

func (l *rateLimiter) enabled() bool {
	return l.rps > 0
}

func (l *rateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
