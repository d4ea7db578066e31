package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorIdle is how long an idle client keeps its limiter.
const visitorIdle = 10 * time.Minute

// RateLimiter throttles requests per client key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key; zero or less disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		every:    time.Minute / time.Duration(perMinute),
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	return rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(rl.visitors, k)
		}
	}
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.every), 1)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}
