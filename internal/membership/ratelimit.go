package membership

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys bounds the limiter table; idle buckets are dropped past it.
const maxTrackedKeys = 10000

// keyedLimiter gives every normalized email its own token bucket so one
// noisy client cannot lock everyone else out of sign-in.
type keyedLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *keyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	limiter, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) >= maxTrackedKeys {
			k.pruneIdle()
		}
		limiter = rate.NewLimiter(k.every, k.burst)
		k.limiters[key] = limiter
	}
	return limiter.Allow()
}

// pruneIdle forgets buckets that have refilled completely.
func (k *keyedLimiter) pruneIdle() {
	for key, limiter := range k.limiters {
		if limiter.Tokens() >= float64(k.burst) {
			delete(k.limiters, key)
		}
	}
}
