package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestKeyedLimiter_PrunesRefilledBuckets(t *testing.T) {
	limiter := newKeyedLimiter(60)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("busy@campus.edu"))
	}
	limiter.limiters["idle@campus.edu"] = rate.NewLimiter(limiter.every, limiter.burst)

	limiter.pruneIdle()
	assert.Contains(t, limiter.limiters, "busy@campus.edu")
	assert.NotContains(t, limiter.limiters, "idle@campus.edu")
}
