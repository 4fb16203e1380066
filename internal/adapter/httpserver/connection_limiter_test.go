package httpserver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestConnectionLimits_GlobalLimit(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 2, 10, 100, 100)

	ok, _ := limits.Acquire("1.1.1.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("2.2.2.2")
	assert.True(t, ok)

	ok, reason := limits.Acquire("3.3.3.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("1.1.1.1")
	ok, _ = limits.Acquire("3.3.3.3")
	assert.True(t, ok)
	assert.Equal(t, int64(2), limits.Active())
}

func TestConnectionLimits_PerIPLimitRollsBackGlobal(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 10, 1, 100, 100)

	ok, _ := limits.Acquire("1.1.1.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), limits.Active())

	ok, _ = limits.Acquire("2.2.2.2")
	assert.True(t, ok)
}

func TestConnectionLimits_ReleaseForgetsIP(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 10, 2, 100, 100)

	limits.Acquire("1.1.1.1")
	limits.Acquire("1.1.1.1")
	assert.Equal(t, 2, limits.perIP.count("1.1.1.1"))

	limits.Release("1.1.1.1")
	limits.Release("1.1.1.1")
	assert.Equal(t, 0, limits.perIP.count("1.1.1.1"))
	assert.Empty(t, limits.perIP.ips)
}

func TestConnectionLimits_RateRefillsWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(clock, 100, 100, 1, 2)

	for range 2 {
		ok, _ := limits.Acquire("1.1.1.1")
		assert.True(t, ok)
	}
	ok, reason := limits.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)

	// Other IPs have their own bucket.
	ok, _ = limits.Acquire("2.2.2.2")
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = limits.Acquire("1.1.1.1")
	assert.True(t, ok)
}

func TestConnectionLimits_IdleRateLimitersCleanedUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(clock, 100, 100, 1, 1)

	limits.Acquire("1.1.1.1")
	limits.Release("1.1.1.1")
	assert.Len(t, limits.rate.limiters, 1)

	clock.Advance(rateLimiterIdle + rateLimiterCleanup + time.Second)
	limits.Acquire("2.2.2.2")

	assert.Len(t, limits.rate.limiters, 1)
	assert.Contains(t, limits.rate.limiters, "2.2.2.2")
}

func TestConnectionLimits_Concurrent(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 50, 1000, 1000, 1000)

	var granted atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := limits.Acquire("1.1.1.1"); ok {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(50), granted.Load())
	assert.Equal(t, int64(50), limits.Active())
	assert.Equal(t, 50, limits.perIP.count("1.1.1.1"))
}
