package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowRejectsBeyondLimitWithinWindow(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(3, time.Minute, WithClock(c.Now))

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("alice")
		require.True(t, ok, "request %d should pass", i)
		c.Advance(10 * time.Second)
	}

	ok, wait := l.Allow("alice")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	ok, _ = l.Allow("bob")
	assert.True(t, ok, "owners are limited independently")
}

func TestWindowRolls(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(2, time.Minute, WithClock(c.Now))

	ok, _ := l.Allow("alice")
	require.True(t, ok)
	c.Advance(30 * time.Second)
	ok, _ = l.Allow("alice")
	require.True(t, ok)

	ok, _ = l.Allow("alice")
	require.False(t, ok)

	c.Advance(30 * time.Second)
	ok, _ = l.Allow("alice")
	assert.True(t, ok, "first request left the window")
	assert.Equal(t, 0, l.Remaining("alice"))
}

func TestRejectedRequestsDoNotConsumeBudget(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(1, time.Minute, WithClock(c.Now))

	ok, _ := l.Allow("alice")
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = l.Allow("alice")
		require.False(t, ok)
	}
	c.Advance(time.Minute)
	ok, _ = l.Allow("alice")
	assert.True(t, ok)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("alice")
		require.True(t, ok)
	}
	assert.Equal(t, -1, l.Remaining("alice"))
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	l := New(5, time.Hour)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("alice"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, granted)
}

func TestPruneDropsIdleOwners(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(2, time.Minute, WithClock(c.Now))
	l.Allow("alice")
	l.Allow("bob")
	c.Advance(2 * time.Minute)
	l.Allow("bob")

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 2, l.Remaining("alice"))
}
