// ABOUTME: Tests for the failed login attempt counter
// ABOUTME: Validates window expiry, size limits, eviction, cleanup, and concurrency safety

package attempts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move the counter's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCounter(window time.Duration, maxSize int) (*Counter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(window, maxSize)
	c.now = clock.Now
	return c, clock
}

func TestCounter_CountUnknown(t *testing.T) {
	c, _ := newTestCounter(time.Minute, 10)
	defer c.Close()

	assert.Equal(t, uint(0), c.Count("1001"))
}

func TestCounter_Increment(t *testing.T) {
	c, _ := newTestCounter(time.Minute, 10)
	defer c.Close()

	assert.Equal(t, uint(1), c.Increment("1001"))
	assert.Equal(t, uint(2), c.Increment("1001"))
	assert.Equal(t, uint(1), c.Increment("1002"))
	assert.Equal(t, uint(2), c.Count("1001"))
}

func TestCounter_WindowExpires(t *testing.T) {
	c, clock := newTestCounter(time.Minute, 10)
	defer c.Close()

	c.Increment("1001")
	c.Increment("1001")
	clock.Advance(30 * time.Second)
	// Later failures do not extend the window.
	c.Increment("1001")
	assert.Equal(t, uint(3), c.Count("1001"))

	clock.Advance(30 * time.Second)
	assert.Equal(t, uint(0), c.Count("1001"))
	assert.Equal(t, uint(1), c.Increment("1001"))
}

func TestCounter_Reset(t *testing.T) {
	c, _ := newTestCounter(time.Minute, 10)
	defer c.Close()

	c.Increment("1001")
	c.Reset("1001")
	c.Reset("never")

	assert.Equal(t, uint(0), c.Count("1001"))
	assert.Equal(t, 0, c.Len())
}

func TestCounter_EvictsOldestAtCapacity(t *testing.T) {
	c, clock := newTestCounter(time.Hour, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Increment(fmt.Sprintf("agent-%d", i))
		clock.Advance(time.Second)
	}
	c.Increment("agent-3")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint(0), c.Count("agent-0"))
	assert.Equal(t, uint(1), c.Count("agent-3"))
}

func TestCounter_RunCleanup(t *testing.T) {
	c, clock := newTestCounter(time.Minute, 10)
	defer c.Close()

	c.Increment("old")
	clock.Advance(45 * time.Second)
	c.Increment("new")
	clock.Advance(30 * time.Second)

	c.runCleanup()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint(1), c.Count("new"))
}

func TestCounter_CloseTwice(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestCounter_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Increment("1001")
				c.Count("1001")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint(1000), c.Count("1001"))
}
