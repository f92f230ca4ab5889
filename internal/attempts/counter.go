// ABOUTME: Thread-safe TTL counter of failed login attempts keyed by agent id
// ABOUTME: Entries expire one window after their first failure and the oldest are evicted at capacity

package attempts

import (
	"container/list"
	"sync"
	"time"
)

// counterEntry tracks failures for one key.
type counterEntry struct {
	count   uint
	started time.Time
	element *list.Element
}

// Counter is a size-limited map of failure counts whose entries expire a
// fixed window after the first failure they record.
type Counter struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	order   *list.List // keys by window start, oldest at front
	window  time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a Counter. A background goroutine periodically drops expired
// entries until Close is called.
func New(window time.Duration, maxSize int) *Counter {
	c := &Counter{
		entries: make(map[string]*counterEntry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Count returns the number of failures recorded for key in the current window.
func (c *Counter) Count(key string) uint {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.expiredLocked(entry) {
		return 0
	}
	return entry.count
}

// Increment records a failure for key and returns the updated count.
func (c *Counter) Increment(key string) uint {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if !c.expiredLocked(entry) {
			entry.count++
			return entry.count
		}
		c.removeLocked(key, entry)
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &counterEntry{
		count:   1,
		started: c.now(),
		element: elem,
	}
	return 1
}

// Reset forgets all failures for key.
func (c *Counter) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.removeLocked(key, entry)
	}
}

// Len returns the number of tracked keys, including expired ones not yet cleaned up.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// expiredLocked must be called with mu held.
func (c *Counter) expiredLocked(entry *counterEntry) bool {
	return c.now().Sub(entry.started) >= c.window
}

// removeLocked must be called with mu held.
func (c *Counter) removeLocked(key string, entry *counterEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// evictOldest removes the entry with the oldest window. Must be called with mu held.
func (c *Counter) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

func (c *Counter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup drops expired entries from the front of the list.
func (c *Counter) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		entry := c.entries[key]
		if !c.expiredLocked(entry) {
			return
		}
		c.removeLocked(key, entry)
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Counter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
