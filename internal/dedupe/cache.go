// ABOUTME: Thread-safe TTL cache of recently claimed keys.
// ABOUTME: Used by the background queue so one credential upgrade per principal is in flight.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores when a key was claimed and its position in the eviction list.
type cacheEntry struct {
	claimedAt time.Time
	element   *list.Element
}

// Cache is a TTL-based, size-limited set of claimed keys.
// A doubly-linked list keeps claim order so eviction of the oldest key is O(1).
type Cache struct {
	mu      sync.RWMutex
	claimed map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache whose claims expire after ttl. At most maxSize keys are
// held; claiming beyond that evicts the oldest. A background goroutine sweeps
// expired keys until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		claimed: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Check reports whether key holds an unexpired claim.
func (c *Cache) Check(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.claimed[key]
	if !ok {
		return false
	}
	return c.now().Sub(entry.claimedAt) < c.ttl
}

// CheckAndMark claims key unless an unexpired claim already exists.
// Returns true when the key was already claimed (the caller should skip its work).
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.claimed[key]
	if ok && c.now().Sub(entry.claimedAt) < c.ttl {
		return true
	}

	c.markLocked(key)
	return false
}

// Mark claims key, refreshing the claim time if it is already held.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Forget releases a claim so the key can be claimed again immediately.
// Releasing an unknown key is a no-op.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.claimed[key]
	if !ok {
		return
	}
	c.order.Remove(entry.element)
	delete(c.claimed, key)
}

// Len returns the number of held keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.claimed)
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := c.now()

	if entry, exists := c.claimed[key]; exists {
		entry.claimedAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.claimed) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.claimed[key] = &cacheEntry{
		claimedAt: now,
		element:   elem,
	}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claimed, key)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops every key whose claim is older than the TTL.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.claimed {
		if now.Sub(entry.claimedAt) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.claimed, key)
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
