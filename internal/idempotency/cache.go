// ABOUTME: Thread-safe TTL cache mapping dedup keys to handler results.
// ABOUTME: Duplicate keys arriving mid-execution attach to the in-flight result.

package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/loomworks/plugin-gateway/internal/contract"
)

// entry tracks one key's execution. While in flight, result is unset and
// done is open; completion writes result, stamps expiresAt, and closes done.
type entry struct {
	key       string
	done      chan struct{}
	result    *contract.Result
	completed bool
	expiresAt time.Time
	element   *list.Element
}

// Cache provides a thread-safe, TTL-based, size-limited cache mapping
// idempotency keys to previously produced results, making retried requests
// safe. A duplicate key arriving while the first execution is still in
// flight waits for that execution's result instead of running the handler
// again, so side effects happen at most once per key per TTL window.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Do executes fn for the key, or serves a previous result. The second
// return value reports whether the result was shared (cache hit or attach
// to an in-flight execution) rather than produced by this call. A waiter
// whose context ends before the in-flight execution completes gets ctx.Err().
//
// fn must return a non-nil result; the dispatcher guarantees this by
// translating every failure, including recovered panics, into a result.
func (c *Cache) Do(ctx context.Context, key string, fn func() *contract.Result) (*contract.Result, bool, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok && !c.expiredLocked(e, time.Now()) {
		if e.completed {
			result := e.result
			c.mu.Unlock()
			return result.Clone(), true, nil
		}

		// In flight: attach to the leader's eventual result.
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.result.Clone(), true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	e := c.beginLocked(key)
	c.mu.Unlock()

	result := fn()
	c.complete(e, result)
	return result, false, nil
}

// Lookup returns the completed result for a key, if present and unexpired.
// Expired entries are evicted lazily here.
func (c *Cache) Lookup(key string) (*contract.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.completed {
		return nil, false
	}
	if c.expiredLocked(e, time.Now()) {
		c.removeLocked(e)
		return nil, false
	}
	return e.result.Clone(), true
}

// Len returns the number of cached entries, including in-flight ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// beginLocked installs a fresh in-flight entry for key, evicting any
// expired predecessor and the oldest completed entry when at capacity.
// Must be called with mu held.
func (c *Cache) beginLocked(key string) *entry {
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	e := &entry{
		key:  key,
		done: make(chan struct{}),
	}
	e.element = c.order.PushBack(key)
	c.entries[key] = e
	return e
}

// complete records the leader's result and wakes attached waiters.
func (c *Cache) complete(e *entry, result *contract.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result == nil {
		// Leader aborted without a result. Cache a stable error so retries
		// within the TTL get the same answer instead of repeated work.
		result = contract.Internal("handler execution aborted")
	}
	e.result = result
	e.completed = true
	e.expiresAt = time.Now().Add(c.ttl)
	close(e.done)
}

// expiredLocked reports whether a completed entry is past its TTL.
// In-flight entries never expire. Must be called with mu held.
func (c *Cache) expiredLocked(e *entry, now time.Time) bool {
	return e.completed && now.After(e.expiresAt)
}

// removeLocked drops an entry from the map and order list.
// Must be called with mu held.
func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}

// evictOldestLocked removes the oldest completed entry. In-flight entries
// are never evicted: dropping a leader would let a duplicate of its key
// start a second execution while the first still runs. When every entry is
// in flight the cache grows past maxSize instead.
// Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		key, _ := el.Value.(string)
		e, ok := c.entries[key]
		if !ok || !e.completed {
			continue
		}
		c.removeLocked(e)
		return
	}
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(30 * time.Second)
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

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, e := range c.entries {
		if c.expiredLocked(e, now) {
			c.removeLocked(e)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
