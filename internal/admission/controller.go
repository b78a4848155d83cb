// ABOUTME: Bounded-concurrency admission control with global and per-plugin limits
// ABOUTME: Queued acquirers wait FIFO; tickets are released exactly once via sync.Once

package admission

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrRejected means capacity is exhausted and the wait queue is full.
// It is distinct from all other error kinds so callers can retry with
// backoff instead of treating it as a permanent failure.
var ErrRejected = errors.New("admission rejected: capacity exhausted")

// Ticket represents one granted concurrency slot, scoped to a plugin name.
// It is owned exclusively by the in-flight call and must be released exactly
// once; Release is idempotent so every exit path can call it safely.
type Ticket struct {
	name string
	c    *Controller
	once sync.Once
}

// Name returns the plugin name the slot was granted for.
func (t *Ticket) Name() string { return t.name }

// Release returns the slot to the controller. Safe to call more than once;
// only the first call has an effect.
func (t *Ticket) Release() {
	t.once.Do(func() { t.c.release(t.name) })
}

// waiter is one queued acquisition. ready is buffered so a grant never
// blocks the releasing goroutine.
type waiter struct {
	name  string
	ready chan *Ticket
}

// Controller bounds concurrent handler executions. It maintains a global
// in-flight count and a per-plugin in-flight count, each capped by its
// configured limit. When capacity is unavailable, acquirers wait in a
// bounded FIFO queue; within one plugin name grants are strictly
// first-come-first-served, and across names the oldest eligible waiter is
// granted on each release.
type Controller struct {
	mu sync.Mutex

	globalLimit  int
	defaultLimit int
	limits       map[string]int
	maxQueue     int

	globalInflight int
	inflight       map[string]int

	waiters       *list.List
	waitingByName map[string]int
}

// New creates a Controller. perPlugin overrides the default per-plugin
// limit for specific names. maxQueue bounds how many acquisitions may wait;
// zero disables queueing so saturated requests are rejected immediately.
func New(globalLimit, defaultLimit int, perPlugin map[string]int, maxQueue int) *Controller {
	limits := make(map[string]int, len(perPlugin))
	for name, limit := range perPlugin {
		limits[name] = limit
	}
	return &Controller{
		globalLimit:   globalLimit,
		defaultLimit:  defaultLimit,
		limits:        limits,
		maxQueue:      maxQueue,
		inflight:      make(map[string]int),
		waiters:       list.New(),
		waitingByName: make(map[string]int),
	}
}

// Limit returns the configured concurrency limit for a plugin name.
func (c *Controller) Limit(name string) int {
	if limit, ok := c.limits[name]; ok {
		return limit
	}
	return c.defaultLimit
}

// InFlight returns the current in-flight count for a plugin name.
func (c *Controller) InFlight(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[name]
}

// GlobalInFlight returns the current aggregate in-flight count.
func (c *Controller) GlobalInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalInflight
}

// Acquire obtains a slot for the named plugin, waiting in FIFO order when
// capacity is unavailable. It returns ErrRejected when the wait queue is
// full (or queueing is disabled), and ctx.Err() when the caller's context
// ends while queued. A cancelled waiter is never granted a slot later.
func (c *Controller) Acquire(ctx context.Context, name string) (*Ticket, error) {
	c.mu.Lock()

	// Fast path: capacity available and no queued waiter for this name
	// (which would otherwise be overtaken).
	if c.waitingByName[name] == 0 && c.canAcquireLocked(name) {
		ticket := c.grantLocked(name)
		c.mu.Unlock()
		return ticket, nil
	}

	if c.maxQueue <= 0 || c.waiters.Len() >= c.maxQueue {
		c.mu.Unlock()
		return nil, ErrRejected
	}

	w := &waiter{name: name, ready: make(chan *Ticket, 1)}
	elem := c.waiters.PushBack(w)
	c.waitingByName[name]++
	c.mu.Unlock()

	select {
	case ticket := <-w.ready:
		return ticket, nil
	case <-ctx.Done():
		c.mu.Lock()
		select {
		case ticket := <-w.ready:
			// Granted concurrently with cancellation. Hand the slot to the
			// next waiter rather than letting it leak.
			c.mu.Unlock()
			ticket.Release()
		default:
			c.waiters.Remove(elem)
			c.waitingByName[name]--
			if c.waitingByName[name] == 0 {
				delete(c.waitingByName, name)
			}
			c.mu.Unlock()
		}
		return nil, ctx.Err()
	}
}

// canAcquireLocked reports whether a slot for name fits under both limits.
// Must be called with mu held.
func (c *Controller) canAcquireLocked(name string) bool {
	return c.globalInflight < c.globalLimit && c.inflight[name] < c.Limit(name)
}

// grantLocked consumes one slot for name. Must be called with mu held and
// only after canAcquireLocked returned true.
func (c *Controller) grantLocked(name string) *Ticket {
	c.globalInflight++
	c.inflight[name]++
	return &Ticket{name: name, c: c}
}

// release returns a slot and wakes eligible waiters in queue order.
func (c *Controller) release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.globalInflight--
	c.inflight[name]--
	if c.inflight[name] <= 0 {
		delete(c.inflight, name)
	}

	c.grantWaitersLocked()
}

// grantWaitersLocked walks the queue front to back granting every waiter
// that now fits. Walking past an ineligible head lets waiters for other
// plugin names proceed instead of blocking behind a per-name limit they do
// not share. Must be called with mu held.
func (c *Controller) grantWaitersLocked() {
	for e := c.waiters.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*waiter)
		if c.canAcquireLocked(w.name) {
			c.waiters.Remove(e)
			c.waitingByName[w.name]--
			if c.waitingByName[w.name] == 0 {
				delete(c.waitingByName, w.name)
			}
			w.ready <- c.grantLocked(w.name)
		}
		e = next
	}
}
