// ABOUTME: Tests for the admission controller
// ABOUTME: Covers limits, FIFO queueing, rejection, cancellation, and release safety

package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_AcquireWithinLimit(t *testing.T) {
	c := New(10, 2, nil, 8)

	t1, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)
	t2, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)

	assert.Equal(t, 2, c.InFlight("echo"))
	assert.Equal(t, 2, c.GlobalInFlight())

	t1.Release()
	t2.Release()

	assert.Equal(t, 0, c.InFlight("echo"))
	assert.Equal(t, 0, c.GlobalInFlight())
}

func TestController_NeverExceedsPerPluginLimit(t *testing.T) {
	const limit = 3
	c := New(100, limit, nil, 100)

	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < limit+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := c.Acquire(context.Background(), "busy")
			require.NoError(t, err)
			defer ticket.Release()

			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, 0, c.GlobalInFlight())
}

func TestController_NeverExceedsGlobalLimit(t *testing.T) {
	const global = 4
	c := New(global, 10, nil, 100)

	var running, peak atomic.Int32
	var wg sync.WaitGroup

	names := []string{"a", "b", "c", "d"}
	for i := 0; i < 16; i++ {
		name := names[i%len(names)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := c.Acquire(context.Background(), name)
			require.NoError(t, err)
			defer ticket.Release()

			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(global))
}

func TestController_QueuedAcquireRunsAfterRelease(t *testing.T) {
	c := New(10, 1, nil, 8)

	first, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)

	acquired := make(chan *Ticket, 1)
	go func() {
		ticket, err := c.Acquire(context.Background(), "echo")
		if err == nil {
			acquired <- ticket
		}
	}()

	// The second acquire must be queued, not granted
	select {
	case <-acquired:
		t.Fatal("second acquire granted while first still holds the slot")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case ticket := <-acquired:
		ticket.Release()
	case <-time.After(time.Second):
		t.Fatal("queued acquire was not granted after release")
	}
}

func TestController_RejectsWhenQueueFull(t *testing.T) {
	c := New(10, 1, nil, 1)

	held, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)
	defer held.Release()

	// Fill the single queue slot
	queued := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ticket, err := c.Acquire(ctx, "echo")
		if ticket != nil {
			ticket.Release()
		}
		queued <- err
	}()
	time.Sleep(20 * time.Millisecond)

	_, err = c.Acquire(context.Background(), "echo")
	assert.ErrorIs(t, err, ErrRejected)

	held.Release()
	<-queued
}

func TestController_RejectsImmediatelyWithoutQueue(t *testing.T) {
	c := New(10, 1, nil, 0)

	held, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)
	defer held.Release()

	_, err = c.Acquire(context.Background(), "echo")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestController_CancelledWaiterNeverGranted(t *testing.T) {
	c := New(10, 1, nil, 8)

	held, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Acquire(ctx, "echo")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The abandoned waiter must not consume the slot when it frees
	held.Release()
	assert.Equal(t, 0, c.InFlight("echo"))

	ticket, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)
	ticket.Release()
}

func TestController_FIFOOrderPerName(t *testing.T) {
	c := New(10, 1, nil, 8)

	held, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ticket, err := c.Acquire(context.Background(), "echo")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			ticket.Release()
		}(i)
		// Stagger so queue order is deterministic
		time.Sleep(20 * time.Millisecond)
	}

	held.Release()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestController_OtherPluginNotBlockedByQueue(t *testing.T) {
	c := New(10, 1, nil, 8)

	held, err := c.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer held.Release()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ticket, _ := c.Acquire(ctx, "busy")
		if ticket != nil {
			ticket.Release()
		}
	}()
	time.Sleep(20 * time.Millisecond)

	// A different plugin with free capacity must not wait behind the
	// queued "busy" waiter.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ticket, err := c.Acquire(ctx, "idle")
	require.NoError(t, err)
	ticket.Release()
}

func TestTicket_DoubleReleaseSafe(t *testing.T) {
	c := New(10, 2, nil, 8)

	ticket, err := c.Acquire(context.Background(), "echo")
	require.NoError(t, err)

	ticket.Release()
	ticket.Release()

	assert.Equal(t, 0, c.InFlight("echo"))
	assert.Equal(t, 0, c.GlobalInFlight())
}

func TestController_PerPluginOverride(t *testing.T) {
	c := New(10, 5, map[string]int{"dialogue": 1}, 0)

	assert.Equal(t, 1, c.Limit("dialogue"))
	assert.Equal(t, 5, c.Limit("echo"))

	held, err := c.Acquire(context.Background(), "dialogue")
	require.NoError(t, err)
	defer held.Release()

	_, err = c.Acquire(context.Background(), "dialogue")
	assert.ErrorIs(t, err, ErrRejected)
}
