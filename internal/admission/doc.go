// Package admission bounds how many plugin executions run concurrently.
//
// # Limits
//
// Two counters gate every execution: a global in-flight count and a
// per-plugin-name in-flight count. A slot is granted only when both are
// under their configured limits.
//
// # Queueing policy
//
// When capacity is unavailable, acquirers wait in a bounded FIFO queue.
// Within one plugin name grants are strictly first-come-first-served; on
// each release the oldest eligible waiter across all names is granted, so a
// plugin at its own limit never blocks waiters for other plugins. A full
// queue rejects immediately with ErrRejected, the system's only
// backpressure signal.
//
// # Tickets
//
// Acquire returns a Ticket owned by the in-flight call. Release is guarded
// by sync.Once so calling it on every exit path (including panics recovered
// by the dispatcher) can never double-free a slot. A waiter whose context
// ends while queued is removed from the queue and never granted later; if a
// grant races the cancellation, the slot is immediately handed back.
package admission
