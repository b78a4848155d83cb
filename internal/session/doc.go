// Package session manages multi-turn conversation sessions held in a
// remote store.
//
// # State machine
//
// A session moves ABSENT -> CREATED -> ACTIVE(turn=N) with terminal state
// DELETED. Turn starts at 0, becomes 1 after the first successful
// exchange, and increases by exactly one per later successful exchange.
//
// # Compensating cleanup
//
// Starting a conversation creates the remote session before the first
// exchange runs. If that exchange fails, the just-created session is
// deleted before the error is surfaced, so a session never outlives a
// failed first exchange. Established sessions are never deleted on a
// failed continuation.
//
// # Turn monotonicity
//
// The turn update is a read-modify-write against the remote store, which
// offers no compare-and-swap. Continuations of the same session id are
// therefore serialized through a per-session lock held across the whole
// fetch-exchange-update sequence, making the counter strictly monotonic
// under concurrent continues of one session. Different sessions proceed
// in parallel.
package session
