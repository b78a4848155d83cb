// Package dispatch composes the orchestration pipeline for inbound plugin
// requests: signature gate, admission control, idempotent-retry
// deduplication, name-based handler lookup, and invocation.
//
// # Pipeline
//
//  1. Verify the request signature. Failures never reach admission.
//  2. Acquire an admission ticket for the envelope's declared plugin name,
//     even when no such plugin is registered, so counters stay consistent.
//  3. Check the idempotency cache; a repeated key within its TTL serves the
//     recorded result, and a duplicate of an in-flight execution attaches
//     to its eventual result.
//  4. Invoke the registered handler. Unknown names yield a not-found
//     result and the ticket is released right away.
//  5. Record the result in the cache, then release the ticket.
//
// Steps 4-5 run on every path: a panicking handler is recovered into a
// generic server-error result that is still cached, so retries within the
// TTL window get a stable answer instead of repeated crashes.
package dispatch
