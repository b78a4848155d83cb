// Package idempotency makes retried requests safe by mapping a
// deterministic dedup key to the result of its first execution.
//
// Within the TTL window a repeated key yields the cached result without
// re-executing the handler. A duplicate arriving while the first execution
// is still in flight attaches to that execution's eventual result rather
// than invoking the handler again, so handlers with external writes run
// their side effects at most once per key. After expiry the key is eligible
// for re-execution; expired records are evicted lazily at lookup time and
// by a periodic background sweep.
package idempotency
