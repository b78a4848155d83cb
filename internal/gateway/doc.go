// Package gateway assembles and serves the plugin gateway.
//
// The HTTP surface is deliberately small: POST /api/invoke carries a
// request envelope plus signature headers, /healthz reports liveness,
// and an optional Prometheus endpoint exposes dispatch outcome counters.
// Everything interesting happens in the dispatch pipeline behind the
// invoke handler; this package parses transport, checks the signature
// gate ahead of the per-user rate limiter (the limiter is keyed on a
// caller-supplied header, so only authenticated requests may consume
// tokens), and mirrors result status codes onto HTTP.
package gateway
