// Package contract defines the shared shapes that flow between the HTTP
// surface, the dispatcher, and plugin handlers: the inbound Envelope, the
// per-call Invocation, and the uniform Result every handler returns.
//
// Handlers implement the single-method Handler interface and must translate
// their internal failures into a Result before returning; only truly
// unexpected failures (panics) are recovered by the dispatcher itself.
package contract
