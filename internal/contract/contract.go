// ABOUTME: Shared request/response contract between the dispatcher and plugin handlers.
// ABOUTME: Defines the inbound envelope, the handler invocation, and the uniform result.

package contract

import (
	"context"
	"encoding/json"
	"net/http"
)

// Intent names the operation a plugin should perform and carries its inputs.
type Intent struct {
	Operation string         `json:"operation"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

// Envelope is the inbound request payload naming a plugin and its intent.
// Transport metadata (user id, request id, signature headers) travels
// separately; the envelope itself is immutable once parsed.
type Envelope struct {
	PluginName string `json:"pluginName"`
	Intent     Intent `json:"intent"`
}

// Invocation is everything the dispatcher exposes to a handler.
type Invocation struct {
	Operation string
	Inputs    map[string]any
	UserID    string
	RequestID string
}

// Result is the uniform handler response. Handlers never fail across the
// dispatcher boundary; any internal failure is translated into a Result
// before returning.
type Result struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Partial    bool   `json:"partial,omitempty"`
}

// Handler is the single polymorphic capability every registered plugin
// implements. The core treats handlers as black boxes.
type Handler interface {
	Execute(ctx context.Context, inv *Invocation) *Result
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv *Invocation) *Result

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) *Result {
	return f(ctx, inv)
}

// OK builds a successful result.
func OK(message string, data any) *Result {
	return &Result{StatusCode: http.StatusOK, Message: message, Data: data}
}

// Invalid builds a validation-failure result (client's fault).
func Invalid(message string) *Result {
	return &Result{StatusCode: http.StatusBadRequest, Message: message}
}

// NotFound builds a not-found result (unknown plugin or unknown session).
func NotFound(message string) *Result {
	return &Result{StatusCode: http.StatusNotFound, Message: message}
}

// Upstream builds a result for an external-service failure. When the
// upstream reported a client-attributable status it is passed through,
// otherwise callers should use http.StatusBadGateway.
func Upstream(statusCode int, message string) *Result {
	if statusCode < 400 {
		statusCode = http.StatusBadGateway
	}
	return &Result{StatusCode: statusCode, Message: message}
}

// Internal builds a generic server-error result for unanticipated failures.
func Internal(message string) *Result {
	return &Result{StatusCode: http.StatusInternalServerError, Message: message}
}

// Clone returns a deep-enough copy of the result for safe re-serving from
// the idempotency cache. Data is copied via JSON round-trip when present so
// a caller mutating a served result cannot corrupt the cached one.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{StatusCode: r.StatusCode, Message: r.Message, Partial: r.Partial}
	if r.Data != nil {
		raw, err := json.Marshal(r.Data)
		if err != nil {
			out.Data = r.Data
			return out
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			out.Data = r.Data
			return out
		}
		out.Data = data
	}
	return out
}
