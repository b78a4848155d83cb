// ABOUTME: Dispatcher composing gate, admission, dedup, and handler invocation
// ABOUTME: Guarantees ticket release and a cache entry on every exit path

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/loomworks/plugin-gateway/internal/admission"
	"github.com/loomworks/plugin-gateway/internal/contract"
	"github.com/loomworks/plugin-gateway/internal/idempotency"
	"github.com/loomworks/plugin-gateway/internal/registry"
)

// statusClientClosed mirrors nginx's 499 for callers that disconnect while
// their request is queued or attached to an in-flight execution.
const statusClientClosed = 499

// Verifier is what the dispatcher needs from the signature gate.
type Verifier interface {
	Verify(userID, timestamp, signature string) error
}

// Observer receives dispatch outcomes, e.g. for metrics. All methods must
// be cheap and non-blocking.
type Observer interface {
	RequestCompleted(plugin string, statusCode int, shared bool)
	AdmissionRejected(plugin string)
	AuthRejected()
}

type nopObserver struct{}

func (nopObserver) RequestCompleted(string, int, bool) {}
func (nopObserver) AdmissionRejected(string)           {}
func (nopObserver) AuthRejected()                      {}

// Request is one verified-pending inbound call: the parsed envelope plus
// the transport metadata needed for authentication and deduplication.
type Request struct {
	Envelope  contract.Envelope
	RawIntent []byte // canonical intent bytes, used for fingerprint keys

	UserID    string
	RequestID string
	Timestamp string
	Signature string
}

// Dispatcher runs the orchestration pipeline for every inbound request:
// signature gate, admission ticket, idempotent-retry dedup, handler lookup
// and invocation, cache write, ticket release. Handlers never fail across
// this boundary; panics are recovered into a generic server-error result.
type Dispatcher struct {
	gate           Verifier
	admission      *admission.Controller
	cache          *idempotency.Cache
	registry       *registry.Registry
	acquireTimeout time.Duration
	observer       Observer
	logger         *slog.Logger
}

// New creates a Dispatcher over the given collaborators.
func New(gate Verifier, ctrl *admission.Controller, cache *idempotency.Cache, reg *registry.Registry, acquireTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gate:           gate,
		admission:      ctrl,
		cache:          cache,
		registry:       reg,
		acquireTimeout: acquireTimeout,
		observer:       nopObserver{},
		logger:         logger.With("component", "dispatch"),
	}
}

// SetObserver installs an outcome observer. Must be called before serving.
func (d *Dispatcher) SetObserver(o Observer) {
	if o != nil {
		d.observer = o
	}
}

// Dispatch processes one inbound request and always returns a uniform
// result. Authentication failures return before any admission accounting;
// everything past admission releases its ticket on every path.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *contract.Result {
	plugin := req.Envelope.PluginName

	if err := d.gate.Verify(req.UserID, req.Timestamp, req.Signature); err != nil {
		d.logger.Warn("signature rejected", "user_id", req.UserID, "error", err)
		d.observer.AuthRejected()
		return &contract.Result{StatusCode: http.StatusUnauthorized, Message: fmt.Sprintf("unauthorized: %v", err)}
	}

	if plugin == "" {
		return contract.Invalid("pluginName is required")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer cancel()

	ticket, err := d.admission.Acquire(acquireCtx, plugin)
	if err != nil {
		if errors.Is(err, admission.ErrRejected) || errors.Is(err, context.DeadlineExceeded) {
			d.logger.Warn("admission rejected", "plugin", plugin)
			d.observer.AdmissionRejected(plugin)
			return &contract.Result{StatusCode: http.StatusTooManyRequests, Message: "capacity exhausted, retry with backoff"}
		}
		return &contract.Result{StatusCode: statusClientClosed, Message: "request cancelled while awaiting admission"}
	}
	defer ticket.Release()

	key := idempotency.KeyFor(req.UserID, plugin, req.RequestID, req.RawIntent)

	result, shared, err := d.cache.Do(ctx, key, func() *contract.Result {
		return d.execute(ctx, req)
	})
	if err != nil {
		// Only possible while attached to another call's execution.
		return &contract.Result{StatusCode: statusClientClosed, Message: "request cancelled awaiting duplicate result"}
	}

	if shared {
		d.logger.Debug("served deduplicated result",
			"plugin", plugin,
			"user_id", req.UserID,
			"request_id", req.RequestID)
	}
	d.observer.RequestCompleted(plugin, result.StatusCode, shared)
	return result
}

// execute looks up and runs the handler, translating lookup misses and
// recovered panics into uniform results. The admission ticket is already
// held; the deferred release in Dispatch fires immediately after the cache
// records whatever this returns.
func (d *Dispatcher) execute(ctx context.Context, req *Request) (result *contract.Result) {
	plugin := req.Envelope.PluginName

	handler, ok := d.registry.Get(plugin)
	if !ok {
		return contract.NotFound(fmt.Sprintf("unknown plugin: %s", plugin))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"plugin", plugin,
				"operation", req.Envelope.Intent.Operation,
				"panic", r,
				"stack", string(debug.Stack()))
			result = contract.Internal("internal handler failure")
		}
	}()

	inv := &contract.Invocation{
		Operation: req.Envelope.Intent.Operation,
		Inputs:    req.Envelope.Intent.Inputs,
		UserID:    req.UserID,
		RequestID: req.RequestID,
	}

	result = handler.Execute(ctx, inv)
	if result == nil {
		d.logger.Error("handler returned nil result", "plugin", plugin)
		result = contract.Internal("handler returned no result")
	}
	return result
}
