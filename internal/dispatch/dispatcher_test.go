// ABOUTME: Tests for the dispatcher pipeline
// ABOUTME: Covers auth short-circuit, admission accounting, dedup, and panic recovery

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/plugin-gateway/internal/admission"
	"github.com/loomworks/plugin-gateway/internal/contract"
	"github.com/loomworks/plugin-gateway/internal/idempotency"
	"github.com/loomworks/plugin-gateway/internal/registry"
)

type stubGate struct {
	err error
}

func (g stubGate) Verify(userID, timestamp, signature string) error { return g.err }

type fixture struct {
	dispatcher *Dispatcher
	admission  *admission.Controller
	cache      *idempotency.Cache
	registry   *registry.Registry
}

func newFixture(t *testing.T, gateErr error, defaultLimit, queueSize int, ttl time.Duration) *fixture {
	t.Helper()
	ctrl := admission.New(16, defaultLimit, nil, queueSize)
	cache := idempotency.New(ttl, 100)
	t.Cleanup(cache.Close)
	reg := registry.New()
	d := New(stubGate{err: gateErr}, ctrl, cache, reg, 200*time.Millisecond, nil)
	return &fixture{dispatcher: d, admission: ctrl, cache: cache, registry: reg}
}

func request(plugin, operation, userID, requestID string) *Request {
	return &Request{
		Envelope: contract.Envelope{
			PluginName: plugin,
			Intent:     contract.Intent{Operation: operation, Inputs: map[string]any{"a": float64(1)}},
		},
		RawIntent: []byte(`{"operation":"` + operation + `","inputs":{"a":1}}`),
		UserID:    userID,
		RequestID: requestID,
		Timestamp: "1700000000",
		Signature: "sig",
	}
}

func TestDispatch_AuthFailureSkipsAdmission(t *testing.T) {
	f := newFixture(t, errors.New("signature mismatch"), 4, 8, time.Minute)

	var invoked atomic.Int32
	require.NoError(t, f.registry.Register("echo", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			invoked.Add(1)
			return contract.OK("ok", nil)
		})))

	result := f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))

	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.Equal(t, int32(0), invoked.Load())
	assert.Equal(t, 0, f.admission.GlobalInFlight())
	assert.Equal(t, 0, f.cache.Len(), "no cache entry for unauthenticated requests")
}

func TestDispatch_UnknownPluginReleasesTicket(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	result := f.dispatcher.Dispatch(context.Background(), request("nope", "x", "u1", "r1"))

	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, 0, f.admission.InFlight("nope"))
	assert.Equal(t, 0, f.admission.GlobalInFlight())
}

func TestDispatch_DuplicateRequestRunsHandlerOnce(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	var invoked atomic.Int32
	require.NoError(t, f.registry.Register("echo", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			invoked.Add(1)
			return contract.OK("ok", inv.Inputs)
		})))

	first := f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))
	second := f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))

	assert.Equal(t, int32(1), invoked.Load())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "duplicate must serve a byte-identical response")
}

func TestDispatch_ExpiredKeyExecutesAgain(t *testing.T) {
	f := newFixture(t, nil, 4, 8, 20*time.Millisecond)

	var invoked atomic.Int32
	require.NoError(t, f.registry.Register("echo", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			invoked.Add(1)
			return contract.OK("ok", nil)
		})))

	f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))
	time.Sleep(40 * time.Millisecond)
	f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))

	assert.Equal(t, int32(2), invoked.Load())
}

func TestDispatch_DistinctRequestIDsExecuteSeparately(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	var invoked atomic.Int32
	require.NoError(t, f.registry.Register("echo", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			invoked.Add(1)
			return contract.OK("ok", nil)
		})))

	f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))
	f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r2"))

	assert.Equal(t, int32(2), invoked.Load())
}

func TestDispatch_RejectsWhenSaturated(t *testing.T) {
	f := newFixture(t, nil, 1, 0, time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, f.registry.Register("slow", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			close(started)
			<-release
			return contract.OK("ok", nil)
		})))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result := f.dispatcher.Dispatch(context.Background(), request("slow", "x", "u1", "r1"))
		assert.Equal(t, http.StatusOK, result.StatusCode)
	}()
	<-started

	// Distinct key, same plugin: must hit the admission limit, not the cache
	result := f.dispatcher.Dispatch(context.Background(), request("slow", "x", "u2", "r2"))
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)

	close(release)
	wg.Wait()
	assert.Equal(t, 0, f.admission.GlobalInFlight())
}

func TestDispatch_PanickingHandlerCachedAsError(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	var invoked atomic.Int32
	require.NoError(t, f.registry.Register("boom", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			invoked.Add(1)
			panic("kaboom")
		})))

	first := f.dispatcher.Dispatch(context.Background(), request("boom", "x", "u1", "r1"))
	assert.Equal(t, http.StatusInternalServerError, first.StatusCode)
	assert.Equal(t, 0, f.admission.GlobalInFlight(), "ticket released despite panic")

	// Retry within the TTL serves the cached error without re-panicking
	second := f.dispatcher.Dispatch(context.Background(), request("boom", "x", "u1", "r1"))
	assert.Equal(t, http.StatusInternalServerError, second.StatusCode)
	assert.Equal(t, int32(1), invoked.Load())
}

func TestDispatch_NilHandlerResultBecomesInternal(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	require.NoError(t, f.registry.Register("nil", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			return nil
		})))

	result := f.dispatcher.Dispatch(context.Background(), request("nil", "x", "u1", "r1"))
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
}

func TestDispatch_EmptyPluginNameInvalid(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)

	result := f.dispatcher.Dispatch(context.Background(), request("", "x", "u1", "r1"))
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, 0, f.admission.GlobalInFlight())
}

type spyObserver struct {
	mu        sync.Mutex
	completed int
	rejected  int
	auth      int
}

func (s *spyObserver) RequestCompleted(string, int, bool) {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *spyObserver) AdmissionRejected(string) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

func (s *spyObserver) AuthRejected() {
	s.mu.Lock()
	s.auth++
	s.mu.Unlock()
}

func TestDispatch_ObserverSeesOutcomes(t *testing.T) {
	f := newFixture(t, nil, 4, 8, time.Minute)
	spy := &spyObserver{}
	f.dispatcher.SetObserver(spy)

	require.NoError(t, f.registry.Register("echo", contract.HandlerFunc(
		func(ctx context.Context, inv *contract.Invocation) *contract.Result {
			return contract.OK("ok", nil)
		})))

	f.dispatcher.Dispatch(context.Background(), request("echo", "x", "u1", "r1"))

	spy.mu.Lock()
	defer spy.mu.Unlock()
	assert.Equal(t, 1, spy.completed)
}
