// ABOUTME: Tests for the session store HTTP client
// ABOUTME: Uses httptest servers to verify wire format and error mapping

package sessionstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/plugin-gateway/internal/session"
)

type staticTokens struct{ token string }

func (s staticTokens) Token() (string, error) { return s.token, nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, staticTokens{token: "svc-token"})
	require.NoError(t, err)
	return client, server
}

func TestClient_Create(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotBody sessionPayload

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sessionPayload{ID: "sess-42", Metadata: gotBody.Metadata})
	}))

	id, err := client.Create(context.Background(), session.Metadata{Language: "en", Turn: 0})
	require.NoError(t, err)

	assert.Equal(t, "sess-42", id)
	assert.Equal(t, "Bearer svc-token", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/sessions", gotPath)
	// Turn is a decimal string on the wire
	assert.Equal(t, metadataPayload{Language: "en", Turn: "0"}, gotBody.Metadata)
}

func TestClient_Create_NoID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"metadata":{"language":"en","turn":"0"}}`))
	}))

	_, err := client.Create(context.Background(), session.Metadata{Language: "en"})
	assert.ErrorContains(t, err, "no session id")
}

func TestClient_Fetch(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/sessions/sess-42", r.URL.Path)
		w.Write([]byte(`{"id":"sess-42","metadata":{"language":"de","turn":"7"}}`))
	}))

	meta, err := client.Fetch(context.Background(), "sess-42")
	require.NoError(t, err)
	assert.Equal(t, session.Metadata{Language: "de", Turn: 7}, meta)
}

func TestClient_Fetch_MalformedTurn(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sess-42","metadata":{"language":"de","turn":"seven"}}`))
	}))

	_, err := client.Fetch(context.Background(), "sess-42")
	assert.ErrorContains(t, err, "malformed turn")
}

func TestClient_NotFoundMapsToSentinel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.ErrorIs(t, client.Update(context.Background(), "missing", session.Metadata{}), session.ErrSessionNotFound)
	assert.ErrorIs(t, client.Delete(context.Background(), "missing"), session.ErrSessionNotFound)
}

func TestClient_Update(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody sessionPayload

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.Update(context.Background(), "sess-42", session.Metadata{Language: "en", Turn: 3})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/v1/sessions/sess-42", gotPath)
	assert.Equal(t, "3", gotBody.Metadata.Turn)
}

func TestClient_Delete(t *testing.T) {
	var gotMethod string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.Delete(context.Background(), "sess-42"))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestClient_UpstreamFailure(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.Fetch(context.Background(), "sess-42")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.URL, server.URL)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", staticTokens{})
	assert.Error(t, err)

	_, err = NewClient("http://store.local", nil)
	assert.Error(t, err)
}
