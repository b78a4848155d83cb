// ABOUTME: Tests for the dialogue chat client
// ABOUTME: Uses httptest servers to verify request shape and error handling

package dialogue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-key", "test-model")
	require.NoError(t, err)
	return client
}

func TestClient_Chat(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"}}]}`))
	}))

	answer, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", answer)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Nil(t, gotBody.ResponseFormat)
}

func TestClient_ChatStructured(t *testing.T) {
	var gotBody chatRequest

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	}))

	schema := json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}}}`)
	content, err := client.ChatStructured(context.Background(), []Message{{Role: "user", Content: "summarize"}}, "summary", schema)
	require.NoError(t, err)

	assert.JSONEq(t, `{"title":"x"}`, content)
	require.NotNil(t, gotBody.ResponseFormat)
	assert.Equal(t, "json_schema", gotBody.ResponseFormat.Type)
	assert.Equal(t, "summary", gotBody.ResponseFormat.JSONSchema.Name)
	assert.True(t, gotBody.ResponseFormat.JSONSchema.Strict)
}

func TestClient_Chat_EmptyMessages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.Chat(context.Background(), nil)
	assert.ErrorContains(t, err, "messages must not be empty")
}

func TestClient_Chat_NoChoices(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestClient_Chat_UpstreamFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}})

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "rate limited", statusErr.Body)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "key", "model")
	assert.Error(t, err)
}
