// ABOUTME: HTTP client for the remote conversation-session store
// ABOUTME: Implements create/fetch/update/delete with bearer-token auth

package sessionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/plugin-gateway/internal/session"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("sessionstore: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// HTTPStatusCode returns the upstream status for pass-through mapping.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// TokenSource supplies bearer tokens for authenticating to the store.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the remote session store. The store owns all session
// state; session.Metadata.Turn travels on the wire as a decimal string.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a session store client.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sessionstore: base URL must not be empty")
	}
	if tokens == nil {
		return nil, errors.New("sessionstore: token source must not be nil")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Wire shapes. Metadata values are strings on the wire.
type metadataPayload struct {
	Language string `json:"language"`
	Turn     string `json:"turn"`
}

type sessionPayload struct {
	ID       string          `json:"id"`
	Metadata metadataPayload `json:"metadata"`
}

func toWire(meta session.Metadata) metadataPayload {
	return metadataPayload{
		Language: meta.Language,
		Turn:     strconv.Itoa(meta.Turn),
	}
}

func fromWire(p metadataPayload) (session.Metadata, error) {
	turn := 0
	if p.Turn != "" {
		parsed, err := strconv.Atoi(p.Turn)
		if err != nil {
			return session.Metadata{}, fmt.Errorf("sessionstore: malformed turn %q: %w", p.Turn, err)
		}
		turn = parsed
	}
	return session.Metadata{Language: p.Language, Turn: turn}, nil
}

// Create registers a new session and returns its store-assigned id.
func (c *Client) Create(ctx context.Context, meta session.Metadata) (string, error) {
	body, err := json.Marshal(sessionPayload{Metadata: toWire(meta)})
	if err != nil {
		return "", fmt.Errorf("sessionstore: marshal request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/sessions", body)
	if err != nil {
		return "", err
	}

	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("sessionstore: decode response: %w", err)
	}
	if payload.ID == "" {
		return "", errors.New("sessionstore: create returned no session id")
	}
	return payload.ID, nil
}

// Fetch retrieves a session's current metadata.
func (c *Client) Fetch(ctx context.Context, id string) (session.Metadata, error) {
	raw, err := c.do(ctx, http.MethodGet, c.sessionURL(id), nil)
	if err != nil {
		return session.Metadata{}, err
	}

	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return session.Metadata{}, fmt.Errorf("sessionstore: decode response: %w", err)
	}
	return fromWire(payload.Metadata)
}

// Update overwrites a session's metadata.
func (c *Client) Update(ctx context.Context, id string, meta session.Metadata) error {
	body, err := json.Marshal(sessionPayload{Metadata: toWire(meta)})
	if err != nil {
		return fmt.Errorf("sessionstore: marshal request: %w", err)
	}

	_, err = c.do(ctx, http.MethodPatch, c.sessionURL(id), body)
	return err
}

// Delete removes a session. Unknown ids map to session.ErrSessionNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.sessionURL(id), nil)
	return err
}

func (c *Client) sessionURL(id string) string {
	return c.baseURL + "/v1/sessions/" + id
}

// do issues one authenticated request and returns the response body.
// A 404 maps to session.ErrSessionNotFound; other non-2xx statuses become
// an HTTPStatusError.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: resolving token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, session.ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return raw, nil
}
