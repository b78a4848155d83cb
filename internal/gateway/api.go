// ABOUTME: HTTP surface of the gateway: invoke endpoint and health check
// ABOUTME: Parses transport headers and the envelope, then hands off to dispatch

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/loomworks/plugin-gateway/internal/contract"
	"github.com/loomworks/plugin-gateway/internal/dispatch"
)

// Transport headers carrying authentication and correlation metadata.
const (
	headerUserID    = "X-User-Id"
	headerRequestID = "X-Request-Id"
	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
)

const maxBodyBytes = 1 << 20

// rawEnvelope defers intent decoding so the exact bytes survive for
// fingerprint-based deduplication keys.
type rawEnvelope struct {
	PluginName string          `json:"pluginName"`
	Intent     json.RawMessage `json:"intent"`
}

// handleInvoke serves POST /api/invoke. The response body is always a
// uniform result and the HTTP status mirrors its status_code.
func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResult(w, &contract.Result{StatusCode: http.StatusMethodNotAllowed, Message: "POST required"})
		return
	}
	defer g.metrics.InvokeStarted()()

	userID := r.Header.Get(headerUserID)
	timestamp := r.Header.Get(headerTimestamp)
	signature := r.Header.Get(headerSignature)

	// Verify before rate limiting: the limiter is keyed on the user id
	// header, and an unauthenticated caller must not be able to drain
	// another user's bucket by spoofing it.
	if err := g.gate.Verify(userID, timestamp, signature); err != nil {
		g.logger.Warn("signature rejected", "user_id", userID, "error", err)
		g.metrics.AuthRejected()
		writeResult(w, &contract.Result{StatusCode: http.StatusUnauthorized, Message: fmt.Sprintf("unauthorized: %v", err)})
		return
	}

	if !g.limiter.allow(userID, time.Now()) {
		g.metrics.RateLimited()
		writeResult(w, &contract.Result{StatusCode: http.StatusTooManyRequests, Message: "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeResult(w, contract.Invalid("reading request body failed"))
		return
	}
	if len(body) > maxBodyBytes {
		writeResult(w, &contract.Result{StatusCode: http.StatusRequestEntityTooLarge, Message: "request body too large"})
		return
	}

	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		writeResult(w, contract.Invalid("malformed request envelope"))
		return
	}

	envelope := contract.Envelope{PluginName: raw.PluginName}
	if len(raw.Intent) > 0 {
		if err := json.Unmarshal(raw.Intent, &envelope.Intent); err != nil {
			writeResult(w, contract.Invalid("malformed intent"))
			return
		}
	}

	result := g.dispatcher.Dispatch(r.Context(), &dispatch.Request{
		Envelope:  envelope,
		RawIntent: raw.Intent,
		UserID:    userID,
		RequestID: r.Header.Get(headerRequestID),
		Timestamp: timestamp,
		Signature: signature,
	})
	writeResult(w, result)
}

// handleHealth serves GET /healthz.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"plugins": g.registry.Names(),
	})
}

// writeResult serializes a uniform result, mirroring its status code onto
// the HTTP layer.
func writeResult(w http.ResponseWriter, result *contract.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_ = json.NewEncoder(w).Encode(result)
}

// CheckHealth probes a running gateway's health endpoint. Used by the CLI
// health subcommand.
func CheckHealth(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("gateway reported status " + resp.Status)
	}
	return nil
}
