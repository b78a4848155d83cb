// ABOUTME: Deterministic idempotency key derivation for retried requests
// ABOUTME: Prefers the client request id, falling back to a BLAKE2b input fingerprint

package idempotency

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// KeyFor derives the dedup key for a request. When the client supplied a
// request id the key is (userID, pluginName, requestID); otherwise the
// intent payload is fingerprinted so byte-identical retries still collapse
// onto one execution.
func KeyFor(userID, pluginName, requestID string, intent []byte) string {
	if requestID != "" {
		return userID + ":" + pluginName + ":" + requestID
	}

	h, _ := blake2b.New256(nil)
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(pluginName))
	h.Write([]byte{0})
	h.Write(intent)
	sum := h.Sum(nil)
	return userID + ":" + pluginName + ":" + hex.EncodeToString(sum[:16])
}
