// Package auth provides request authentication for plugin-gateway.
//
// # Signature Gate
//
// Every inbound request carries four headers: x-user-id, x-request-id,
// x-signature, and x-timestamp. The Gate verifies a hex-encoded HMAC-SHA256
// over the canonical (user id, timestamp) pair against the shared secret:
//
//	gate := auth.NewGate(secret, 300*time.Second)
//	err := gate.Verify(userID, timestamp, signature)
//
// Requests are rejected when the signature mismatches, when required headers
// are missing, or when the timestamp falls outside the freshness window
// (replay protection). Comparison is constant-time. A rejected request never
// reaches admission control or any handler.
//
// # Service Tokens
//
// Outbound calls to the remote session store authenticate with short-lived
// HS256 bearer tokens minted from a shared secret:
//
//	src, err := auth.NewServiceTokenSource(secret, "plugin-gateway", 5*time.Minute)
//	token, err := src.Token()
//
// Tokens are cached and renewed shortly before expiry.
package auth
