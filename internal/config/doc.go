// Package config handles configuration loading for plugin-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  hmac_secret: "${PLUGIN_GATEWAY_HMAC_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  freshness_window: "300s"
//	idempotency:
//	  ttl: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Request signing:
//
//	auth:
//	  hmac_secret: "${PLUGIN_GATEWAY_HMAC_SECRET}"  # Required
//	  freshness_window: "300s"
//
// Concurrency limits ("default" applies to plugins without their own entry):
//
//	concurrency:
//	  global: 64
//	  per_plugin:
//	    default: 8
//	    dialogue: 4
//	  queue_size: 128
//	  acquire_timeout: "5s"
//
// Retry deduplication:
//
//	idempotency:
//	  ttl: "60s"
//	  max_entries: 4096
//
// Upstream collaborators:
//
//	upstream:
//	  session_store:
//	    base_url: "https://sessions.internal"
//	    token_secret: "${SESSION_STORE_SECRET}"
//	  dialogue:
//	    base_url: "https://api.openai.com/v1"
//	    api_key: "${DIALOGUE_API_KEY}"
//	    model: "gpt-4o-mini"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Required secrets and upstream base URLs are present
//   - Concurrency limits are at least 1
//   - Duration format validity
package config
