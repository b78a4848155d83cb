// ABOUTME: Echo plugin that reflects invocation inputs back to the caller
// ABOUTME: Used for connectivity checks and as the simplest handler example

package plugins

import (
	"context"

	"github.com/loomworks/plugin-gateway/internal/contract"
)

// EchoName is the registry name of the echo plugin.
const EchoName = "echo"

// Echo returns a handler that answers every operation with the inputs it
// received.
func Echo() contract.Handler {
	return contract.HandlerFunc(func(ctx context.Context, inv *contract.Invocation) *contract.Result {
		return contract.OK("ok", inv.Inputs)
	})
}
