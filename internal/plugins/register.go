// ABOUTME: Wires the built-in plugins into a registry
// ABOUTME: Single registration point so startup and tests build the same set

package plugins

import (
	"fmt"
	"log/slog"

	"github.com/loomworks/plugin-gateway/internal/registry"
	"github.com/loomworks/plugin-gateway/internal/session"
)

// Deps are the collaborators the built-in plugins need.
type Deps struct {
	Sessions *session.Manager
	Chat     StructuredChatter
	Logger   *slog.Logger
}

// RegisterBuiltins registers echo, dialogue, and summary. The registry is
// left unsealed so callers can add more handlers before serving.
func RegisterBuiltins(reg *registry.Registry, deps Deps) error {
	entries := map[string]func() error{
		EchoName: func() error {
			return reg.Register(EchoName, Echo())
		},
		DialogueName: func() error {
			return reg.Register(DialogueName, NewDialogue(deps.Sessions, deps.Logger))
		},
		SummaryName: func() error {
			return reg.Register(SummaryName, NewSummary(deps.Chat, deps.Logger))
		},
	}

	for name, register := range entries {
		if err := register(); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return nil
}
