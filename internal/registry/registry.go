// ABOUTME: Process-wide mapping from plugin name to handler implementation
// ABOUTME: Populated once at startup, sealed before serving, read-many thereafter

package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/loomworks/plugin-gateway/internal/contract"
)

// Registry errors
var (
	ErrDuplicateName = errors.New("handler name already registered")
	ErrSealed        = errors.New("registry is sealed")
	ErrEmptyName     = errors.New("handler name must not be empty")
)

// Registry maps plugin names to handlers. It is built explicitly during
// startup and passed to the dispatcher rather than accessed as ambient
// global state. After Seal, registration fails and the map never changes
// again; lookups take only the read lock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]contract.Handler
	sealed   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]contract.Handler)}
}

// Register adds a handler under name. It fails if the name is empty,
// already taken, or the registry has been sealed.
func (r *Registry) Register(name string, handler contract.Handler) error {
	if name == "" {
		return ErrEmptyName
	}
	if handler == nil {
		return fmt.Errorf("handler for %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	r.handlers[name] = handler
	return nil
}

// Seal forbids further registration. Called once startup completes.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (contract.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
