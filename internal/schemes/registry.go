package schemes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSchemeExists is returned when attempting to register a scheme name more than once.
var ErrSchemeExists = errors.New("scheme registry: scheme already registered")

// Registry holds the configured schemes in registration order and implements
// Provider. Registration happens at start-up; lookups are concurrent-safe.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	schemes    map[string]Scheme
	connectors map[string]Connector
}

// NewRegistry constructs an empty scheme registry.
func NewRegistry() *Registry {
	return &Registry{
		schemes:    make(map[string]Scheme),
		connectors: make(map[string]Connector),
	}
}

// Register adds a scheme, optionally with a redirect-flow connector.
// Declared schemes (challenge handled elsewhere, e.g. by a fronting proxy)
// pass a nil connector.
func (r *Registry) Register(scheme Scheme, connector Connector) error {
	name := strings.TrimSpace(scheme.Name)
	if name == "" {
		return errors.New("scheme registry: scheme name is required")
	}
	if strings.EqualFold(name, LocalScheme) {
		return fmt.Errorf("scheme registry: %q is reserved", LocalScheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemes[name]; exists {
		return fmt.Errorf("%w: %s", ErrSchemeExists, name)
	}

	scheme.Name = name
	scheme.DisplayName = strings.TrimSpace(scheme.DisplayName)

	r.order = append(r.order, name)
	r.schemes[name] = scheme
	if connector != nil {
		r.connectors[name] = connector
	}
	return nil
}

// AllSchemes returns every registered scheme in registration order.
func (r *Registry) AllSchemes(ctx context.Context) ([]Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scheme, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemes[name])
	}
	return out, nil
}

// SupportsRemoteSignOut reports whether the named scheme can propagate
// sign-out upstream. Unknown schemes report false, never an error.
func (r *Registry) SupportsRemoteSignOut(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scheme, ok := r.schemes[name]
	if !ok {
		return false, nil
	}
	return scheme.SupportsRemoteSignOut, nil
}

// Lookup returns the scheme by name.
func (r *Registry) Lookup(name string) (Scheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scheme, ok := r.schemes[name]
	return scheme, ok
}

// Connector returns the redirect-flow connector for the named scheme, if any.
func (r *Registry) Connector(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connector, ok := r.connectors[name]
	return connector, ok
}
