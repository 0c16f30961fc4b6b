package transport

import (
	"fmt"
	"sort"
	"sync"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// Factory builds a transport from loosely typed options, as read from a
// configuration file.
type Factory func(options map[string]any) (Transport, error)

// Registry maps transport names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice fails.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("transport %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Build creates a transport with the factory registered under name.
func (r *Registry) Build(name string, options map[string]any) (Transport, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, sdkerrors.ValidationError(fmt.Sprintf("unknown transport %q", name)).
			WithMetadata("known", r.Names())
	}
	return factory(options)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func codeOf(err error) string {
	if te, ok := sdkerrors.AsTypedError(err); ok {
		return te.Code()
	}
	return sdkerrors.CodeUnexpected
}
