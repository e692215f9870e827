// Package providers defines the boundary between the control core and
// the concrete cloud/security/network adapters. The core never performs
// remote calls itself; it hands a fully-resolved physical reference to
// an adapter registered here.
package providers

import (
	"context"

	"github.com/opsgate/opsgate/types"
)

// Adapter performs the actual remote operation against one provider
// backend. Implementations own their retries, credentials and
// transport; the core treats a returned error as terminal for the
// request.
type Adapter interface {
	// Dispatch executes verb against the resolved target and returns a
	// result document. Allow-listed fields of the result end up in the
	// audit trail; everything else stays with the caller.
	Dispatch(ctx context.Context, verb string, target types.ResolvedResource, params map[string]any) (map[string]any, error)

	// Name returns the provider name as used in the service catalog.
	Name() string
}

// Factory creates an adapter instance.
type Factory func() (Adapter, error)

// Registry maps provider names to adapters. It is populated once at
// composition time and read-only afterwards.
type Registry struct {
	factories map[string]Factory
	adapters  map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// Register adds a provider factory under name.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Get returns the adapter for a provider, instantiating it on first
// use. An unregistered provider is a ProviderUnavailableError.
func (r *Registry) Get(name string) (Adapter, error) {
	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, &types.ProviderUnavailableError{Provider: name}
	}

	adapter, err := factory()
	if err != nil {
		return nil, err
	}
	r.adapters[name] = adapter
	return adapter, nil
}

// List returns the registered provider names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
