package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownModule is returned when dispatch names a module that was
	// never registered.
	ErrUnknownModule = errors.New("bridge: unknown module")
	// ErrUnknownOp is returned when a module does not expose the named
	// operation.
	ErrUnknownOp = errors.New("bridge: unknown operation")
)

// Module is the capability contract a host dispatcher binds to: a fixed
// name, a constants map exported at registration, and a set of named
// operations invokable with JSON-compatible arguments.
type Module interface {
	Name() string
	Constants() map[string]any
	Invoke(ctx context.Context, op string, args map[string]any) (any, error)
}

// Registry holds modules and dispatches invocations to them by name.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module. Registering two modules under one name is a
// wiring mistake and fails loudly.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	r.modules[name] = m
	return nil
}

// Module returns the named module, if registered.
func (r *Registry) Module(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns the registered module names in sorted order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke dispatches op on the named module.
func (r *Registry) Invoke(ctx context.Context, module, op string, args map[string]any) (any, error) {
	m, ok := r.Module(module)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return m.Invoke(ctx, op, args)
}
