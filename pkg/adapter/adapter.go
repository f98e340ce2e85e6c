// Package adapter is the boundary between the runtime and real external
// systems. Handlers registered with the invoker reach out only through the
// Adapter interface; concrete clients live behind it, one per system.
package adapter

import (
	"context"
	"sync"

	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
)

// Request carries the input and invocation context for one external call.
type Request struct {
	Input   map[string]any
	Context core.InvocationContext
}

// Response is the structured outcome of one external call.
type Response struct {
	Success  bool
	Output   any
	Error    string
	Metadata map[string]string
}

// Adapter is the typed contract every external integration implements.
type Adapter interface {
	Initialize(ctx context.Context, config map[string]any) error
	Execute(ctx context.Context, req Request) Response
	IsReady() bool
	Shutdown(ctx context.Context) error
}

// Registry holds named adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a name. Registering an existing name is a
// configuration error: adapters are wired once at startup.
func (r *Registry) Register(name string, a Adapter) error {
	if name == "" {
		return cerr.Newf(cerr.CodeConfiguration, "adapter name is empty")
	}
	if a == nil {
		return cerr.Newf(cerr.CodeConfiguration, "adapter %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return cerr.Newf(cerr.CodeConfiguration, "adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, cerr.Newf(cerr.CodeNotFound, "no adapter named %q", name)
	}
	return a, nil
}

// ShutdownAll shuts every adapter down, returning the first error.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first error
	for _, a := range r.adapters {
		if err := a.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
