// Package capability holds the registry of named external functions the
// workflow engine can invoke. The engine does not know what a capability
// does, only its (plugin, function) identity and named arguments.
package capability

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nicolaor/chatflow"
)

// Func is a registered capability function. It receives resolved step
// parameters and returns a textual result, which may be a JSON object.
type Func func(ctx context.Context, args map[string]string) (string, error)

// Invoker is the collaborator contract the engine depends on
type Invoker interface {
	Invoke(ctx context.Context, plugin, function string, args map[string]string) (string, error)
}

// Registry is a thread-safe capability registry keyed by plugin.function
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds a function under the given identity, replacing any
// previous binding
func (r *Registry) Register(plugin, function string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key(plugin, function)] = fn
}

// Invoke runs the matching registered function. Returns a
// CapabilityNotFoundError when no function matches the identity.
func (r *Registry) Invoke(ctx context.Context, plugin, function string, args map[string]string) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[key(plugin, function)]
	r.mu.RUnlock()

	if !ok {
		return "", &chatflow.CapabilityNotFoundError{Plugin: plugin, Function: function}
	}
	return fn(ctx, args)
}

// Has reports whether an identity is registered
func (r *Registry) Has(plugin, function string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[key(plugin, function)]
	return ok
}

// Names returns the registered identities, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func key(plugin, function string) string {
	return strings.ToLower(plugin) + "." + strings.ToLower(function)
}
