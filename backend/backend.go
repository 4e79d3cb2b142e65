// Package backend provides the uniform chat interface over concrete model
// backends (local OpenAI-compatible server, hosted remote provider, or a
// deterministic stub), a small name-keyed registry, and retry with
// exponential backoff over transient errors.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Backend is a single chat-capable model service. Chat sends one exchange
// and returns the generated text and the model that produced it. Errors are
// classified transient or fatal for the retry layer.
type Backend interface {
	// Name returns the registry name of this backend.
	Name() string

	// Chat sends the instruction block and user message, returning the
	// response text and the model used.
	Chat(ctx context.Context, instructions, message string) (text, model string, err error)
}

// Registry maps backend names to implementations. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its name, replacing any previous entry.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend registered under name, or ErrUnknownBackend.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, NewFatalError(fmt.Errorf("%w: %q", ErrUnknownBackend, name))
	}
	return b, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
