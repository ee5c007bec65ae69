// Package delivery routes outbound check-ins to notification channels.
package delivery

import (
	"fmt"
	"strings"
	"sync"
)

// Handler delivers a message to the notify address it is registered for.
type Handler func(address, message string) error

// Registry routes messages to the appropriate delivery handler based on
// the notify address prefix (e.g. "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for notify addresses starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver finds the handler matching the address prefix and calls it.
// Returns an error if no handler is registered for the prefix.
func (r *Registry) Deliver(address, message string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(address, prefix) {
			return handler(address, message)
		}
	}
	return fmt.Errorf("no delivery handler for address: %s", address)
}
