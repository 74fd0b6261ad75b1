// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/momentcast/internal/gateway"
)

// Handler delivers a rendered message to one target, e.g.
// "telegram:123456".
type Handler func(ctx context.Context, target, message string) error

// Registry routes messages to the appropriate delivery handler based on
// target prefix (e.g. "telegram:", "log:").
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

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver calls the handler with the longest prefix matching target.
// A target with no handler fails permanently.
func (r *Registry) Deliver(ctx context.Context, target, message string) error {
	r.mu.RLock()
	var best string
	var handler Handler
	for prefix, h := range r.handlers {
		if strings.HasPrefix(target, prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()
	if handler == nil {
		return gateway.Permanent(fmt.Errorf("no delivery handler for target: %s", target))
	}
	return handler(ctx, target, message)
}
