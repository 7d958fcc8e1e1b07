// Package execution routes approved proposals to external-service
// capabilities and reports structured execution results.
package execution

import (
	"context"
	"sync"

	"github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/store"
)

// Request is the payload handed to a capability.
type Request struct {
	ActionType store.ActionType
	Content    string
	Metadata   map[string]any
}

// Capability is an external-service execution endpoint for one action
// type. Implementations own their retry policy; the runner never retries.
type Capability interface {
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

var validActionTypes = map[store.ActionType]bool{
	store.ActionEmailDraft:    true,
	store.ActionCalendarEvent: true,
	store.ActionNotesPage:     true,
	store.ActionGeneric:       true,
}

// Registry maps the closed action-type enum to capability
// implementations. Unknown keys and duplicates are rejected at
// registration time, not at call time.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[store.ActionType]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[store.ActionType]Capability)}
}

// Register wires a capability for an action type.
func (r *Registry) Register(actionType store.ActionType, capability Capability) error {
	if !validActionTypes[actionType] {
		return errors.ConfigError("unknown action type " + string(actionType))
	}
	if capability == nil {
		return errors.ConfigError("nil capability for action type " + string(actionType))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.capabilities[actionType]; ok {
		return errors.ConfigError("capability already registered for action type " + string(actionType))
	}
	r.capabilities[actionType] = capability
	return nil
}

// Get returns the capability for an action type. A missing capability is a
// configuration error, not a retryable failure.
func (r *Registry) Get(actionType store.ActionType) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	capability, ok := r.capabilities[actionType]
	if !ok {
		return nil, errors.ConfigError("no capability configured for action type " + string(actionType))
	}
	return capability, nil
}
