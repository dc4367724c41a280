package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names the kind of mutation a ChangeEvent reports.
type Action string

const (
	ActionCreated      Action = "created"
	ActionUpdated      Action = "updated"
	ActionDeleted      Action = "deleted"
	ActionConnected    Action = "connected"
	ActionDisconnected Action = "disconnected"
	ActionReplaced     Action = "replaced"
)

// ChangeEvent reports a committed mutation of one record.
type ChangeEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`
	// Entity is the name of the mutated entity type, e.g. "shipment"
	Entity string `json:"entity"`
	Action Action `json:"action"`
	// Key is the key of the mutated record. For relation changes it is the
	// parent key.
	Key string `json:"key"`
	// Relation is set for connected, disconnected and replaced events.
	Relation string `json:"relation,omitempty"`
	// Related lists the child keys affected by a relation change.
	Related []string `json:"related,omitempty"`
	At      time.Time `json:"at"`
}

// NewChangeEvent creates a ChangeEvent stamped with a fresh id and the
// current time.
func NewChangeEvent(entity string, action Action, key string) *ChangeEvent {
	return &ChangeEvent{
		ID:     uuid.New(),
		Entity: entity,
		Action: action,
		Key:    key,
		At:     time.Now().UTC(),
	}
}

// WithRelation records the relation and child keys of a relation change.
func (e *ChangeEvent) WithRelation(relation string, related []string) *ChangeEvent {
	e.Relation = relation
	e.Related = related
	return e
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *ChangeEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *ChangeEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *ChangeEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *ChangeEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *ChangeEvent) error {
	return nil
}
