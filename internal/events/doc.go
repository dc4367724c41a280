// Package events carries change notifications from the services to
// interested components.
//
// Services emit a ChangeEvent after every committed mutation. Handlers
// registered on an InMemoryEventEmitter receive each event in registration
// order; the audit handler writes one log line per event.
package events
