package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/platform/logger"
)

// recordingHandler collects the events it receives.
type recordingHandler struct {
	mu     sync.Mutex
	events []*ChangeEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func TestNewChangeEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewChangeEvent("shipment", ActionConnected, "ship-1").
		WithRelation("shipment.items", []string{"item-1", "item-2"})

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "shipment", event.Entity)
	assert.Equal(t, ActionConnected, event.Action)
	assert.Equal(t, "ship-1", event.Key)
	assert.Equal(t, "shipment.items", event.Relation)
	assert.Equal(t, []string{"item-1", "item-2"}, event.Related)
	assert.False(t, event.At.Before(before))
}

func TestInMemoryEventEmitter(t *testing.T) {
	log := logger.NewTestLogger(t)

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		err := emitter.EmitEvent(context.Background(), NewChangeEvent("item", ActionCreated, "item-1"))
		assert.NoError(t, err)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		first, second := &recordingHandler{}, &recordingHandler{}
		emitter.RegisterHandler(first)
		emitter.RegisterHandler(second)

		event := NewChangeEvent("item", ActionUpdated, "item-1")
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, []*ChangeEvent{event}, first.events)
		assert.Equal(t, []*ChangeEvent{event}, second.events)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		failing := &recordingHandler{err: errors.New("handler error")}
		after := &recordingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(after)

		err := emitter.EmitEvent(context.Background(), NewChangeEvent("item", ActionDeleted, "item-1"))
		assert.EqualError(t, err, "handler error")
		assert.Len(t, failing.events, 1)
		assert.Len(t, after.events, 1, "later handlers still receive the event")
	})

	t.Run("handler func", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		var got Action
		emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *ChangeEvent) error {
			got = e.Action
			return nil
		}))
		require.NoError(t, emitter.EmitEvent(context.Background(), NewChangeEvent("package", ActionReplaced, "pkg-1")))
		assert.Equal(t, ActionReplaced, got)
	})
}

func TestAuditLogHandler(t *testing.T) {
	log, buf := logger.GetTestLogger(t)
	h := NewAuditLogHandler(log)

	event := NewChangeEvent("destination", ActionDisconnected, "dst-1").
		WithRelation("destination.items", []string{"item-3"})
	require.NoError(t, h.HandleEvent(context.Background(), event))

	logger.AssertLogContains(t, buf, "record changed")
	logger.AssertLogField(t, buf, "entity", "destination")
	logger.AssertLogField(t, buf, "action", "disconnected")
	logger.AssertLogField(t, buf, "relation", "destination.items")
}

func TestNopEmitter(t *testing.T) {
	var e EventEmitter = NopEmitter{}
	assert.NoError(t, e.EmitEvent(context.Background(), NewChangeEvent("item", ActionCreated, "item-1")))
}
