package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/events"
	"github.com/phrazzld/shipping-api/internal/platform/memory"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

var testNow = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []*events.ChangeEvent
}

func (r *recorder) HandleEvent(_ context.Context, e *events.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) actions() []events.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Action, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func (r *recorder) last() *events.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// MockEmitter is a mock implementation of events.EventEmitter.
type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitEvent(ctx context.Context, event *events.ChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	svc   *Shipping
	store store.Store
	rec   *recorder
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	if st == nil {
		st = memory.NewStore(discardLogger())
	}
	rec := &recorder{}
	emitter := events.NewInMemoryEventEmitter(discardLogger())
	emitter.RegisterHandler(rec)

	n := 0
	svc, err := NewShipping(st, Options{
		Limits: query.Limits{MaxTake: 50},
		Events: emitter,
		Logger: discardLogger(),
		Now:    func() time.Time { return testNow },
		NewKey: func() string {
			n++
			return fmt.Sprintf("gen-%02d", n)
		},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: st, rec: rec}
}

func str(s string) *string { return &s }

func (f *fixture) destination(t *testing.T, id, city string) *domain.Destination {
	t.Helper()
	d, err := f.svc.Destinations.Create(context.Background(),
		&domain.Destination{Record: domain.Record{ID: id}, City: str(city)}, nil)
	require.NoError(t, err)
	return d
}

func (f *fixture) item(t *testing.T, id, name string) *domain.Item {
	t.Helper()
	i, err := f.svc.Items.Create(context.Background(),
		&domain.Item{Record: domain.Record{ID: id}, Name: str(name)}, nil)
	require.NoError(t, err)
	return i
}

func (f *fixture) shipment(t *testing.T, id string) *domain.Shipment {
	t.Helper()
	s, err := f.svc.Shipments.Create(context.Background(),
		&domain.Shipment{Record: domain.Record{ID: id}}, nil)
	require.NoError(t, err)
	return s
}

func (f *fixture) pkg(t *testing.T, id, tracking string) *domain.Package {
	t.Helper()
	p, err := f.svc.Packages.Create(context.Background(),
		&domain.Package{Record: domain.Record{ID: id}, TrackingNumber: str(tracking)}, nil)
	require.NoError(t, err)
	return p
}

func ids[T domain.Entity](rows []T) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Meta().ID)
	}
	return out
}

// racingStore runs hook against the transaction just before an item update
// reaches the store, simulating a concurrent writer.
type racingStore struct {
	store.Store
	hook func(ctx context.Context, tx store.Store, rec *domain.Item)
}

func (s *racingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		return fn(ctx, &racingStore{Store: tx, hook: s.hook})
	})
}

func (s *racingStore) Items() store.Collection[*domain.Item] {
	return &racingItems{Collection: s.Store.Items(), tx: s.Store, hook: s.hook}
}

type racingItems struct {
	store.Collection[*domain.Item]
	tx   store.Store
	hook func(ctx context.Context, tx store.Store, rec *domain.Item)
}

func (c *racingItems) Update(ctx context.Context, rec *domain.Item) error {
	if c.hook != nil {
		c.hook(ctx, c.tx, rec)
	}
	return c.Collection.Update(ctx, rec)
}
