// Package memory provides an in-memory implementation of store.Store.
// It follows the same contract as the Postgres store and is used for local
// development and unit tests.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Store is an in-memory store.Store. It is safe for concurrent use.
// Transactions hold the write lock for their whole duration and work on a
// copy of the data that replaces the committed state on success.
type Store struct {
	mu     *sync.RWMutex
	state  *state
	inTx   bool
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp records changed by Link and Unlink.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory store.
func NewStore(log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		mu:     &sync.RWMutex{},
		state:  newState(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With(slog.String("component", "memory_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

// Destinations implements store.Store.
func (s *Store) Destinations() store.Collection[*domain.Destination] {
	return &collection[*domain.Destination]{s: s, pick: func(st *state) *table[*domain.Destination] { return st.destinations }}
}

// Items implements store.Store.
func (s *Store) Items() store.Collection[*domain.Item] {
	return &collection[*domain.Item]{s: s, pick: func(st *state) *table[*domain.Item] { return st.items }}
}

// Packages implements store.Store.
func (s *Store) Packages() store.Collection[*domain.Package] {
	return &collection[*domain.Package]{s: s, pick: func(st *state) *table[*domain.Package] { return st.packages }}
}

// Shipments implements store.Store.
func (s *Store) Shipments() store.Collection[*domain.Shipment] {
	return &collection[*domain.Shipment]{s: s, pick: func(st *state) *table[*domain.Shipment] { return st.shipments }}
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, state: s.state.clone(), inTx: true, now: s.now, logger: s.logger}
	if err := fn(ctx, tx); err != nil {
		log.Debug("rolled back transaction due to error", slog.String("error", err.Error()))
		return err
	}
	s.state = tx.state
	log.Debug("transaction committed successfully")
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

// read returns the state to read from and a release function.
func (s *Store) read() (*state, func()) {
	if s.inTx {
		return s.state, func() {}
	}
	s.mu.RLock()
	return s.state, s.mu.RUnlock
}

// write returns the state to modify and a release function.
func (s *Store) write() (*state, func()) {
	if s.inTx {
		return s.state, func() {}
	}
	s.mu.Lock()
	return s.state, s.mu.Unlock
}
