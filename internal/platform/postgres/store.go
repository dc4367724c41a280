package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Store implements store.Store on a PostgreSQL database.
type Store struct {
	db     *sql.DB
	q      store.DBTX
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

// NewStore creates a Store on an open database handle that should be
// initialized and closed by the caller or through Close.
// If log is nil, the default logger is used.
func NewStore(db *sql.DB, log *slog.Logger, opts ...Option) *Store {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		db:     db,
		q:      db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With(slog.String("component", "postgres_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Destinations implements store.Store.
func (s *Store) Destinations() store.Collection[*domain.Destination] {
	return newCollection(s.q, domain.DestinationModel, s.now, s.logger)
}

// Items implements store.Store.
func (s *Store) Items() store.Collection[*domain.Item] {
	return newCollection(s.q, domain.ItemModel, s.now, s.logger)
}

// Packages implements store.Store.
func (s *Store) Packages() store.Collection[*domain.Package] {
	return newCollection(s.q, domain.PackageModel, s.now, s.logger)
}

// Shipments implements store.Store.
func (s *Store) Shipments() store.Collection[*domain.Shipment] {
	return newCollection(s.q, domain.ShipmentModel, s.now, s.logger)
}

// InTx implements store.Store. Transactions run at READ COMMITTED; Update
// relies on its version check rather than on isolation to detect races.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return store.RunInTransaction(ctx, s.db, opts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &Store{db: s.db, q: tx, inTx: true, now: s.now, logger: s.logger})
	})
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return MapError(err)
	}
	return nil
}

// Close implements store.Store. Closing a transactional Store is an error.
func (s *Store) Close() error {
	if s.inTx {
		return errors.New("postgres: cannot close a transactional store")
	}
	return s.db.Close()
}
