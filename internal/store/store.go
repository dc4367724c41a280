package store

import (
	"context"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/query"
)

// Collection defines persistence for one entity type.
// Every method takes query arguments that were already validated against the
// entity's schema.
type Collection[T domain.Entity] interface {
	// Find retrieves a record by key.
	// Returns ErrNotFound if the record does not exist.
	Find(ctx context.Context, key string) (T, error)

	// FindMany returns the records matching args.Where, ordered by args.SortBy
	// with the key as final tie-breaker, then paginated by Skip and Take.
	// Returns an empty slice if nothing matches.
	FindMany(ctx context.Context, args query.FindMany) ([]T, error)

	// Count returns the number of records matching where.
	Count(ctx context.Context, where query.Filter) (int, error)

	// Existing returns the subset of keys that resolve to records, without
	// duplicates, in ascending key order.
	Existing(ctx context.Context, keys []string) ([]string, error)

	// Insert saves a new record. CreatedAt, UpdatedAt and Version must be set
	// by the caller.
	// Returns ErrDuplicate if the key is taken and ErrInvalidEntity if a
	// reference does not resolve.
	Insert(ctx context.Context, rec T) error

	// Update overwrites a record if its stored version equals
	// rec.Meta().Version, and on success stores rec with the version
	// incremented by one.
	// Returns ErrConflict if no record with that key and version exists; the
	// caller decides whether the record is gone or was modified concurrently.
	Update(ctx context.Context, rec T) error

	// Delete removes a record. References held by other records are cleared.
	// Returns ErrNotFound if the record does not exist.
	Delete(ctx context.Context, key string) error

	// Link sets the reference attribute field to parent on the records with
	// the given keys, skipping those already pointing at parent.
	// Returns the number of records changed.
	Link(ctx context.Context, field, parent string, keys []string) (int, error)

	// Unlink clears field on the records with the given keys that currently
	// point at parent. A nil keys slice means every record pointing at parent.
	// Returns the number of records changed.
	Unlink(ctx context.Context, field, parent string, keys []string) (int, error)

	// UnlinkExcept clears field on every record pointing at parent whose key
	// is not in keep. Returns the number of records changed.
	UnlinkExcept(ctx context.Context, field, parent string, keep []string) (int, error)
}

// Store groups the collections of the shipping model.
type Store interface {
	Destinations() Collection[*domain.Destination]
	Items() Collection[*domain.Item]
	Packages() Collection[*domain.Package]
	Shipments() Collection[*domain.Shipment]

	// InTx runs fn against a Store bound to a single transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	// Calling InTx on a Store that is already transactional reuses the
	// enclosing transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}

// CollectionFor returns the accessor on Store for the collection of model's
// entity type. It panics on a model that is not part of the shipping model.
func CollectionFor[T domain.Entity](model domain.Model[T]) func(Store) Collection[T] {
	var accessor any
	switch model.Name() {
	case domain.DestinationModel.Name():
		accessor = func(s Store) Collection[*domain.Destination] { return s.Destinations() }
	case domain.ItemModel.Name():
		accessor = func(s Store) Collection[*domain.Item] { return s.Items() }
	case domain.PackageModel.Name():
		accessor = func(s Store) Collection[*domain.Package] { return s.Packages() }
	case domain.ShipmentModel.Name():
		accessor = func(s Store) Collection[*domain.Shipment] { return s.Shipments() }
	}
	fn, ok := accessor.(func(Store) Collection[T])
	if !ok {
		// ALLOW-PANIC: models are package-level declarations
		panic("store: no collection for entity " + model.Name())
	}
	return fn
}

// Keyed is the part of a Collection that does not depend on the record type.
type Keyed interface {
	Existing(ctx context.Context, keys []string) ([]string, error)
	Link(ctx context.Context, field, parent string, keys []string) (int, error)
	Unlink(ctx context.Context, field, parent string, keys []string) (int, error)
	UnlinkExcept(ctx context.Context, field, parent string, keep []string) (int, error)
}

// Named returns the collection of the named entity as a Keyed.
func Named(s Store, entity string) (Keyed, bool) {
	switch entity {
	case domain.DestinationModel.Name():
		return s.Destinations(), true
	case domain.ItemModel.Name():
		return s.Items(), true
	case domain.PackageModel.Name():
		return s.Packages(), true
	case domain.ShipmentModel.Name():
		return s.Shipments(), true
	}
	return nil, false
}
