// Package storetest holds the behaviour shared by every store.Store
// implementation. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Epoch is the base timestamp used by fixtures. It is truncated to
// microseconds so it survives a round trip through Postgres.
var Epoch = time.Date(2025, time.January, 6, 12, 0, 0, 0, time.UTC)

// Run executes the store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("InsertDuplicate", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("InsertDanglingReference", func(t *testing.T) { testInsertDanglingReference(t, newStore(t)) })
	t.Run("FindMissing", func(t *testing.T) { testFindMissing(t, newStore(t)) })
	t.Run("FindManyAndCount", func(t *testing.T) { testFindManyAndCount(t, newStore(t)) })
	t.Run("FindManyNullsLast", func(t *testing.T) { testFindManyNullsLast(t, newStore(t)) })
	t.Run("Existing", func(t *testing.T) { testExisting(t, newStore(t)) })
	t.Run("UpdateVersioning", func(t *testing.T) { testUpdateVersioning(t, newStore(t)) })
	t.Run("UpdateDeleted", func(t *testing.T) { testUpdateDeleted(t, newStore(t)) })
	t.Run("DeleteClearsReferences", func(t *testing.T) { testDeleteClearsReferences(t, newStore(t)) })
	t.Run("LinkAndUnlink", func(t *testing.T) { testLinkAndUnlink(t, newStore(t)) })
	t.Run("UnlinkExcept", func(t *testing.T) { testUnlinkExcept(t, newStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTransactionRollback(t, newStore(t)) })
	t.Run("NestedTransaction", func(t *testing.T) { testNestedTransaction(t, newStore(t)) })
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Destination builds a destination fixture created offset after Epoch.
func Destination(id, city string, offset time.Duration) *domain.Destination {
	d := &domain.Destination{City: Str(city)}
	stamp(&d.Record, id, offset)
	return d
}

// Item builds an item fixture created offset after Epoch.
func Item(id, name string, quantity int64, offset time.Duration) *domain.Item {
	i := &domain.Item{Name: Str(name), Quantity: &quantity}
	stamp(&i.Record, id, offset)
	return i
}

// Shipment builds a shipment fixture created offset after Epoch.
func Shipment(id string, offset time.Duration) *domain.Shipment {
	s := &domain.Shipment{}
	stamp(&s.Record, id, offset)
	return s
}

// Package builds a package fixture created offset after Epoch.
func Package(id, tracking string, offset time.Duration) *domain.Package {
	p := &domain.Package{TrackingNumber: Str(tracking)}
	stamp(&p.Record, id, offset)
	return p
}

func stamp(r *domain.Record, id string, offset time.Duration) {
	r.ID = id
	r.CreatedAt = Epoch.Add(offset)
	r.UpdatedAt = r.CreatedAt
	r.Version = 1
}

func keys[T domain.Entity](rows []T) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Meta().ID)
	}
	return out
}

func validated(t *testing.T, schema query.Schema, args query.FindMany) query.FindMany {
	t.Helper()
	out, err := args.Validate(schema, query.Limits{MaxTake: 100})
	require.NoError(t, err)
	return out
}

func seedItems(t *testing.T, s store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		// created in reverse key order so key order and createdAt order differ
		it := Item(fmt.Sprintf("item-%d", i), fmt.Sprintf("crate %d", i%2), int64(i*10), time.Duration(n-i)*time.Minute)
		require.NoError(t, s.Items().Insert(ctx, it))
	}
}

func testInsertAndFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	departed := Epoch.Add(2 * time.Hour)

	require.NoError(t, s.Packages().Insert(ctx, Package("pkg-1", "TRK-1", 0)))
	sh := Shipment("ship-1", time.Minute)
	sh.DepartureTime = &departed
	sh.PackageID = Str("pkg-1")
	require.NoError(t, s.Shipments().Insert(ctx, sh))

	got, err := s.Shipments().Find(ctx, "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "ship-1", got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(sh.CreatedAt))
	require.NotNil(t, got.DepartureTime)
	assert.True(t, got.DepartureTime.Equal(departed))
	assert.Nil(t, got.ArrivalTime)
	require.NotNil(t, got.PackageID)
	assert.Equal(t, "pkg-1", *got.PackageID)
}

func testInsertDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-1", "Oslo", 0)))

	err := s.Destinations().Insert(ctx, Destination("dst-1", "Bergen", time.Minute))
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testInsertDanglingReference(t *testing.T, s store.Store) {
	ctx := context.Background()
	it := Item("item-1", "crate", 1, 0)
	it.DestinationID = Str("nowhere")

	err := s.Items().Insert(ctx, it)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	_, err = s.Items().Find(ctx, "item-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFindMissing(t *testing.T, s store.Store) {
	_, err := s.Packages().Find(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Packages().Delete(context.Background(), "missing"), store.ErrNotFound)
}

func testFindManyAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedItems(t, s, 5)
	schema := domain.ItemModel.Schema

	all, err := s.Items().FindMany(ctx, validated(t, schema, query.FindMany{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0", "item-1", "item-2", "item-3", "item-4"}, keys(all))

	page, err := s.Items().FindMany(ctx, validated(t, schema, query.FindMany{
		Skip:   2,
		Take:   query.TakeOf(2),
		SortBy: []query.Sort{{Field: "createdAt", Direction: query.Asc}},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"item-2", "item-1"}, keys(page))

	filters := []query.Filter{
		nil,
		{query.Eq("name", "crate 0")},
		{{Field: "quantity", Op: query.OpGte, Value: 20}},
		{{Field: "name", Op: query.OpContains, Value: "CRATE 1"}},
		{query.In("id", "item-1", "item-4", "nope")},
		{query.Eq("name", "crate 0"), {Field: "quantity", Op: query.OpLt, Value: 30}},
		{query.Eq("name", "nothing")},
	}
	for _, f := range filters {
		args := validated(t, schema, query.FindMany{Where: f})
		rows, err := s.Items().FindMany(ctx, args)
		require.NoError(t, err)
		n, err := s.Items().Count(ctx, args.Where)
		require.NoError(t, err)
		assert.Equal(t, len(rows), n, "count and find many disagree for %v", f)
	}

	sorted, err := s.Items().FindMany(ctx, validated(t, schema, query.FindMany{
		SortBy: []query.Sort{{Field: "name", Direction: query.Desc}, {Field: "quantity", Direction: query.Desc}},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"item-3", "item-1", "item-4", "item-2", "item-0"}, keys(sorted))
}

func testFindManyNullsLast(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-a", "Oslo", 0)))
	blank := Destination("dst-b", "", time.Minute)
	blank.City = nil
	require.NoError(t, s.Destinations().Insert(ctx, blank))
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-c", "Bergen", 2*time.Minute)))

	schema := domain.DestinationModel.Schema
	for _, dir := range []query.Direction{query.Asc, query.Desc} {
		rows, err := s.Destinations().FindMany(ctx, validated(t, schema, query.FindMany{
			SortBy: []query.Sort{{Field: "city", Direction: dir}},
		}))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "dst-b", rows[2].ID, "NULL city must sort last for %s", dir)
	}
}

func testExisting(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedItems(t, s, 3)

	got, err := s.Items().Existing(ctx, []string{"item-2", "ghost", "item-0", "item-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0", "item-2"}, got)

	got, err = s.Items().Existing(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testUpdateVersioning(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Packages().Insert(ctx, Package("pkg-1", "TRK-1", 0)))

	first, err := s.Packages().Find(ctx, "pkg-1")
	require.NoError(t, err)
	second, err := s.Packages().Find(ctx, "pkg-1")
	require.NoError(t, err)

	first.TrackingNumber = Str("TRK-2")
	first.UpdatedAt = Epoch.Add(time.Hour)
	require.NoError(t, s.Packages().Update(ctx, first))

	got, err := s.Packages().Find(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "TRK-2", *got.TrackingNumber)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.UpdatedAt.Equal(Epoch.Add(time.Hour)))
	assert.True(t, got.CreatedAt.Equal(Epoch))

	// second still holds version 1
	second.TrackingNumber = Str("TRK-3")
	err = s.Packages().Update(ctx, second)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err = s.Packages().Find(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "TRK-2", *got.TrackingNumber)
}

func testUpdateDeleted(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-1", "Oslo", 0)))
	d, err := s.Destinations().Find(ctx, "dst-1")
	require.NoError(t, err)

	require.NoError(t, s.Destinations().Delete(ctx, "dst-1"))

	d.City = Str("Trondheim")
	assert.ErrorIs(t, s.Destinations().Update(ctx, d), store.ErrConflict)
}

func testDeleteClearsReferences(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-1", "Oslo", 0)))
	it := Item("item-1", "crate", 1, 0)
	it.DestinationID = Str("dst-1")
	require.NoError(t, s.Items().Insert(ctx, it))
	p := Package("pkg-1", "TRK-1", 0)
	p.DestinationID = Str("dst-1")
	require.NoError(t, s.Packages().Insert(ctx, p))

	require.NoError(t, s.Destinations().Delete(ctx, "dst-1"))

	gotItem, err := s.Items().Find(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, gotItem.DestinationID)
	gotPkg, err := s.Packages().Find(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Nil(t, gotPkg.DestinationID)
}

func members(t *testing.T, s store.Store, field, parent string) []string {
	t.Helper()
	args := validated(t, domain.ItemModel.Schema, query.FindMany{Where: query.Filter{query.Eq(field, parent)}})
	rows, err := s.Items().FindMany(context.Background(), args)
	require.NoError(t, err)
	return keys(rows)
}

func testLinkAndUnlink(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedItems(t, s, 4)
	require.NoError(t, s.Shipments().Insert(ctx, Shipment("ship-1", 0)))
	require.NoError(t, s.Shipments().Insert(ctx, Shipment("ship-2", 0)))
	field := domain.ShipmentItems.Field

	n, err := s.Items().Link(ctx, field, "ship-1", []string{"item-0", "item-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Items().Link(ctx, field, "ship-1", []string{"item-1", "item-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "already linked records are skipped")
	assert.Equal(t, []string{"item-0", "item-1", "item-2"}, members(t, s, field, "ship-1"))

	linked, err := s.Items().Find(ctx, "item-0")
	require.NoError(t, err)
	assert.Equal(t, int64(2), linked.Version, "linking is a modification")

	// moving to another parent takes the child out of the first collection
	_, err = s.Items().Link(ctx, field, "ship-2", []string{"item-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0", "item-1"}, members(t, s, field, "ship-1"))

	n, err = s.Items().Unlink(ctx, field, "ship-1", []string{"item-1", "item-2", "item-3"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "records of other parents are untouched")
	assert.Equal(t, []string{"item-0"}, members(t, s, field, "ship-1"))
	assert.Equal(t, []string{"item-2"}, members(t, s, field, "ship-2"))

	n, err = s.Items().Unlink(ctx, field, "ship-2", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, members(t, s, field, "ship-2"))
}

func testUnlinkExcept(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedItems(t, s, 4)
	require.NoError(t, s.Destinations().Insert(ctx, Destination("dst-1", "Oslo", 0)))
	field := domain.DestinationItems.Field

	_, err := s.Items().Link(ctx, field, "dst-1", []string{"item-0", "item-1", "item-2"})
	require.NoError(t, err)

	n, err := s.Items().UnlinkExcept(ctx, field, "dst-1", []string{"item-1", "item-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"item-1"}, members(t, s, field, "dst-1"))

	n, err = s.Items().UnlinkExcept(ctx, field, "dst-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, members(t, s, field, "dst-1"))
}

var errAbort = errors.New("abort")

func testTransactionRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Shipments().Insert(ctx, Shipment("ship-1", 0)))

	err := s.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Items().Insert(ctx, Item("item-1", "crate", 1, 0)); err != nil {
			return err
		}
		if _, err := tx.Items().Link(ctx, domain.ShipmentItems.Field, "ship-1", []string{"item-1"}); err != nil {
			return err
		}
		got, err := tx.Items().Find(ctx, "item-1")
		if err != nil {
			return err
		}
		if got.ShipmentID == nil {
			return errors.New("link not visible inside the transaction")
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	_, err = s.Items().Find(ctx, "item-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "rolled back insert must not be visible")

	err = s.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		return tx.Items().Insert(ctx, Item("item-2", "crate", 1, 0))
	})
	require.NoError(t, err)
	_, err = s.Items().Find(ctx, "item-2")
	assert.NoError(t, err)
}

func testNestedTransaction(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Destinations().Insert(ctx, Destination("dst-1", "Oslo", 0)); err != nil {
			return err
		}
		return tx.InTx(ctx, func(ctx context.Context, inner store.Store) error {
			if _, err := inner.Destinations().Find(ctx, "dst-1"); err != nil {
				return err
			}
			return inner.Destinations().Insert(ctx, Destination("dst-2", "Bergen", 0))
		})
	})
	require.NoError(t, err)

	n, err := s.Destinations().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
