package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/store"
)

func TestReference_Get(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.destination(t, "dest-1", "Oslo")
	f.pkg(t, "pkg-1", "TRK-1")
	_, err := f.svc.Packages.Create(ctx, &domain.Package{
		Record:        domain.Record{ID: "pkg-2"},
		DestinationID: str("dest-1"),
	}, nil)
	require.NoError(t, err)

	got, err := f.svc.PackageDestination.Get(ctx, "pkg-2")
	require.NoError(t, err)
	assert.Equal(t, "dest-1", got.ID)
	assert.Equal(t, "Oslo", *got.City)

	_, err = f.svc.PackageDestination.Get(ctx, "pkg-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "no destination set")

	_, err = f.svc.PackageDestination.Get(ctx, "pkg-9")
	assert.ErrorIs(t, err, store.ErrNotFound, "no such package")

	require.NoError(t, f.svc.Destinations.Delete(ctx, "dest-1"))
	_, err = f.svc.PackageDestination.Get(ctx, "pkg-2")
	assert.ErrorIs(t, err, store.ErrNotFound, "destination deleted")
}

func TestReference_FollowsLinker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.shipment(t, "ship-1")
	f.item(t, "item-1", "crate")

	_, err := f.svc.ShipmentItems.Connect(ctx, "ship-1", []string{"item-1"})
	require.NoError(t, err)

	got, err := f.svc.ItemShipment.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "ship-1", got.ID)

	_, err = f.svc.ItemDestination.Get(ctx, "item-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewReference_MismatchedModels(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewReference(f.store, domain.ShipmentItems, domain.PackageModel, domain.ShipmentModel, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
