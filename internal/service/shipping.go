package service

import (
	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Shipping bundles the record, relation and reference services of the
// shipping model over one store.
type Shipping struct {
	Destinations *Records[*domain.Destination]
	Items        *Records[*domain.Item]
	Packages     *Records[*domain.Package]
	Shipments    *Records[*domain.Shipment]

	DestinationItems *Linker[*domain.Destination, *domain.Item]
	ShipmentItems    *Linker[*domain.Shipment, *domain.Item]
	PackageShipments *Linker[*domain.Package, *domain.Shipment]

	ItemDestination    *Reference[*domain.Item, *domain.Destination]
	ItemShipment       *Reference[*domain.Item, *domain.Shipment]
	PackageDestination *Reference[*domain.Package, *domain.Destination]
	ShipmentPackage    *Reference[*domain.Shipment, *domain.Package]
}

// NewShipping creates every service of the shipping model on st.
// It returns an error if st is nil.
func NewShipping(st store.Store, opts Options) (*Shipping, error) {
	if st == nil {
		return nil, domain.NewValidationError("store", "cannot be nil", domain.ErrValidation)
	}
	opts = opts.withDefaults()
	s := &Shipping{}

	var err error
	if s.Destinations, err = NewRecords(st, domain.DestinationModel, opts); err != nil {
		return nil, err
	}
	if s.Items, err = NewRecords(st, domain.ItemModel, opts); err != nil {
		return nil, err
	}
	if s.Packages, err = NewRecords(st, domain.PackageModel, opts); err != nil {
		return nil, err
	}
	if s.Shipments, err = NewRecords(st, domain.ShipmentModel, opts); err != nil {
		return nil, err
	}

	if s.DestinationItems, err = NewLinker(st, domain.DestinationItems,
		domain.DestinationModel, domain.ItemModel, opts); err != nil {
		return nil, err
	}
	if s.ShipmentItems, err = NewLinker(st, domain.ShipmentItems,
		domain.ShipmentModel, domain.ItemModel, opts); err != nil {
		return nil, err
	}
	if s.PackageShipments, err = NewLinker(st, domain.PackageShipments,
		domain.PackageModel, domain.ShipmentModel, opts); err != nil {
		return nil, err
	}

	if s.ItemDestination, err = NewReference(st, domain.DestinationItems,
		domain.ItemModel, domain.DestinationModel, opts.Logger); err != nil {
		return nil, err
	}
	if s.ItemShipment, err = NewReference(st, domain.ShipmentItems,
		domain.ItemModel, domain.ShipmentModel, opts.Logger); err != nil {
		return nil, err
	}
	if s.PackageDestination, err = NewReference(st, domain.DestinationPackages,
		domain.PackageModel, domain.DestinationModel, opts.Logger); err != nil {
		return nil, err
	}
	if s.ShipmentPackage, err = NewReference(st, domain.PackageShipments,
		domain.ShipmentModel, domain.PackageModel, opts.Logger); err != nil {
		return nil, err
	}
	return s, nil
}
