package api

import (
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/service"
)

// Request bodies. Records are returned as the domain types, whose JSON names
// match the request fields.
//
// Update requests are partial: an absent or null field leaves the stored value
// unchanged. A collection field that is present replaces the membership with
// the listed records that exist, so [] empties it.

// Ref identifies a related record by key.
type Ref struct {
	ID string `json:"id" validate:"required,max=1000"`
}

// CountResponse is the body of the meta endpoints.
type CountResponse struct {
	Count int `json:"count"`
}

func refKeys(refs []Ref) []string {
	keys := make([]string, 0, len(refs))
	for _, r := range refs {
		keys = append(keys, r.ID)
	}
	return keys
}

func members(name string, refs []Ref) service.Children {
	if refs == nil {
		return nil
	}
	return service.Children{name: refKeys(refs)}
}

func refValue(ref *Ref) *string {
	if ref == nil {
		return nil
	}
	id := ref.ID
	return &id
}

// DestinationFields are the writable fields of a destination.
type DestinationFields struct {
	Address *string `json:"address"`
	City    *string `json:"city"`
	Country *string `json:"country"`
	Items   []Ref   `json:"items" validate:"omitempty,dive"`
}

// UpdateDestinationRequest is the body of PATCH /destinations/{id}.
type UpdateDestinationRequest struct {
	DestinationFields
}

// CreateDestinationRequest is the body of POST /destinations.
type CreateDestinationRequest struct {
	ID string `json:"id" validate:"max=1000"`
	DestinationFields
}

func (in DestinationFields) apply(d *domain.Destination) {
	if in.Address != nil {
		d.Address = in.Address
	}
	if in.City != nil {
		d.City = in.City
	}
	if in.Country != nil {
		d.Country = in.Country
	}
}

func (in DestinationFields) children() service.Children {
	return members(domain.DestinationItems.Name, in.Items)
}

func (in CreateDestinationRequest) key() string { return in.ID }

// ItemFields are the writable fields of an item.
type ItemFields struct {
	Name        *string `json:"name"`
	Quantity    *int64  `json:"quantity"`
	Destination *Ref    `json:"destination"`
	Shipment    *Ref    `json:"shipment"`
}

// UpdateItemRequest is the body of PATCH /items/{id}.
type UpdateItemRequest struct {
	ItemFields
}

// CreateItemRequest is the body of POST /items.
type CreateItemRequest struct {
	ID string `json:"id" validate:"max=1000"`
	ItemFields
}

func (in ItemFields) apply(i *domain.Item) {
	if in.Name != nil {
		i.Name = in.Name
	}
	if in.Quantity != nil {
		i.Quantity = in.Quantity
	}
	if in.Destination != nil {
		i.DestinationID = refValue(in.Destination)
	}
	if in.Shipment != nil {
		i.ShipmentID = refValue(in.Shipment)
	}
}

func (in ItemFields) children() service.Children { return nil }

func (in CreateItemRequest) key() string { return in.ID }

// PackageFields are the writable fields of a package.
type PackageFields struct {
	TrackingNumber *string  `json:"trackingNumber"`
	Weight         *float64 `json:"weight"`
	Destination    *Ref     `json:"destination"`
	Shipments      []Ref    `json:"shipments" validate:"omitempty,dive"`
}

// UpdatePackageRequest is the body of PATCH /packages/{id}.
type UpdatePackageRequest struct {
	PackageFields
}

// CreatePackageRequest is the body of POST /packages.
type CreatePackageRequest struct {
	ID string `json:"id" validate:"max=1000"`
	PackageFields
}

func (in PackageFields) apply(p *domain.Package) {
	if in.TrackingNumber != nil {
		p.TrackingNumber = in.TrackingNumber
	}
	if in.Weight != nil {
		p.Weight = in.Weight
	}
	if in.Destination != nil {
		p.DestinationID = refValue(in.Destination)
	}
}

func (in PackageFields) children() service.Children {
	return members(domain.PackageShipments.Name, in.Shipments)
}

func (in CreatePackageRequest) key() string { return in.ID }

// ShipmentFields are the writable fields of a shipment.
type ShipmentFields struct {
	DepartureTime *time.Time `json:"departureTime"`
	ArrivalTime   *time.Time `json:"arrivalTime"`
	Package       *Ref       `json:"package"`
	Items         []Ref      `json:"items" validate:"omitempty,dive"`
}

// UpdateShipmentRequest is the body of PATCH /shipments/{id}.
type UpdateShipmentRequest struct {
	ShipmentFields
}

// CreateShipmentRequest is the body of POST /shipments.
type CreateShipmentRequest struct {
	ID string `json:"id" validate:"max=1000"`
	ShipmentFields
}

func (in ShipmentFields) apply(s *domain.Shipment) {
	if in.DepartureTime != nil {
		t := in.DepartureTime.UTC().Truncate(time.Microsecond)
		s.DepartureTime = &t
	}
	if in.ArrivalTime != nil {
		t := in.ArrivalTime.UTC().Truncate(time.Microsecond)
		s.ArrivalTime = &t
	}
	if in.Package != nil {
		s.PackageID = refValue(in.Package)
	}
}

func (in ShipmentFields) children() service.Children {
	return members(domain.ShipmentItems.Name, in.Items)
}

func (in CreateShipmentRequest) key() string { return in.ID }
