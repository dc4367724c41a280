package domain

import (
	"time"

	"github.com/phrazzld/shipping-api/internal/query"
)

// Shipment is one journey of a package, carrying items.
type Shipment struct {
	Record
	DepartureTime *time.Time `json:"departureTime,omitempty"`
	ArrivalTime   *time.Time `json:"arrivalTime,omitempty"`
	PackageID     *string    `json:"packageId,omitempty"`
}

// ShipmentModel describes how shipments are stored and queried.
var ShipmentModel = Model[*Shipment]{
	Schema: query.NewSchema("shipment", "shipments", FieldID, append(recordFields(),
		query.Field{Name: "departureTime", Column: "departure_time", Kind: query.KindTime},
		query.Field{Name: "arrivalTime", Column: "arrival_time", Kind: query.KindTime},
		query.Field{Name: "packageId", Column: "package_id", Kind: query.KindString},
	)...),
	New: func() *Shipment { return &Shipment{} },
}

// Field implements query.Record.
func (s *Shipment) Field(name string) (any, bool) {
	switch name {
	case "departureTime":
		return opt(s.DepartureTime), true
	case "arrivalTime":
		return opt(s.ArrivalTime), true
	case "packageId":
		return opt(s.PackageID), true
	}
	return s.Record.field(name)
}

// SetField assigns one attribute by name.
func (s *Shipment) SetField(name string, v any) error {
	switch name {
	case "departureTime":
		return setOpt(&s.DepartureTime, name, v)
	case "arrivalTime":
		return setOpt(&s.ArrivalTime, name, v)
	case "packageId":
		return setOpt(&s.PackageID, name, v)
	}
	if ok, err := s.Record.setField(name, v); ok {
		return err
	}
	return unknownField("shipment", name)
}

// Validate checks the shipment's attribute limits.
func (s *Shipment) Validate() error {
	return validateStruct(s)
}
