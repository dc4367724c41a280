package domain

import "github.com/phrazzld/shipping-api/internal/query"

// Item is a quantity of goods, optionally bound for a destination and
// travelling in a shipment.
type Item struct {
	Record
	Name          *string `json:"name,omitempty" validate:"omitnil,max=1000"`
	Quantity      *int64  `json:"quantity,omitempty" validate:"omitnil,min=-999999999,max=999999999"`
	DestinationID *string `json:"destinationId,omitempty"`
	ShipmentID    *string `json:"shipmentId,omitempty"`
}

// ItemModel describes how items are stored and queried.
var ItemModel = Model[*Item]{
	Schema: query.NewSchema("item", "items", FieldID, append(recordFields(),
		query.Field{Name: "name", Column: "name", Kind: query.KindString},
		query.Field{Name: "quantity", Column: "quantity", Kind: query.KindInt},
		query.Field{Name: "destinationId", Column: "destination_id", Kind: query.KindString},
		query.Field{Name: "shipmentId", Column: "shipment_id", Kind: query.KindString},
	)...),
	New: func() *Item { return &Item{} },
}

// Field implements query.Record.
func (i *Item) Field(name string) (any, bool) {
	switch name {
	case "name":
		return opt(i.Name), true
	case "quantity":
		return opt(i.Quantity), true
	case "destinationId":
		return opt(i.DestinationID), true
	case "shipmentId":
		return opt(i.ShipmentID), true
	}
	return i.Record.field(name)
}

// SetField assigns one attribute by name.
func (i *Item) SetField(name string, v any) error {
	switch name {
	case "name":
		return setOpt(&i.Name, name, v)
	case "quantity":
		return setOpt(&i.Quantity, name, v)
	case "destinationId":
		return setOpt(&i.DestinationID, name, v)
	case "shipmentId":
		return setOpt(&i.ShipmentID, name, v)
	}
	if ok, err := i.Record.setField(name, v); ok {
		return err
	}
	return unknownField("item", name)
}

// Validate checks the item's attribute limits.
func (i *Item) Validate() error {
	return validateStruct(i)
}
