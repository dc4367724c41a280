package domain

import "github.com/phrazzld/shipping-api/internal/query"

// Destination is a delivery address that items and packages are routed to.
type Destination struct {
	Record
	Address *string `json:"address,omitempty" validate:"omitnil,max=1000"`
	City    *string `json:"city,omitempty" validate:"omitnil,max=1000"`
	Country *string `json:"country,omitempty" validate:"omitnil,max=1000"`
}

// DestinationModel describes how destinations are stored and queried.
var DestinationModel = Model[*Destination]{
	Schema: query.NewSchema("destination", "destinations", FieldID, append(recordFields(),
		query.Field{Name: "address", Column: "address", Kind: query.KindString},
		query.Field{Name: "city", Column: "city", Kind: query.KindString},
		query.Field{Name: "country", Column: "country", Kind: query.KindString},
	)...),
	New: func() *Destination { return &Destination{} },
}

// Field implements query.Record.
func (d *Destination) Field(name string) (any, bool) {
	switch name {
	case "address":
		return opt(d.Address), true
	case "city":
		return opt(d.City), true
	case "country":
		return opt(d.Country), true
	}
	return d.Record.field(name)
}

// SetField assigns one attribute by name.
func (d *Destination) SetField(name string, v any) error {
	switch name {
	case "address":
		return setOpt(&d.Address, name, v)
	case "city":
		return setOpt(&d.City, name, v)
	case "country":
		return setOpt(&d.Country, name, v)
	}
	if ok, err := d.Record.setField(name, v); ok {
		return err
	}
	return unknownField("destination", name)
}

// Validate checks the destination's attribute limits.
func (d *Destination) Validate() error {
	return validateStruct(d)
}
