package domain

import "github.com/phrazzld/shipping-api/internal/query"

// Package is a tracked parcel sent to a destination in one or more shipments.
type Package struct {
	Record
	TrackingNumber *string  `json:"trackingNumber,omitempty" validate:"omitnil,max=1000"`
	Weight         *float64 `json:"weight,omitempty" validate:"omitnil,min=-999999999,max=999999999"`
	DestinationID  *string  `json:"destinationId,omitempty"`
}

// PackageModel describes how packages are stored and queried.
var PackageModel = Model[*Package]{
	Schema: query.NewSchema("package", "packages", FieldID, append(recordFields(),
		query.Field{Name: "trackingNumber", Column: "tracking_number", Kind: query.KindString},
		query.Field{Name: "weight", Column: "weight", Kind: query.KindFloat},
		query.Field{Name: "destinationId", Column: "destination_id", Kind: query.KindString},
	)...),
	New: func() *Package { return &Package{} },
}

// Field implements query.Record.
func (p *Package) Field(name string) (any, bool) {
	switch name {
	case "trackingNumber":
		return opt(p.TrackingNumber), true
	case "weight":
		return opt(p.Weight), true
	case "destinationId":
		return opt(p.DestinationID), true
	}
	return p.Record.field(name)
}

// SetField assigns one attribute by name.
func (p *Package) SetField(name string, v any) error {
	switch name {
	case "trackingNumber":
		return setOpt(&p.TrackingNumber, name, v)
	case "weight":
		return setOpt(&p.Weight, name, v)
	case "destinationId":
		return setOpt(&p.DestinationID, name, v)
	}
	if ok, err := p.Record.setField(name, v); ok {
		return err
	}
	return unknownField("package", name)
}

// Validate checks the package's attribute limits.
func (p *Package) Validate() error {
	return validateStruct(p)
}
