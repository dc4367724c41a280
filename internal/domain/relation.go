package domain

import (
	"fmt"

	"github.com/phrazzld/shipping-api/internal/query"
)

// Relation is a one-to-many association: each child holds the key of at most
// one parent in its Field attribute. Membership of the parent's collection is
// exactly the set of children whose Field equals the parent key.
type Relation struct {
	// Name is the collection attribute on the parent, e.g. "items". Empty when
	// the parent exposes no collection for this relation.
	Name string
	// Parent and Child are entity names.
	Parent string
	Child  string
	// Ref is the singular attribute on the child that resolves to the parent.
	Ref string
	// Field is the child attribute holding the parent key.
	Field string
}

// String returns "parent.name" or "child.ref" for logs and metrics.
func (r Relation) String() string {
	if r.Name == "" {
		return r.Child + "." + r.Ref
	}
	return r.Parent + "." + r.Name
}

// The relations of the shipping model.
var (
	DestinationItems = Relation{
		Name: "items", Parent: "destination", Child: "item",
		Ref: "destination", Field: "destinationId",
	}
	ShipmentItems = Relation{
		Name: "items", Parent: "shipment", Child: "item",
		Ref: "shipment", Field: "shipmentId",
	}
	PackageShipments = Relation{
		Name: "shipments", Parent: "package", Child: "shipment",
		Ref: "package", Field: "packageId",
	}
	DestinationPackages = Relation{
		Parent: "destination", Child: "package",
		Ref: "destination", Field: "destinationId",
	}
)

// Relations lists every relation of the shipping model.
func Relations() []Relation {
	return []Relation{DestinationItems, ShipmentItems, PackageShipments, DestinationPackages}
}

// RelationsOf returns the relations in which entity is the child, i.e. whose
// parent key is stored on entity's rows.
func RelationsOf(entity string) []Relation {
	var out []Relation
	for _, r := range Relations() {
		if r.Child == entity {
			out = append(out, r)
		}
	}
	return out
}

// ChildrenOf returns the relations in which entity is the parent.
func ChildrenOf(entity string) []Relation {
	var out []Relation
	for _, r := range Relations() {
		if r.Parent == entity {
			out = append(out, r)
		}
	}
	return out
}

// RelationByField returns the relation whose parent key entity stores in
// field. It fails with ErrUnknownField when field is not a reference.
func RelationByField(entity, field string) (Relation, error) {
	for _, r := range RelationsOf(entity) {
		if r.Field == field {
			return r, nil
		}
	}
	return Relation{}, fmt.Errorf("%w: %s.%s is not a reference", ErrUnknownField, entity, field)
}

// SchemaOf returns the schema of the named entity.
func SchemaOf(entity string) (query.Schema, bool) {
	for _, s := range []query.Schema{
		DestinationModel.Schema,
		ItemModel.Schema,
		PackageModel.Schema,
		ShipmentModel.Schema,
	} {
		if s.Entity == entity {
			return s, true
		}
	}
	return query.Schema{}, false
}
