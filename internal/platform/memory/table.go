package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
)

// refTable is the type-erased view of a table used for reference checks
// across entity types.
type refTable interface {
	has(key string) bool
	clearRefs(field, parent string) int
}

type state struct {
	destinations *table[*domain.Destination]
	items        *table[*domain.Item]
	packages     *table[*domain.Package]
	shipments    *table[*domain.Shipment]
}

func newState() *state {
	return &state{
		destinations: newTable(domain.DestinationModel),
		items:        newTable(domain.ItemModel),
		packages:     newTable(domain.PackageModel),
		shipments:    newTable(domain.ShipmentModel),
	}
}

func (st *state) clone() *state {
	return &state{
		destinations: st.destinations.clone(),
		items:        st.items.clone(),
		packages:     st.packages.clone(),
		shipments:    st.shipments.clone(),
	}
}

func (st *state) table(entity string) refTable {
	switch entity {
	case domain.DestinationModel.Name():
		return st.destinations
	case domain.ItemModel.Name():
		return st.items
	case domain.PackageModel.Name():
		return st.packages
	case domain.ShipmentModel.Name():
		return st.shipments
	}
	// ALLOW-PANIC: relations only name entities of the shipping model
	panic(fmt.Sprintf("memory: unknown entity %q", entity))
}

// checkRefs verifies every reference held by rec resolves to an existing parent.
func (st *state) checkRefs(entity string, rec interface{ Field(string) (any, bool) }) error {
	for _, rel := range domain.RelationsOf(entity) {
		v, _ := rec.Field(rel.Field)
		if v == nil {
			continue
		}
		if !st.table(rel.Parent).has(v.(string)) {
			return fmt.Errorf("%s %q does not exist", rel.Parent, v)
		}
	}
	return nil
}

// table holds the rows of one entity type. Rows are copied on the way in and
// on the way out so callers never share memory with the store.
type table[T domain.Entity] struct {
	model domain.Model[T]
	rows  map[string]T
}

func newTable[T domain.Entity](model domain.Model[T]) *table[T] {
	return &table[T]{model: model, rows: make(map[string]T)}
}

func (t *table[T]) clone() *table[T] {
	out := &table[T]{model: t.model, rows: make(map[string]T, len(t.rows))}
	for k, v := range t.rows {
		out.rows[k] = t.model.Clone(v)
	}
	return out
}

func (t *table[T]) has(key string) bool {
	_, ok := t.rows[key]
	return ok
}

func (t *table[T]) get(key string) (T, bool) {
	v, ok := t.rows[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.model.Clone(v), true
}

func (t *table[T]) put(rec T) {
	t.rows[rec.Meta().ID] = t.model.Clone(rec)
}

// all returns the stored rows without copying, for read-only evaluation.
func (t *table[T]) all() []T {
	out := make([]T, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, v)
	}
	return out
}

// clearRefs sets field to NULL on every row pointing at parent, like
// ON DELETE SET NULL.
func (t *table[T]) clearRefs(field, parent string) int {
	n := 0
	for _, row := range t.rows {
		if v, _ := row.Field(field); v == parent {
			_ = row.SetField(field, nil)
			n++
		}
	}
	return n
}

// setRef points field of the row with key at parent (nil clears it) and
// bumps the row's version.
func (t *table[T]) setRef(key, field string, parent *string, at time.Time) error {
	row := t.rows[key]
	var v any
	if parent != nil {
		v = *parent
	}
	if err := row.SetField(field, v); err != nil {
		return err
	}
	meta := row.Meta()
	meta.Version++
	meta.UpdatedAt = at
	return nil
}

// keysWhere returns the sorted keys of rows for which match reports true.
func (t *table[T]) keysWhere(match func(T) bool) []string {
	var out []string
	for k, row := range t.rows {
		if match(row) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
