package query

import (
	"sort"
	"strings"
)

// Record is anything whose attributes can be read by name. A nil value means
// the attribute is NULL.
type Record interface {
	Field(name string) (any, bool)
}

// Match reports whether rec satisfies every predicate in a validated filter.
// NULL attributes never satisfy a predicate.
func Match(schema Schema, filter Filter, rec Record) bool {
	for _, p := range filter {
		field, ok := schema.Field(p.Field)
		if !ok {
			return false
		}
		v, ok := rec.Field(p.Field)
		if !ok || v == nil {
			return false
		}
		if !matchOne(field, p, v) {
			return false
		}
	}
	return true
}

func matchOne(field Field, p Predicate, v any) bool {
	switch p.Op {
	case OpEq:
		return compare(field.Kind, v, p.Value) == 0
	case OpIn:
		for _, want := range p.Value.([]any) {
			if compare(field.Kind, v, want) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(strings.ToLower(v.(string)), strings.ToLower(p.Value.(string)))
	case OpGt:
		return compare(field.Kind, v, p.Value) > 0
	case OpGte:
		return compare(field.Kind, v, p.Value) >= 0
	case OpLt:
		return compare(field.Kind, v, p.Value) < 0
	case OpLte:
		return compare(field.Kind, v, p.Value) <= 0
	default:
		return false
	}
}

// Count returns how many rows satisfy a validated filter.
func Count[T Record](schema Schema, rows []T, filter Filter) int {
	n := 0
	for _, r := range rows {
		if Match(schema, filter, r) {
			n++
		}
	}
	return n
}

// Apply evaluates a validated request over rows: filter, then a stable sort
// (NULLs last in either direction, key as final tie-breaker), then skip and
// take. The input slice is not modified.
func Apply[T Record](schema Schema, rows []T, args FindMany) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if Match(schema, args.Where, r) {
			out = append(out, r)
		}
	}

	sorts := WithKeySort(schema, args.SortBy)
	sort.SliceStable(out, func(i, j int) bool {
		return less(schema, sorts, out[i], out[j])
	})

	if args.Skip >= len(out) {
		return out[:0]
	}
	out = out[args.Skip:]
	if args.Take != nil && *args.Take < len(out) {
		out = out[:*args.Take]
	}
	return out
}

func less(schema Schema, sorts []Sort, a, b Record) bool {
	for _, s := range sorts {
		field, _ := schema.Field(s.Field)
		av, _ := a.Field(s.Field)
		bv, _ := b.Field(s.Field)

		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return false
		case bv == nil:
			return true
		}

		c := compare(field.Kind, av, bv)
		if c == 0 {
			continue
		}
		if s.Direction == Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}
