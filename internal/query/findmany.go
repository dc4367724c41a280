package query

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders results by one attribute.
type Sort struct {
	Field     string
	Direction Direction
}

// ParseSort parses "field:dir,field2:dir" into sort keys. A missing direction
// means ascending.
func ParseSort(raw string) []Sort {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []Sort
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		d := Direction(strings.ToLower(strings.TrimSpace(dir)))
		if d == "" {
			d = Asc
		}
		out = append(out, Sort{Field: strings.TrimSpace(name), Direction: d})
	}
	return out
}

// String renders the sort key as "field:dir".
func (s Sort) String() string {
	return fmt.Sprintf("%s:%s", s.Field, s.Direction)
}

// FindMany is a filtered, sorted and paginated read over one collection.
type FindMany struct {
	Where  Filter
	Skip   int
	Take   *int
	SortBy []Sort
}

// Limits bound pagination for a deployment.
type Limits struct {
	// MaxTake is the largest page a caller may request. Zero disables the bound.
	MaxTake int
	// DefaultTake applies when the caller gives no take. Zero means unbounded.
	DefaultTake int
}

// Validate checks the request against the schema and limits and returns a
// normalized copy.
func (f FindMany) Validate(schema Schema, limits Limits) (FindMany, error) {
	where, err := f.Where.Validate(schema)
	if err != nil {
		return FindMany{}, err
	}

	if f.Skip < 0 {
		return FindMany{}, invalid("skip", "must not be negative")
	}

	out := FindMany{Where: where, Skip: f.Skip}

	switch {
	case f.Take != nil:
		take := *f.Take
		if take <= 0 {
			return FindMany{}, invalid("take", "must be positive")
		}
		if limits.MaxTake > 0 && take > limits.MaxTake {
			return FindMany{}, invalid("take", "must not exceed %d", limits.MaxTake)
		}
		out.Take = &take
	case limits.DefaultTake > 0:
		take := limits.DefaultTake
		out.Take = &take
	}

	seen := make(map[string]bool, len(f.SortBy))
	for _, s := range f.SortBy {
		if _, ok := schema.Field(s.Field); !ok {
			return FindMany{}, invalid(s.Field, "is not a sortable attribute of %s", schema.Entity)
		}
		if s.Direction != Asc && s.Direction != Desc {
			return FindMany{}, invalid(s.Field, "has unknown sort direction %q", s.Direction)
		}
		if seen[s.Field] {
			return FindMany{}, invalid(s.Field, "is sorted more than once")
		}
		seen[s.Field] = true
		out.SortBy = append(out.SortBy, s)
	}
	return out, nil
}

// WithKeySort returns the sort keys with the schema key appended as a final
// ascending tie-breaker, unless the key is already sorted on. This makes the
// order total and deterministic for a fixed store state.
func WithKeySort(schema Schema, sorts []Sort) []Sort {
	out := make([]Sort, 0, len(sorts)+1)
	for _, s := range sorts {
		out = append(out, s)
		if s.Field == schema.Key {
			return out
		}
	}
	return append(out, Sort{Field: schema.Key, Direction: Asc})
}

// TakeOf returns a pointer to n, for building requests.
func TakeOf(n int) *int {
	return &n
}
