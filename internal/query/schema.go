package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the scalar type of a filterable attribute.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindTime
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ordered reports whether range operators apply to the kind.
func (k Kind) ordered() bool {
	return k == KindInt || k == KindFloat || k == KindTime
}

// Field describes one filterable and sortable attribute of an entity.
type Field struct {
	// Name is the attribute name exposed to callers (e.g. "trackingNumber").
	Name string
	// Column is the storage column backing the attribute (e.g. "tracking_number").
	Column string
	Kind   Kind
}

// Parse converts a raw textual value into the Go value used for this field's
// predicates. Strings are taken verbatim; other kinds ignore surrounding
// whitespace. Timestamps use RFC 3339 and keep microsecond precision, the
// precision records are stored with.
func (f Field) Parse(raw string) (any, error) {
	if f.Kind == KindString {
		return raw, nil
	}
	raw = strings.TrimSpace(raw)
	switch f.Kind {
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, invalid(f.Name, "must be an integer")
		}
		return v, nil
	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return nil, invalid(f.Name, "must be a number")
		}
		return v, nil
	case KindTime:
		v, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, invalid(f.Name, "must be an RFC 3339 timestamp")
		}
		return v.UTC().Truncate(time.Microsecond), nil
	default:
		return nil, invalid(f.Name, "has unsupported kind %s", f.Kind)
	}
}

// normalize coerces a predicate value to the canonical Go type of the field kind.
func (f Field) normalize(v any) (any, error) {
	switch f.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) {
				return nil, invalid(f.Name, "must be a number")
			}
			return n, nil
		case float32:
			if math.IsNaN(float64(n)) {
				return nil, invalid(f.Name, "must be a number")
			}
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return nil, invalid(f.Name, "expects a %s value, got %T", f.Kind, v)
}

// Schema lists the attributes of one entity collection.
type Schema struct {
	Entity string
	Table  string
	// Key is the name of the unique key attribute.
	Key    string
	fields map[string]Field
	order  []string
}

// NewSchema builds a schema for an entity stored in table. The key field must be
// one of fields.
func NewSchema(entity, table, key string, fields ...Field) Schema {
	s := Schema{
		Entity: entity,
		Table:  table,
		Key:    key,
		fields: make(map[string]Field, len(fields)),
		order:  make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.fields[f.Name]; dup {
			// ALLOW-PANIC: schemas are package-level declarations
			panic(fmt.Sprintf("query: duplicate field %q in schema %s", f.Name, entity))
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	if _, ok := s.fields[key]; !ok {
		// ALLOW-PANIC: schemas are package-level declarations
		panic(fmt.Sprintf("query: key field %q missing from schema %s", key, entity))
	}
	return s
}

// Field looks up an attribute by name.
func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// KeyField returns the unique key attribute.
func (s Schema) KeyField() Field {
	return s.fields[s.Key]
}

// Fields returns the attributes in declaration order.
func (s Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Columns returns the storage columns in declaration order.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name].Column)
	}
	return out
}
