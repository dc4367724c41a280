package query

import "time"

// Op is a predicate operator.
type Op string

const (
	OpEq       Op = "eq"
	OpIn       Op = "in"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
)

// ParseOp maps an operator name to an Op. The empty string means equality.
func ParseOp(name string) (Op, bool) {
	switch Op(name) {
	case "", OpEq:
		return OpEq, true
	case OpIn, OpGt, OpGte, OpLt, OpLte, OpContains:
		return Op(name), true
	default:
		return "", false
	}
}

// Predicate constrains a single attribute. For OpIn, Value is a []any.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// In is shorthand for a set-membership predicate.
func In(field string, values ...any) Predicate {
	return Predicate{Field: field, Op: OpIn, Value: values}
}

// Filter is a conjunction of predicates. An empty filter matches every record.
type Filter []Predicate

// And returns a new filter with p appended; the receiver is not modified.
func (f Filter) And(p ...Predicate) Filter {
	out := make(Filter, 0, len(f)+len(p))
	out = append(out, f...)
	return append(out, p...)
}

// Validate checks every predicate against the schema and returns a copy with
// values normalized to their canonical types.
func (f Filter) Validate(schema Schema) (Filter, error) {
	out := make(Filter, 0, len(f))
	bounds := make(map[string]*rangeBounds)

	for _, p := range f {
		field, ok := schema.Field(p.Field)
		if !ok {
			return nil, invalid(p.Field, "is not a filterable attribute of %s", schema.Entity)
		}

		switch p.Op {
		case OpEq:
			v, err := field.normalize(p.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, Predicate{Field: p.Field, Op: p.Op, Value: v})

		case OpIn:
			raw, ok := p.Value.([]any)
			if !ok || len(raw) == 0 {
				return nil, invalid(p.Field, "in requires at least one value")
			}
			values := make([]any, 0, len(raw))
			for _, r := range raw {
				v, err := field.normalize(r)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			out = append(out, Predicate{Field: p.Field, Op: p.Op, Value: values})

		case OpContains:
			if field.Kind != KindString {
				return nil, invalid(p.Field, "contains applies to string attributes only")
			}
			v, err := field.normalize(p.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, Predicate{Field: p.Field, Op: p.Op, Value: v})

		case OpGt, OpGte, OpLt, OpLte:
			if !field.Kind.ordered() {
				return nil, invalid(p.Field, "%s applies to numeric and time attributes only", p.Op)
			}
			v, err := field.normalize(p.Value)
			if err != nil {
				return nil, err
			}
			b := bounds[p.Field]
			if b == nil {
				b = &rangeBounds{kind: field.Kind}
				bounds[p.Field] = b
			}
			b.add(p.Op, v)
			out = append(out, Predicate{Field: p.Field, Op: p.Op, Value: v})

		default:
			return nil, invalid(p.Field, "uses unknown operator %q", p.Op)
		}
	}

	for name, b := range bounds {
		if b.empty() {
			return nil, invalid(name, "has a lower bound above its upper bound")
		}
	}
	return out, nil
}

// rangeBounds tracks the tightest lower and upper bound given for one attribute.
type rangeBounds struct {
	kind           Kind
	lower, upper   any
	lowerIncl      bool
	upperIncl      bool
	hasLow, hasUpp bool
}

func (b *rangeBounds) add(op Op, v any) {
	switch op {
	case OpGt, OpGte:
		incl := op == OpGte
		if !b.hasLow || compare(b.kind, v, b.lower) > 0 || (compare(b.kind, v, b.lower) == 0 && !incl) {
			b.lower, b.lowerIncl, b.hasLow = v, incl, true
		}
	case OpLt, OpLte:
		incl := op == OpLte
		if !b.hasUpp || compare(b.kind, v, b.upper) < 0 || (compare(b.kind, v, b.upper) == 0 && !incl) {
			b.upper, b.upperIncl, b.hasUpp = v, incl, true
		}
	}
}

// empty reports whether no value can satisfy both bounds.
func (b *rangeBounds) empty() bool {
	if !b.hasLow || !b.hasUpp {
		return false
	}
	c := compare(b.kind, b.lower, b.upper)
	if c > 0 {
		return true
	}
	return c == 0 && !(b.lowerIncl && b.upperIncl)
}

// compare orders two non-nil values of the same kind.
func compare(kind Kind, a, b any) int {
	switch kind {
	case KindInt:
		x, y := a.(int64), b.(int64)
		return cmp3(x < y, x > y)
	case KindFloat:
		x, y := a.(float64), b.(float64)
		return cmp3(x < y, x > y)
	case KindTime:
		x, y := a.(time.Time), b.(time.Time)
		return cmp3(x.Before(y), x.After(y))
	default:
		x, y := a.(string), b.(string)
		return cmp3(x < y, x > y)
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}
