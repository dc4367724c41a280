package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/phrazzld/shipping-api/internal/query"
)

// builder accumulates statement arguments and hands out $n placeholders in
// the order they are requested.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// where renders a validated filter as a WHERE clause, or "" when the filter
// is empty. NULL columns never satisfy a comparison.
func (b *builder) where(schema query.Schema, filter query.Filter) (string, error) {
	if len(filter) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filter))
	for _, p := range filter {
		field, ok := schema.Field(p.Field)
		if !ok {
			return "", fmt.Errorf("%w: %s has no attribute %q", query.ErrInvalidQuery, schema.Entity, p.Field)
		}
		col := ident(field.Column)

		switch p.Op {
		case query.OpEq:
			conds = append(conds, col+" = "+b.arg(p.Value))
		case query.OpIn:
			values, ok := p.Value.([]any)
			if !ok {
				return "", fmt.Errorf("%w: %s expects a list", query.ErrInvalidQuery, p.Field)
			}
			arr, err := typedSlice(field.Kind, values)
			if err != nil {
				return "", err
			}
			conds = append(conds, col+" = ANY("+b.arg(arr)+")")
		case query.OpContains:
			s, ok := p.Value.(string)
			if !ok {
				return "", fmt.Errorf("%w: %s expects a string", query.ErrInvalidQuery, p.Field)
			}
			conds = append(conds, col+" ILIKE "+b.arg("%"+escapeLike(s)+"%"))
		case query.OpGt:
			conds = append(conds, col+" > "+b.arg(p.Value))
		case query.OpGte:
			conds = append(conds, col+" >= "+b.arg(p.Value))
		case query.OpLt:
			conds = append(conds, col+" < "+b.arg(p.Value))
		case query.OpLte:
			conds = append(conds, col+" <= "+b.arg(p.Value))
		default:
			return "", fmt.Errorf("%w: unknown operator %q", query.ErrInvalidQuery, p.Op)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

// orderBy renders the sort keys with the schema key as final tie-breaker.
// Strings compare bytewise so the order matches the in-memory store.
func orderBy(schema query.Schema, sorts []query.Sort) string {
	keys := query.WithKeySort(schema, sorts)
	parts := make([]string, 0, len(keys))
	for _, s := range keys {
		field, _ := schema.Field(s.Field)
		col := ident(field.Column)
		if field.Kind == query.KindString {
			col += ` COLLATE "C"`
		}
		dir := "ASC"
		if s.Direction == query.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir+" NULLS LAST")
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// page renders LIMIT and OFFSET for skip and take.
func (b *builder) page(skip int, take *int) string {
	var sb strings.Builder
	if take != nil {
		sb.WriteString(" LIMIT " + b.arg(*take))
	}
	if skip > 0 {
		sb.WriteString(" OFFSET " + b.arg(skip))
	}
	return sb.String()
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnList(schema query.Schema) string {
	cols := schema.Columns()
	for i, c := range cols {
		cols[i] = ident(c)
	}
	return strings.Join(cols, ", ")
}

// escapeLike escapes the LIKE wildcards so s matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// typedSlice converts predicate values into a slice the driver encodes as a
// Postgres array of the column type.
func typedSlice(kind query.Kind, values []any) (any, error) {
	switch kind {
	case query.KindString:
		return convert[string](values)
	case query.KindInt:
		return convert[int64](values)
	case query.KindFloat:
		return convert[float64](values)
	case query.KindTime:
		return convert[time.Time](values)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", query.ErrInvalidQuery, kind)
	}
}

func convert[V any](values []any) ([]V, error) {
	out := make([]V, 0, len(values))
	for _, v := range values {
		x, ok := v.(V)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %T in list", query.ErrInvalidQuery, v)
		}
		out = append(out, x)
	}
	return out, nil
}
