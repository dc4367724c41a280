package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/phrazzld/shipping-api/internal/query"
)

// Query string parameters of find-many requests.
const (
	wherePrefix = "where."
	paramSkip   = "skip"
	paramTake   = "take"
	paramSortBy = "sortBy"
)

func badQuery(field, format string, args ...any) error {
	return &query.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// parseWhere builds a filter from where.<field>[.<op>]=value parameters.
// Values of "in" are comma separated, so set members cannot contain commas.
// String values are matched verbatim, including surrounding whitespace.
// Repeating a parameter adds a predicate.
func parseWhere(values url.Values, schema query.Schema) (query.Filter, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.HasPrefix(key, wherePrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var filter query.Filter
	for _, key := range keys {
		name, opName, _ := strings.Cut(strings.TrimPrefix(key, wherePrefix), ".")
		field, ok := schema.Field(name)
		if !ok {
			return nil, badQuery(name, "is not a filterable attribute of %s", schema.Entity)
		}
		op, ok := query.ParseOp(opName)
		if !ok {
			return nil, badQuery(name, "uses unknown operator %q", opName)
		}

		for _, raw := range values[key] {
			if op != query.OpIn {
				v, err := field.Parse(raw)
				if err != nil {
					return nil, err
				}
				filter = append(filter, query.Predicate{Field: name, Op: op, Value: v})
				continue
			}
			var set []any
			for _, part := range strings.Split(raw, ",") {
				v, err := field.Parse(part)
				if err != nil {
					return nil, err
				}
				set = append(set, v)
			}
			filter = append(filter, query.In(name, set...))
		}
	}
	return filter, nil
}

// parseFindMany reads where, skip, take and sortBy parameters. Limits and
// attribute names of sort keys are checked later by the service.
func parseFindMany(values url.Values, schema query.Schema) (query.FindMany, error) {
	where, err := parseWhere(values, schema)
	if err != nil {
		return query.FindMany{}, err
	}
	args := query.FindMany{
		Where:  where,
		SortBy: query.ParseSort(values.Get(paramSortBy)),
	}

	if raw := values.Get(paramSkip); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return query.FindMany{}, badQuery(paramSkip, "must be an integer")
		}
		args.Skip = n
	}
	if raw := values.Get(paramTake); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return query.FindMany{}, badQuery(paramTake, "must be an integer")
		}
		args.Take = &n
	}
	return args, nil
}
