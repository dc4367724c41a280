package query

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parcelSchema = NewSchema("parcel", "parcels", "id",
	Field{Name: "id", Column: "id", Kind: KindString},
	Field{Name: "label", Column: "label", Kind: KindString},
	Field{Name: "weight", Column: "weight", Kind: KindFloat},
	Field{Name: "count", Column: "count", Kind: KindInt},
	Field{Name: "createdAt", Column: "created_at", Kind: KindTime},
)

type parcel struct {
	id        string
	label     *string
	weight    *float64
	count     *int64
	createdAt time.Time
}

func (p parcel) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.id, true
	case "label":
		if p.label == nil {
			return nil, true
		}
		return *p.label, true
	case "weight":
		if p.weight == nil {
			return nil, true
		}
		return *p.weight, true
	case "count":
		if p.count == nil {
			return nil, true
		}
		return *p.count, true
	case "createdAt":
		return p.createdAt, true
	}
	return nil, false
}

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }
func i64p(i int64) *int64     { return &i }

func ids(rows []parcel) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out
}

var base = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func fixtures() []parcel {
	return []parcel{
		{id: "e", label: strp("Fragile glass"), weight: f64p(2.5), count: i64p(1), createdAt: base.Add(4 * time.Hour)},
		{id: "a", label: strp("books"), weight: f64p(10), count: i64p(3), createdAt: base.Add(2 * time.Hour)},
		{id: "c", label: nil, weight: f64p(10), count: i64p(2), createdAt: base},
		{id: "b", label: strp("Glassware"), weight: nil, count: i64p(3), createdAt: base.Add(1 * time.Hour)},
		{id: "d", label: strp("tools"), weight: f64p(7), count: nil, createdAt: base.Add(3 * time.Hour)},
	}
}

func mustValidate(t *testing.T, args FindMany) FindMany {
	t.Helper()
	out, err := args.Validate(parcelSchema, Limits{MaxTake: 50})
	require.NoError(t, err)
	return out
}

func TestFindManyValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    FindMany
		limits  Limits
		wantErr string
	}{
		{name: "empty request", args: FindMany{}},
		{name: "unknown filter field", args: FindMany{Where: Filter{Eq("colour", "red")}}, wantErr: "colour"},
		{name: "wrong value type", args: FindMany{Where: Filter{Eq("count", "three")}}, wantErr: "expects a int value"},
		{name: "negative skip", args: FindMany{Skip: -1}, wantErr: "skip"},
		{name: "zero take", args: FindMany{Take: TakeOf(0)}, wantErr: "take"},
		{name: "take above maximum", args: FindMany{Take: TakeOf(51)}, limits: Limits{MaxTake: 50}, wantErr: "must not exceed 50"},
		{name: "take at maximum", args: FindMany{Take: TakeOf(50)}, limits: Limits{MaxTake: 50}},
		{name: "unknown sort field", args: FindMany{SortBy: []Sort{{Field: "colour", Direction: Asc}}}, wantErr: "sortable"},
		{name: "bad sort direction", args: FindMany{SortBy: []Sort{{Field: "label", Direction: "up"}}}, wantErr: "direction"},
		{name: "duplicate sort field", args: FindMany{SortBy: []Sort{{Field: "label", Direction: Asc}, {Field: "label", Direction: Desc}}}, wantErr: "more than once"},
		{name: "range on string", args: FindMany{Where: Filter{{Field: "label", Op: OpGt, Value: "a"}}}, wantErr: "numeric and time"},
		{name: "contains on number", args: FindMany{Where: Filter{{Field: "count", Op: OpContains, Value: int64(1)}}}, wantErr: "string attributes"},
		{name: "empty in", args: FindMany{Where: Filter{In("id")}}, wantErr: "at least one"},
		{name: "NaN value", args: FindMany{Where: Filter{Eq("weight", math.NaN())}}, wantErr: "must be a number"},
		{
			name:    "NaN range bound",
			args:    FindMany{Where: Filter{{Field: "weight", Op: OpGte, Value: math.NaN()}, {Field: "weight", Op: OpLte, Value: 1.0}}},
			wantErr: "must be a number",
		},
		{name: "NaN set member", args: FindMany{Where: Filter{In("weight", 1.0, float32(math.NaN()))}}, wantErr: "must be a number"},
		{
			name:    "inverted range",
			args:    FindMany{Where: Filter{{Field: "weight", Op: OpGte, Value: 10.0}, {Field: "weight", Op: OpLte, Value: 2.0}}},
			wantErr: "lower bound above",
		},
		{
			name:    "empty strict range",
			args:    FindMany{Where: Filter{{Field: "count", Op: OpGt, Value: 3}, {Field: "count", Op: OpLt, Value: 3}}},
			wantErr: "lower bound above",
		},
		{
			name: "closed single point range",
			args: FindMany{Where: Filter{{Field: "count", Op: OpGte, Value: 3}, {Field: "count", Op: OpLte, Value: 3}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.args.Validate(parcelSchema, tt.limits)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery), "error should wrap ErrInvalidQuery")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindManyValidate_DefaultTake(t *testing.T) {
	out, err := FindMany{}.Validate(parcelSchema, Limits{MaxTake: 50, DefaultTake: 20})
	require.NoError(t, err)
	require.NotNil(t, out.Take)
	assert.Equal(t, 20, *out.Take)

	out, err = FindMany{}.Validate(parcelSchema, Limits{})
	require.NoError(t, err)
	assert.Nil(t, out.Take, "no default take means unbounded")
}

func TestFindManyValidate_NormalizesValues(t *testing.T) {
	out := mustValidate(t, FindMany{Where: Filter{Eq("count", 3), Eq("weight", 7)}})
	assert.Equal(t, int64(3), out.Where[0].Value)
	assert.Equal(t, float64(7), out.Where[1].Value)
}

func TestApply_SkipTakeOverSortedResult(t *testing.T) {
	args := mustValidate(t, FindMany{
		Skip:   2,
		Take:   TakeOf(2),
		SortBy: []Sort{{Field: "createdAt", Direction: Asc}},
	})

	got := Apply(parcelSchema, fixtures(), args)

	// createdAt ascending: c, b, a, d, e -> third and fourth
	assert.Equal(t, []string{"a", "d"}, ids(got))
}

func TestApply_NaturalOrderIsKeyOrder(t *testing.T) {
	got := Apply(parcelSchema, fixtures(), mustValidate(t, FindMany{}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(got))
}

func TestApply_MultiKeySort(t *testing.T) {
	args := mustValidate(t, FindMany{SortBy: []Sort{
		{Field: "weight", Direction: Desc},
		{Field: "createdAt", Direction: Desc},
	}})

	got := Apply(parcelSchema, fixtures(), args)

	// weight 10 (a newer than c), 7, 2.5, then NULL weight last
	assert.Equal(t, []string{"a", "c", "d", "e", "b"}, ids(got))
}

func TestApply_NullsLastInBothDirections(t *testing.T) {
	asc := Apply(parcelSchema, fixtures(), mustValidate(t, FindMany{SortBy: []Sort{{Field: "label", Direction: Asc}}}))
	desc := Apply(parcelSchema, fixtures(), mustValidate(t, FindMany{SortBy: []Sort{{Field: "label", Direction: Desc}}}))

	assert.Equal(t, "c", asc[len(asc)-1].id)
	assert.Equal(t, "c", desc[len(desc)-1].id)
}

func TestApply_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		where Filter
		want  []string
	}{
		{name: "no filter", where: nil, want: []string{"a", "b", "c", "d", "e"}},
		{name: "equality", where: Filter{Eq("weight", 10.0)}, want: []string{"a", "c"}},
		{name: "conjunction", where: Filter{Eq("weight", 10.0), Eq("count", 3)}, want: []string{"a"}},
		{name: "in", where: Filter{In("id", "b", "d", "zz")}, want: []string{"b", "d"}},
		{name: "contains ignores case", where: Filter{{Field: "label", Op: OpContains, Value: "GLASS"}}, want: []string{"b", "e"}},
		{name: "null never matches", where: Filter{{Field: "label", Op: OpContains, Value: ""}}, want: []string{"a", "b", "d", "e"}},
		{
			name:  "time range",
			where: Filter{{Field: "createdAt", Op: OpGt, Value: base}, {Field: "createdAt", Op: OpLte, Value: base.Add(3 * time.Hour)}},
			want:  []string{"a", "b", "d"},
		},
		{name: "no matches", where: Filter{Eq("label", "nothing")}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := mustValidate(t, FindMany{Where: tt.where})
			got := Apply(parcelSchema, fixtures(), args)
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, len(got), Count(parcelSchema, fixtures(), args.Where),
				"count must equal the unpaginated result length")
		})
	}
}

func TestApply_SkipBeyondEnd(t *testing.T) {
	got := Apply(parcelSchema, fixtures(), mustValidate(t, FindMany{Skip: 10}))
	assert.Empty(t, got)
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	rows := fixtures()
	_ = Apply(parcelSchema, rows, mustValidate(t, FindMany{SortBy: []Sort{{Field: "createdAt", Direction: Asc}}}))
	assert.Equal(t, ids(fixtures()), ids(rows))
}

func TestParseSort(t *testing.T) {
	assert.Nil(t, ParseSort(""))
	assert.Equal(t,
		[]Sort{{Field: "createdAt", Direction: Asc}, {Field: "name", Direction: Desc}, {Field: "id", Direction: Asc}},
		ParseSort("createdAt:asc, name:DESC,id"),
	)
}

func TestWithKeySort(t *testing.T) {
	assert.Equal(t, []Sort{{Field: "id", Direction: Asc}}, WithKeySort(parcelSchema, nil))
	assert.Equal(t,
		[]Sort{{Field: "id", Direction: Desc}},
		WithKeySort(parcelSchema, []Sort{{Field: "id", Direction: Desc}, {Field: "label", Direction: Asc}}),
	)
}

func TestFieldParse(t *testing.T) {
	weight, _ := parcelSchema.Field("weight")
	v, err := weight.Parse("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	count, _ := parcelSchema.Field("count")
	_, err = count.Parse("2.5")
	assert.ErrorIs(t, err, ErrInvalidQuery)

	created, _ := parcelSchema.Field("createdAt")
	v, err = created.Parse("2025-03-01T10:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, base.Equal(v.(time.Time)))

	_, err = created.Parse("yesterday")
	assert.ErrorIs(t, err, ErrInvalidQuery)

	v, err = created.Parse("2025-03-01T09:00:00.000001999Z")
	require.NoError(t, err)
	assert.True(t, base.Add(time.Microsecond).Equal(v.(time.Time)))

	for _, raw := range []string{"NaN", "nan", " NaN "} {
		_, err = weight.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidQuery, raw)
	}
	v, err = weight.Parse(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	label, _ := parcelSchema.Field("label")
	v, err = label.Parse("  glass ")
	require.NoError(t, err)
	assert.Equal(t, "  glass ", v)
}

func TestFindManyValidate_TruncatesTimes(t *testing.T) {
	out := mustValidate(t, FindMany{Where: Filter{Eq("createdAt", base.Add(999*time.Nanosecond))}})
	assert.True(t, base.Equal(out.Where[0].Value.(time.Time)))
	assert.Equal(t, []string{"c"}, ids(Apply(parcelSchema, fixtures(), out)))
}
