package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/shipping-api/internal/query"
)

// Limits carried over from the shipping data model.
const (
	MaxTextLength = 1000
	MaxMagnitude  = 999999999
)

// Attribute names shared by every record.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldVersion   = "version"
)

// Record holds the bookkeeping attributes every entity carries.
type Record struct {
	ID        string    `json:"id" validate:"required,max=1000"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Version increases by one on every successful update and is used to
	// detect concurrent writes.
	Version int64 `json:"version"`
}

// Meta returns the record's bookkeeping attributes.
func (r *Record) Meta() *Record {
	return r
}

func (r *Record) field(name string) (any, bool) {
	switch name {
	case FieldID:
		return r.ID, true
	case FieldCreatedAt:
		return r.CreatedAt, true
	case FieldUpdatedAt:
		return r.UpdatedAt, true
	case FieldVersion:
		return r.Version, true
	}
	return nil, false
}

func (r *Record) setField(name string, v any) (bool, error) {
	switch name {
	case FieldID:
		return true, set(&r.ID, name, v)
	case FieldCreatedAt:
		return true, set(&r.CreatedAt, name, v)
	case FieldUpdatedAt:
		return true, set(&r.UpdatedAt, name, v)
	case FieldVersion:
		return true, set(&r.Version, name, v)
	}
	return false, nil
}

// recordFields are the schema fields of Record, shared by every entity schema.
func recordFields() []query.Field {
	return []query.Field{
		{Name: FieldID, Column: "id", Kind: query.KindString},
		{Name: FieldCreatedAt, Column: "created_at", Kind: query.KindTime},
		{Name: FieldUpdatedAt, Column: "updated_at", Kind: query.KindTime},
		{Name: FieldVersion, Column: "version", Kind: query.KindInt},
	}
}

// Entity is implemented by pointers to every stored record type. Field and
// SetField exchange attribute values as string, int64, float64, time.Time or
// nil for NULL.
type Entity interface {
	query.Record
	Meta() *Record
	SetField(name string, value any) error
	Validate() error
}

// Model describes how one entity type is created and queried.
type Model[T Entity] struct {
	Schema query.Schema
	New    func() T
}

// Name returns the entity name, e.g. "destination".
func (m Model[T]) Name() string {
	return m.Schema.Entity
}

// Clone returns a deep copy of v.
func (m Model[T]) Clone(v T) T {
	out := m.New()
	for _, f := range m.Schema.Fields() {
		val, _ := v.Field(f.Name)
		if err := out.SetField(f.Name, val); err != nil {
			// ALLOW-PANIC: every schema field is settable on its own model
			panic(fmt.Sprintf("domain: clone %s.%s: %v", m.Name(), f.Name, err))
		}
	}
	return out
}

func set[V any](dst *V, name string, v any) error {
	x, ok := v.(V)
	if !ok {
		return NewValidationError(name, fmt.Sprintf("cannot hold a %T value", v), ErrValidation)
	}
	*dst = x
	return nil
}

func setOpt[V any](dst **V, name string, v any) error {
	if v == nil {
		*dst = nil
		return nil
	}
	x, ok := v.(V)
	if !ok {
		return NewValidationError(name, fmt.Sprintf("cannot hold a %T value", v), ErrValidation)
	}
	*dst = &x
	return nil
}

func opt[V any](p *V) any {
	if p == nil {
		return nil
	}
	return *p
}

func unknownField(entity, name string) error {
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, entity, name)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tag rules of v and converts the first
// failure into a ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := verrs[0]
	return NewValidationError(fe.Field(), describe(fe), ErrValidation)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
