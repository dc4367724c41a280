package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// collection implements store.Collection for one entity table.
type collection[T domain.Entity] struct {
	db     store.DBTX
	model  domain.Model[T]
	now    func() time.Time
	logger *slog.Logger
}

func newCollection[T domain.Entity](db store.DBTX, model domain.Model[T], now func() time.Time, log *slog.Logger) *collection[T] {
	return &collection[T]{
		db:     db,
		model:  model,
		now:    now,
		logger: log.With(slog.String("entity", model.Name())),
	}
}

func (c *collection[T]) table() string {
	return ident(c.model.Schema.Table)
}

func (c *collection[T]) Find(ctx context.Context, key string) (T, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	stmt := "SELECT " + columnList(c.model.Schema) + " FROM " + c.table() + " WHERE " + ident("id") + " = $1"
	rows, err := c.db.QueryContext(ctx, stmt, key)
	if err != nil {
		log.Error("failed to query record",
			slog.String("error", err.Error()),
			slog.String("id", key))
		return c.model.New(), MapError(err)
	}
	found, err := c.scan(rows)
	if err != nil {
		return c.model.New(), err
	}
	if len(found) == 0 {
		log.Debug("record not found", slog.String("id", key))
		return c.model.New(), store.NotFound(c.model.Name(), key)
	}
	return found[0], nil
}

func (c *collection[T]) FindMany(ctx context.Context, args query.FindMany) ([]T, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	var b builder
	where, err := b.where(c.model.Schema, args.Where)
	if err != nil {
		return nil, err
	}
	stmt := "SELECT " + columnList(c.model.Schema) + " FROM " + c.table() +
		where + orderBy(c.model.Schema, args.SortBy) + b.page(args.Skip, args.Take)

	rows, err := c.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		log.Error("failed to query records",
			slog.String("error", err.Error()),
			slog.Int("predicates", len(args.Where)))
		return nil, MapError(err)
	}
	out, err := c.scan(rows)
	if err != nil {
		return nil, err
	}
	log.Debug("records found", slog.Int("count", len(out)))
	return out, nil
}

func (c *collection[T]) Count(ctx context.Context, where query.Filter) (int, error) {
	var b builder
	clause, err := b.where(c.model.Schema, where)
	if err != nil {
		return 0, err
	}
	var n int
	err = c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table()+clause, b.args...).Scan(&n)
	if err != nil {
		logger.FromContextOrDefault(ctx, c.logger).Error("failed to count records",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return n, nil
}

func (c *collection[T]) Existing(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	stmt := "SELECT " + ident("id") + " FROM " + c.table() +
		" WHERE " + ident("id") + " = ANY($1) ORDER BY " + ident("id") + ` COLLATE "C"`
	rows, err := c.db.QueryContext(ctx, stmt, keys)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0, len(keys))
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, MapError(err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

func (c *collection[T]) Insert(ctx context.Context, rec T) error {
	log := logger.FromContextOrDefault(ctx, c.logger)
	key := rec.Meta().ID

	fields := c.model.Schema.Fields()
	var b builder
	placeholders := make([]string, 0, len(fields))
	for _, f := range fields {
		v, _ := rec.Field(f.Name)
		placeholders = append(placeholders, b.arg(v))
	}
	stmt := "INSERT INTO " + c.table() + " (" + columnList(c.model.Schema) + ") VALUES (" +
		strings.Join(placeholders, ", ") + ")"

	if _, err := c.db.ExecContext(ctx, stmt, b.args...); err != nil {
		switch {
		case IsUniqueViolation(err):
			log.Warn("duplicate key on insert", slog.String("id", key))
			return store.NewStoreError(c.model.Name(), "insert", fmt.Sprintf("key %q is taken", key), MapError(err))
		case IsForeignKeyViolation(err):
			log.Warn("dangling reference on insert", slog.String("id", key))
			return store.NewStoreError(c.model.Name(), "insert", "reference does not resolve", MapError(err))
		}
		log.Error("failed to insert record",
			slog.String("error", err.Error()),
			slog.String("id", key))
		return MapError(err)
	}

	log.Debug("record inserted", slog.String("id", key))
	return nil
}

func (c *collection[T]) Update(ctx context.Context, rec T) error {
	log := logger.FromContextOrDefault(ctx, c.logger)
	meta := rec.Meta()

	var b builder
	var sets []string
	for _, f := range c.model.Schema.Fields() {
		switch f.Name {
		case domain.FieldID, domain.FieldCreatedAt, domain.FieldVersion:
			continue
		}
		v, _ := rec.Field(f.Name)
		sets = append(sets, ident(f.Column)+" = "+b.arg(v))
	}
	sets = append(sets, ident("version")+" = "+ident("version")+" + 1")
	stmt := "UPDATE " + c.table() + " SET " + strings.Join(sets, ", ") +
		" WHERE " + ident("id") + " = " + b.arg(meta.ID) +
		" AND " + ident("version") + " = " + b.arg(meta.Version)

	result, err := c.db.ExecContext(ctx, stmt, b.args...)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("dangling reference on update", slog.String("id", meta.ID))
			return store.NewStoreError(c.model.Name(), "update", "reference does not resolve", MapError(err))
		}
		log.Error("failed to update record",
			slog.String("error", err.Error()),
			slog.String("id", meta.ID))
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Debug("update matched no record",
			slog.String("id", meta.ID),
			slog.Int64("version", meta.Version))
		return store.NewStoreError(c.model.Name(), "update",
			fmt.Sprintf("no %q at version %d", meta.ID, meta.Version), store.ErrConflict)
	}

	log.Debug("record updated",
		slog.String("id", meta.ID),
		slog.Int64("version", meta.Version+1))
	return nil
}

func (c *collection[T]) Delete(ctx context.Context, key string) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	result, err := c.db.ExecContext(ctx, "DELETE FROM "+c.table()+" WHERE "+ident("id")+" = $1", key)
	if err != nil {
		log.Error("failed to delete record",
			slog.String("error", err.Error()),
			slog.String("id", key))
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NotFound(c.model.Name(), key)
	}

	log.Debug("record deleted", slog.String("id", key))
	return nil
}

func (c *collection[T]) Link(ctx context.Context, field, parent string, keys []string) (int, error) {
	rel, col, err := c.reference(field)
	if err != nil {
		return 0, err
	}
	parentSchema, _ := domain.SchemaOf(rel.Parent)

	var exists bool
	err = c.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+ident(parentSchema.Table)+" WHERE "+ident("id")+" = $1)",
		parent).Scan(&exists)
	if err != nil {
		return 0, MapError(err)
	}
	if !exists {
		return 0, store.NewStoreError(c.model.Name(), "link",
			fmt.Sprintf("%s %q does not exist", rel.Parent, parent), store.ErrInvalidEntity)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var b builder
	p := b.arg(parent)
	stmt := "UPDATE " + c.table() + " SET " + col + " = " + p + ", " + c.touch(&b) +
		" WHERE " + ident("id") + " = ANY(" + b.arg(keys) + ") AND " + col + " IS DISTINCT FROM " + p
	return c.exec(ctx, "linked", field, stmt, b.args)
}

func (c *collection[T]) Unlink(ctx context.Context, field, parent string, keys []string) (int, error) {
	_, col, err := c.reference(field)
	if err != nil {
		return 0, err
	}
	var b builder
	stmt := "UPDATE " + c.table() + " SET " + col + " = NULL, " + c.touch(&b) +
		" WHERE " + col + " = " + b.arg(parent)
	if keys != nil {
		stmt += " AND " + ident("id") + " = ANY(" + b.arg(keys) + ")"
	}
	return c.exec(ctx, "unlinked", field, stmt, b.args)
}

func (c *collection[T]) UnlinkExcept(ctx context.Context, field, parent string, keep []string) (int, error) {
	_, col, err := c.reference(field)
	if err != nil {
		return 0, err
	}
	if keep == nil {
		keep = []string{}
	}
	var b builder
	stmt := "UPDATE " + c.table() + " SET " + col + " = NULL, " + c.touch(&b) +
		" WHERE " + col + " = " + b.arg(parent) +
		" AND NOT (" + ident("id") + " = ANY(" + b.arg(keep) + "))"
	return c.exec(ctx, "unlinked", field, stmt, b.args)
}

// reference resolves a reference attribute to its relation and quoted column.
func (c *collection[T]) reference(field string) (domain.Relation, string, error) {
	rel, err := domain.RelationByField(c.model.Name(), field)
	if err != nil {
		return rel, "", err
	}
	f, _ := c.model.Schema.Field(field)
	return rel, ident(f.Column), nil
}

// touch renders the bookkeeping assignments for a relation change.
func (c *collection[T]) touch(b *builder) string {
	return ident("version") + " = " + ident("version") + " + 1, " +
		ident("updated_at") + " = " + b.arg(c.now())
}

func (c *collection[T]) exec(ctx context.Context, verb, field, stmt string, args []any) (int, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)
	result, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		log.Error("failed to change references",
			slog.String("error", err.Error()),
			slog.String("field", field))
		return 0, MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return 0, err
	}
	log.Debug("records "+verb, slog.String("field", field), slog.Int("count", n))
	return n, nil
}

// scan reads every row into a fresh record and closes rows.
func (c *collection[T]) scan(rows *sql.Rows) ([]T, error) {
	defer func() { _ = rows.Close() }()

	fields := c.model.Schema.Fields()
	out := []T{}
	for rows.Next() {
		dest := make([]any, len(fields))
		for i, f := range fields {
			dest[i] = scanTarget(f.Kind)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, MapError(err)
		}
		rec := c.model.New()
		for i, f := range fields {
			if err := rec.SetField(f.Name, scannedValue(dest[i])); err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", c.model.Name(), f.Name, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

func scanTarget(kind query.Kind) any {
	switch kind {
	case query.KindInt:
		return &sql.NullInt64{}
	case query.KindFloat:
		return &sql.NullFloat64{}
	case query.KindTime:
		return &sql.NullTime{}
	default:
		return &sql.NullString{}
	}
}

// scannedValue unwraps a scan target into the value domain.Entity expects,
// or nil for NULL.
func scannedValue(dest any) any {
	switch v := dest.(type) {
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullTime:
		if v.Valid {
			return v.Time.UTC()
		}
	}
	return nil
}
