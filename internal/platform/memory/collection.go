package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

type collection[T domain.Entity] struct {
	s    *Store
	pick func(*state) *table[T]
}

func (c *collection[T]) Find(_ context.Context, key string) (T, error) {
	st, done := c.s.read()
	defer done()
	t := c.pick(st)
	rec, ok := t.get(key)
	if !ok {
		return rec, store.NotFound(t.model.Name(), key)
	}
	return rec, nil
}

func (c *collection[T]) FindMany(_ context.Context, args query.FindMany) ([]T, error) {
	st, done := c.s.read()
	defer done()
	t := c.pick(st)
	rows := query.Apply(t.model.Schema, t.all(), args)
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, t.model.Clone(r))
	}
	return out, nil
}

func (c *collection[T]) Count(_ context.Context, where query.Filter) (int, error) {
	st, done := c.s.read()
	defer done()
	t := c.pick(st)
	return query.Count(t.model.Schema, t.all(), where), nil
}

func (c *collection[T]) Existing(_ context.Context, keys []string) ([]string, error) {
	st, done := c.s.read()
	defer done()
	t := c.pick(st)
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] || !t.has(k) {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (c *collection[T]) Insert(ctx context.Context, rec T) error {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)
	entity := t.model.Name()

	key := rec.Meta().ID
	if t.has(key) {
		return store.NewStoreError(entity, "insert", fmt.Sprintf("key %q is taken", key), store.ErrDuplicate)
	}
	if err := st.checkRefs(entity, rec); err != nil {
		return store.NewStoreError(entity, "insert", err.Error(), store.ErrInvalidEntity)
	}
	t.put(rec)

	logger.FromContextOrDefault(ctx, c.s.logger).Debug("record inserted",
		slog.String("entity", entity), slog.String("id", key))
	return nil
}

func (c *collection[T]) Update(ctx context.Context, rec T) error {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)
	entity := t.model.Name()

	meta := rec.Meta()
	current, ok := t.rows[meta.ID]
	if !ok || current.Meta().Version != meta.Version {
		return store.NewStoreError(entity, "update", fmt.Sprintf("no %q at version %d", meta.ID, meta.Version), store.ErrConflict)
	}
	if err := st.checkRefs(entity, rec); err != nil {
		return store.NewStoreError(entity, "update", err.Error(), store.ErrInvalidEntity)
	}

	next := t.model.Clone(rec)
	next.Meta().Version = meta.Version + 1
	next.Meta().CreatedAt = current.Meta().CreatedAt
	t.rows[meta.ID] = next

	logger.FromContextOrDefault(ctx, c.s.logger).Debug("record updated",
		slog.String("entity", entity), slog.String("id", meta.ID),
		slog.Int64("version", meta.Version+1))
	return nil
}

func (c *collection[T]) Delete(ctx context.Context, key string) error {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)
	entity := t.model.Name()

	if !t.has(key) {
		return store.NotFound(entity, key)
	}
	delete(t.rows, key)

	cleared := 0
	for _, rel := range domain.ChildrenOf(entity) {
		cleared += st.table(rel.Child).clearRefs(rel.Field, key)
	}

	logger.FromContextOrDefault(ctx, c.s.logger).Debug("record deleted",
		slog.String("entity", entity), slog.String("id", key),
		slog.Int("references_cleared", cleared))
	return nil
}

func (c *collection[T]) Link(ctx context.Context, field, parent string, keys []string) (int, error) {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)

	rel, err := domain.RelationByField(t.model.Name(), field)
	if err != nil {
		return 0, err
	}
	if !st.table(rel.Parent).has(parent) {
		return 0, store.NewStoreError(t.model.Name(), "link", fmt.Sprintf("%s %q does not exist", rel.Parent, parent), store.ErrInvalidEntity)
	}

	want := toSet(keys)
	targets := t.keysWhere(func(row T) bool {
		v, _ := row.Field(field)
		return want[row.Meta().ID] && v != parent
	})
	return c.setRefs(ctx, t, targets, field, &parent, "linked")
}

func (c *collection[T]) Unlink(ctx context.Context, field, parent string, keys []string) (int, error) {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)

	if _, err := domain.RelationByField(t.model.Name(), field); err != nil {
		return 0, err
	}
	want := toSet(keys)
	targets := t.keysWhere(func(row T) bool {
		v, _ := row.Field(field)
		return v == parent && (keys == nil || want[row.Meta().ID])
	})
	return c.setRefs(ctx, t, targets, field, nil, "unlinked")
}

func (c *collection[T]) UnlinkExcept(ctx context.Context, field, parent string, keep []string) (int, error) {
	st, done := c.s.write()
	defer done()
	t := c.pick(st)

	if _, err := domain.RelationByField(t.model.Name(), field); err != nil {
		return 0, err
	}
	kept := toSet(keep)
	targets := t.keysWhere(func(row T) bool {
		v, _ := row.Field(field)
		return v == parent && !kept[row.Meta().ID]
	})
	return c.setRefs(ctx, t, targets, field, nil, "unlinked")
}

func (c *collection[T]) setRefs(ctx context.Context, t *table[T], keys []string, field string, parent *string, verb string) (int, error) {
	at := c.s.now().UTC().Truncate(time.Microsecond)
	for _, k := range keys {
		if err := t.setRef(k, field, parent, at); err != nil {
			return 0, err
		}
	}
	logger.FromContextOrDefault(ctx, c.s.logger).Debug("records "+verb,
		slog.String("entity", t.model.Name()), slog.String("field", field),
		slog.Int("count", len(keys)))
	return len(keys), nil
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}
