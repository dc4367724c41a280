package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/events"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Options configures the services.
type Options struct {
	// Limits bound the pagination of find-many requests.
	Limits query.Limits
	// Events receives a ChangeEvent after every committed mutation.
	Events events.EventEmitter
	Logger *slog.Logger
	// Now stamps created and updated records.
	Now func() time.Time
	// NewKey generates keys for created records that have none.
	NewKey func() string
}

func (o Options) withDefaults() Options {
	if o.Events == nil {
		o.Events = events.NopEmitter{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		// Postgres keeps microseconds; truncating keeps both stores in step.
		o.Now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	if o.NewKey == nil {
		o.NewKey = uuid.NewString
	}
	return o
}

// Children maps the name of a collection, e.g. "items", to member keys.
type Children map[string][]string

// Patch describes a change to an existing record.
type Patch[T domain.Entity] struct {
	// Apply mutates the stored record. Changes to the bookkeeping attributes
	// are ignored.
	Apply func(rec T) error
	// Children replaces the members of the named collections with the keys
	// that resolve. An empty list empties the collection.
	Children Children
	// Version, when set, is the version the caller last read. The update
	// fails with store.ErrConflict if the record has moved on.
	Version *int64
}

// Records provides create, read, update and delete for one entity type.
type Records[T domain.Entity] struct {
	store  store.Store
	model  domain.Model[T]
	coll   func(store.Store) store.Collection[T]
	opts   Options
	logger *slog.Logger
}

// NewRecords creates the record service for model's entity type.
// It returns an error if st is nil.
func NewRecords[T domain.Entity](st store.Store, model domain.Model[T], opts Options) (*Records[T], error) {
	if st == nil {
		return nil, domain.NewValidationError("store", "cannot be nil", domain.ErrValidation)
	}
	opts = opts.withDefaults()
	return &Records[T]{
		store: st,
		model: model,
		coll:  store.CollectionFor(model),
		opts:  opts,
		logger: opts.Logger.With(
			slog.String("component", "record_service"),
			slog.String("entity", model.Name()),
		),
	}, nil
}

// Model returns the model the service manages.
func (r *Records[T]) Model() domain.Model[T] {
	return r.model
}

// Create stores rec under its key, or under a generated key when it has none,
// and returns the stored record as read back.
// References to parents that do not exist are cleared, and children listed
// in children that do not exist are skipped.
func (r *Records[T]) Create(ctx context.Context, rec T, children Children) (T, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)
	var zero T

	sets, err := childSets(r.model.Name(), children)
	if err != nil {
		return zero, err
	}

	meta := rec.Meta()
	if meta.ID == "" {
		meta.ID = r.opts.NewKey()
	}
	now := r.opts.Now()
	meta.CreatedAt, meta.UpdatedAt, meta.Version = now, now, 1

	if err := rec.Validate(); err != nil {
		log.Warn("record validation failed during create",
			slog.String("error", err.Error()),
			slog.String("id", meta.ID))
		return zero, err
	}

	var created T
	err = r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := resolveRefs(ctx, tx, r.model.Name(), rec, log); err != nil {
			return err
		}
		if err := r.coll(tx).Insert(ctx, rec); err != nil {
			return err
		}
		for _, set := range sets {
			if _, err := replaceMembers(ctx, tx, set.rel, meta.ID, set.keys, false); err != nil {
				return err
			}
		}

		got, err := r.coll(tx).Find(ctx, meta.ID)
		if err != nil {
			if store.IsNotFoundError(err) {
				log.Error("created record missing on re-read", slog.String("id", meta.ID))
			}
			return err
		}
		created = got
		return nil
	})
	if err != nil {
		return zero, NewServiceError(r.model.Name(), "create", "failed to create record", err)
	}

	log.Info("record created", slog.String("id", meta.ID))
	emit(ctx, r.opts.Events, log, events.NewChangeEvent(r.model.Name(), events.ActionCreated, meta.ID))
	return created, nil
}

// Get returns the record with key.
// Returns store.ErrNotFound if it does not exist.
func (r *Records[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	rows, err := r.FindMany(ctx, query.FindMany{
		Where: query.Filter{query.Eq(r.model.Schema.Key, key)},
		Take:  query.TakeOf(1),
	})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, store.NotFound(r.model.Name(), key)
	}
	return rows[0], nil
}

// FindMany validates args against the entity schema and the configured
// limits and returns the matching page of records.
func (r *Records[T]) FindMany(ctx context.Context, args query.FindMany) ([]T, error) {
	valid, err := args.Validate(r.model.Schema, r.opts.Limits)
	if err != nil {
		logger.FromContextOrDefault(ctx, r.logger).Debug("rejected find many request",
			slog.String("error", err.Error()))
		return nil, err
	}
	rows, err := r.coll(r.store).FindMany(ctx, valid)
	if err != nil {
		return nil, NewServiceError(r.model.Name(), "find_many", "failed to query records", err)
	}
	return rows, nil
}

// Count returns the number of records matching where.
func (r *Records[T]) Count(ctx context.Context, where query.Filter) (int, error) {
	valid, err := where.Validate(r.model.Schema)
	if err != nil {
		return 0, err
	}
	n, err := r.coll(r.store).Count(ctx, valid)
	if err != nil {
		return 0, NewServiceError(r.model.Name(), "count", "failed to count records", err)
	}
	return n, nil
}

// Update applies patch to the record with key and returns the stored result.
// Returns store.ErrNotFound if the record does not exist, including when it
// was deleted while the update ran, and store.ErrConflict if it was modified
// concurrently.
func (r *Records[T]) Update(ctx context.Context, key string, patch Patch[T]) (T, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)
	var zero T

	sets, err := childSets(r.model.Name(), patch.Children)
	if err != nil {
		return zero, err
	}

	var updated T
	err = r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		coll := r.coll(tx)
		cur, err := coll.Find(ctx, key)
		if err != nil {
			return err
		}
		saved := *cur.Meta()
		if patch.Version != nil && *patch.Version != saved.Version {
			return store.NewStoreError(r.model.Name(), "update",
				fmt.Sprintf("record is at version %d", saved.Version), store.ErrConflict)
		}

		if patch.Apply != nil {
			if err := patch.Apply(cur); err != nil {
				return err
			}
		}
		meta := cur.Meta()
		meta.ID, meta.CreatedAt, meta.Version = saved.ID, saved.CreatedAt, saved.Version
		meta.UpdatedAt = r.opts.Now()

		if err := cur.Validate(); err != nil {
			return err
		}
		if err := resolveRefs(ctx, tx, r.model.Name(), cur, log); err != nil {
			return err
		}
		if err := coll.Update(ctx, cur); err != nil {
			if store.IsConflictError(err) {
				return r.recheck(ctx, coll, key, err)
			}
			return err
		}
		for _, set := range sets {
			if _, err := replaceMembers(ctx, tx, set.rel, key, set.keys, true); err != nil {
				return err
			}
		}

		updated, err = coll.Find(ctx, key)
		return err
	})
	if err != nil {
		return zero, NewServiceError(r.model.Name(), "update", "failed to update record", err)
	}

	log.Info("record updated",
		slog.String("id", key),
		slog.Int64("version", updated.Meta().Version))
	emit(ctx, r.opts.Events, log, events.NewChangeEvent(r.model.Name(), events.ActionUpdated, key))
	return updated, nil
}

// recheck decides what a lost update means: the record is gone, or it was
// modified and the conflict stands.
func (r *Records[T]) recheck(ctx context.Context, coll store.Collection[T], key string, conflict error) error {
	_, err := coll.Find(ctx, key)
	if store.IsNotFoundError(err) {
		logger.FromContextOrDefault(ctx, r.logger).Debug("record deleted during update",
			slog.String("id", key))
		return err
	}
	return conflict
}

// Delete removes the record with key. References held by other records are
// cleared. Returns store.ErrNotFound if it does not exist.
func (r *Records[T]) Delete(ctx context.Context, key string) error {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if err := r.coll(r.store).Delete(ctx, key); err != nil {
		return NewServiceError(r.model.Name(), "delete", "failed to delete record", err)
	}

	log.Info("record deleted", slog.String("id", key))
	emit(ctx, r.opts.Events, log, events.NewChangeEvent(r.model.Name(), events.ActionDeleted, key))
	return nil
}

type childSet struct {
	rel  domain.Relation
	keys []string
}

// childSets resolves collection names of entity in a stable order.
func childSets(entity string, children Children) ([]childSet, error) {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]childSet, 0, len(names))
	for _, name := range names {
		rel, ok := collectionOf(entity, name)
		if !ok {
			return nil, domain.NewValidationError(name, "is not a collection of "+entity, domain.ErrValidation)
		}
		out = append(out, childSet{rel: rel, keys: children[name]})
	}
	return out, nil
}

func collectionOf(entity, name string) (domain.Relation, bool) {
	for _, rel := range domain.ChildrenOf(entity) {
		if rel.Name != "" && rel.Name == name {
			return rel, true
		}
	}
	return domain.Relation{}, false
}

// resolveRefs clears references of rec that point at missing parents.
func resolveRefs(ctx context.Context, tx store.Store, entity string, rec domain.Entity, log *slog.Logger) error {
	for _, rel := range domain.RelationsOf(entity) {
		v, _ := rec.Field(rel.Field)
		key, ok := v.(string)
		if !ok {
			continue
		}
		parents, _ := store.Named(tx, rel.Parent)
		found, err := parents.Existing(ctx, []string{key})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			log.Debug("clearing unresolved reference",
				slog.String("field", rel.Field),
				slog.String("parent", key))
			if err := rec.SetField(rel.Field, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceMembers links the resolving keys to parent. With exclusive set,
// members not among them are unlinked first. It returns the resolved keys.
func replaceMembers(ctx context.Context, tx store.Store, rel domain.Relation, parent string, keys []string, exclusive bool) ([]string, error) {
	children, _ := store.Named(tx, rel.Child)
	resolved, err := children.Existing(ctx, keys)
	if err != nil {
		return nil, err
	}
	if exclusive {
		if _, err := children.UnlinkExcept(ctx, rel.Field, parent, resolved); err != nil {
			return nil, err
		}
	}
	if len(resolved) > 0 {
		if _, err := children.Link(ctx, rel.Field, parent, resolved); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func emit(ctx context.Context, emitter events.EventEmitter, log *slog.Logger, event *events.ChangeEvent) {
	if err := emitter.EmitEvent(ctx, event); err != nil {
		log.Warn("failed to emit change event",
			slog.String("error", err.Error()),
			slog.String("event_id", event.ID.String()))
	}
}
