package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/events"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Linker maintains the collection of one one-to-many relation, e.g. the items
// of a destination. Membership lives on the children: a child belongs to the
// parent whose key it stores in the relation's reference field.
type Linker[P, C domain.Entity] struct {
	store    store.Store
	rel      domain.Relation
	parent   domain.Model[P]
	child    domain.Model[C]
	parents  func(store.Store) store.Collection[P]
	children func(store.Store) store.Collection[C]
	opts     Options
	logger   *slog.Logger
}

// NewLinker creates the linker for rel, which must relate parent to child.
func NewLinker[P, C domain.Entity](
	st store.Store,
	rel domain.Relation,
	parent domain.Model[P],
	child domain.Model[C],
	opts Options,
) (*Linker[P, C], error) {
	if st == nil {
		return nil, domain.NewValidationError("store", "cannot be nil", domain.ErrValidation)
	}
	if rel.Parent != parent.Name() || rel.Child != child.Name() {
		return nil, domain.NewValidationError("relation",
			rel.String()+" does not relate "+parent.Name()+" to "+child.Name(), domain.ErrValidation)
	}
	opts = opts.withDefaults()
	return &Linker[P, C]{
		store:    st,
		rel:      rel,
		parent:   parent,
		child:    child,
		parents:  store.CollectionFor(parent),
		children: store.CollectionFor(child),
		opts:     opts,
		logger: opts.Logger.With(
			slog.String("component", "relation_linker"),
			slog.String("relation", rel.String()),
		),
	}, nil
}

// Relation returns the relation the linker maintains.
func (l *Linker[P, C]) Relation() domain.Relation {
	return l.rel
}

// Connect adds the children with the given keys to the collection of parent,
// moving them away from any previous parent. Keys that do not resolve are
// skipped. It returns the keys that were connected.
// Returns store.ErrNotFound if parent does not exist or none of keys resolve.
func (l *Linker[P, C]) Connect(ctx context.Context, parent string, keys []string) ([]string, error) {
	return l.mutate(ctx, "connect", events.ActionConnected, parent, keys,
		func(ctx context.Context, coll store.Collection[C], resolved []string) error {
			if len(resolved) == 0 {
				return errNoneResolved(l.rel)
			}
			_, err := coll.Link(ctx, l.rel.Field, parent, resolved)
			return err
		})
}

// Disconnect removes the children with the given keys from the collection of
// parent. Keys that do not resolve or are not members are skipped. It returns
// the keys that resolved.
// Returns store.ErrNotFound if parent does not exist.
func (l *Linker[P, C]) Disconnect(ctx context.Context, parent string, keys []string) ([]string, error) {
	return l.mutate(ctx, "disconnect", events.ActionDisconnected, parent, keys,
		func(ctx context.Context, coll store.Collection[C], resolved []string) error {
			if len(resolved) == 0 {
				// A nil slice would unlink every member.
				return nil
			}
			_, err := coll.Unlink(ctx, l.rel.Field, parent, resolved)
			return err
		})
}

// ReplaceAll makes the children with the given keys the exact collection of
// parent. It returns the keys of the new members.
// Returns store.ErrNotFound if parent does not exist or none of keys resolve,
// in which case the collection is left unchanged.
func (l *Linker[P, C]) ReplaceAll(ctx context.Context, parent string, keys []string) ([]string, error) {
	return l.mutate(ctx, "replace", events.ActionReplaced, parent, keys,
		func(ctx context.Context, coll store.Collection[C], resolved []string) error {
			if len(resolved) == 0 {
				return errNoneResolved(l.rel)
			}
			if _, err := coll.UnlinkExcept(ctx, l.rel.Field, parent, resolved); err != nil {
				return err
			}
			_, err := coll.Link(ctx, l.rel.Field, parent, resolved)
			return err
		})
}

// ListForParent returns the members of the collection of parent, filtered,
// sorted and paginated by args.
// Returns store.ErrNotFound if parent does not exist.
func (l *Linker[P, C]) ListForParent(ctx context.Context, parent string, args query.FindMany) ([]C, error) {
	log := logger.FromContextOrDefault(ctx, l.logger)

	args.Where = args.Where.And(query.Eq(l.rel.Field, parent))
	valid, err := args.Validate(l.child.Schema, l.opts.Limits)
	if err != nil {
		log.Debug("rejected list request", slog.String("error", err.Error()))
		return nil, err
	}

	var rows []C
	err = l.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := l.parents(tx).Find(ctx, parent); err != nil {
			return err
		}
		rows, err = l.children(tx).FindMany(ctx, valid)
		return err
	})
	if err != nil {
		return nil, NewServiceError(l.child.Name(), "list", "failed to list "+l.rel.String(), err)
	}
	return rows, nil
}

type linkFn[C domain.Entity] func(ctx context.Context, coll store.Collection[C], resolved []string) error

// mutate runs fn in a transaction after checking parent exists and resolving
// keys, and emits action once the transaction commits.
func (l *Linker[P, C]) mutate(
	ctx context.Context,
	op string,
	action events.Action,
	parent string,
	keys []string,
	fn linkFn[C],
) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, l.logger)

	var resolved []string
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := l.parents(tx).Find(ctx, parent); err != nil {
			return err
		}
		coll := l.children(tx)
		var err error
		resolved, err = coll.Existing(ctx, keys)
		if err != nil {
			return err
		}
		return fn(ctx, coll, resolved)
	})
	if err != nil {
		log.Debug("relation change failed",
			slog.String("operation", op),
			slog.String("parent", parent),
			slog.String("error", err.Error()))
		return nil, NewServiceError(l.parent.Name(), op, "failed to change "+l.rel.String(), err)
	}

	log.Info("relation changed",
		slog.String("operation", op),
		slog.String("parent", parent),
		slog.Int("requested", len(keys)),
		slog.Int("resolved", len(resolved)))
	emit(ctx, l.opts.Events, log,
		events.NewChangeEvent(l.parent.Name(), action, parent).WithRelation(l.rel.String(), resolved))
	return resolved, nil
}
