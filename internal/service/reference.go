package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/store"
)

// Reference resolves the singular side of a relation: the parent a child
// points at, e.g. the destination of a package.
type Reference[C, P domain.Entity] struct {
	store    store.Store
	rel      domain.Relation
	children func(store.Store) store.Collection[C]
	parents  func(store.Store) store.Collection[P]
	logger   *slog.Logger
}

// NewReference creates the resolver for rel, which must relate parent to child.
func NewReference[C, P domain.Entity](
	st store.Store,
	rel domain.Relation,
	child domain.Model[C],
	parent domain.Model[P],
	log *slog.Logger,
) (*Reference[C, P], error) {
	if st == nil {
		return nil, domain.NewValidationError("store", "cannot be nil", domain.ErrValidation)
	}
	if rel.Parent != parent.Name() || rel.Child != child.Name() {
		return nil, domain.NewValidationError("relation",
			rel.String()+" does not relate "+parent.Name()+" to "+child.Name(), domain.ErrValidation)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reference[C, P]{
		store:    st,
		rel:      rel,
		children: store.CollectionFor(child),
		parents:  store.CollectionFor(parent),
		logger: log.With(
			slog.String("component", "reference_resolver"),
			slog.String("relation", rel.Child+"."+rel.Ref),
		),
	}, nil
}

// Get returns the parent the child with key points at.
// Returns store.ErrNotFound if the child does not exist or has no parent.
func (r *Reference[C, P]) Get(ctx context.Context, key string) (P, error) {
	var zero P
	var parent P
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := r.children(tx).Find(ctx, key)
		if err != nil {
			return err
		}
		v, _ := child.Field(r.rel.Field)
		ref, ok := v.(string)
		if !ok {
			return store.NotFound(r.rel.Parent, "")
		}
		parent, err = r.parents(tx).Find(ctx, ref)
		if store.IsNotFoundError(err) {
			logger.FromContextOrDefault(ctx, r.logger).Error("reference points at a missing record",
				slog.String("child", key),
				slog.String("parent", ref))
		}
		return err
	})
	if err != nil {
		return zero, NewServiceError(r.rel.Child, "resolve", "failed to resolve "+r.rel.Ref, err)
	}
	return parent, nil
}
