package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/shipping-api/internal/api/shared"
	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/service"
)

// patcher is a decoded request body that writes fields onto a record.
type patcher[T domain.Entity] interface {
	apply(rec T)
	children() service.Children
}

// creator is a patcher that may also choose the key of a new record.
type creator[T domain.Entity] interface {
	patcher[T]
	key() string
}

// resource serves create, find, count, get, update and delete for one entity
// type. C and U are the create and update request bodies.
type resource[T domain.Entity, C creator[T], U patcher[T]] struct {
	records *service.Records[T]
	logger  *slog.Logger
}

func newResource[T domain.Entity, C creator[T], U patcher[T]](
	records *service.Records[T],
	log *slog.Logger,
) *resource[T, C, U] {
	return &resource[T, C, U]{
		records: records,
		logger:  log.With(slog.String("entity", records.Model().Name())),
	}
}

func (h *resource[T, C, U]) name() string {
	return h.records.Model().Name()
}

// create handles POST /. The response carries the stored record and its
// Location.
func (h *resource[T, C, U]) create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var in C
	if !decodeAndValidate(w, r, &in, log) {
		return
	}

	rec := h.records.Model().New()
	rec.Meta().ID = in.key()
	in.apply(rec)

	created, err := h.records.Create(r.Context(), rec, in.children())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create "+h.name())
		return
	}

	id := created.Meta().ID
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+url.PathEscape(id))
	setETag(w, created)
	log.Debug("record created", slog.String("id", id))
	shared.RespondWithJSON(w, r, http.StatusCreated, created)
}

// list handles GET /.
func (h *resource[T, C, U]) list(w http.ResponseWriter, r *http.Request) {
	args, err := parseFindMany(r.URL.Query(), h.records.Model().Schema)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	rows, err := h.records.FindMany(r.Context(), args)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list "+h.name()+" records")
		return
	}
	respondRows(w, r, rows)
}

// count handles POST /meta.
func (h *resource[T, C, U]) count(w http.ResponseWriter, r *http.Request) {
	where, err := parseWhere(r.URL.Query(), h.records.Model().Schema)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	n, err := h.records.Count(r.Context(), where)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to count "+h.name()+" records")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// get handles GET /{id}.
func (h *resource[T, C, U]) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get "+h.name())
		return
	}
	setETag(w, rec)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// update handles PATCH /{id}. An If-Match header holding a version makes the
// update conditional on it.
func (h *resource[T, C, U]) update(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id := chi.URLParam(r, "id")

	version, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var in U
	if !decodeAndValidate(w, r, &in, log) {
		return
	}

	updated, err := h.records.Update(r.Context(), id, service.Patch[T]{
		Apply: func(rec T) error {
			in.apply(rec)
			return nil
		},
		Children: in.children(),
		Version:  version,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update "+h.name())
		return
	}
	setETag(w, updated)
	shared.RespondNoContent(w)
}

// remove handles DELETE /{id}.
func (h *resource[T, C, U]) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		HandleAPIError(w, r, err, "Failed to delete "+h.name())
		return
	}
	shared.RespondNoContent(w)
}

func registerResource[T domain.Entity, C creator[T], U patcher[T]](r chi.Router, h *resource[T, C, U]) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Post("/meta", h.count)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

// collection serves the members of one relation below its parent.
type collection[P, C domain.Entity] struct {
	linker *service.Linker[P, C]
	logger *slog.Logger
}

func newCollection[P, C domain.Entity](linker *service.Linker[P, C], log *slog.Logger) *collection[P, C] {
	return &collection[P, C]{
		linker: linker,
		logger: log.With(slog.String("relation", linker.Relation().String())),
	}
}

type linkOp func(r *http.Request, parent string, keys []string) ([]string, error)

func (h *collection[P, C]) mutation(op linkOp, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContextOrDefault(r.Context(), h.logger)

		var refs []Ref
		if !decodeAndValidate(w, r, &refs, log) {
			return
		}
		if _, err := op(r, chi.URLParam(r, "id"), refKeys(refs)); err != nil {
			HandleAPIError(w, r, err, failure)
			return
		}
		shared.RespondNoContent(w)
	}
}

// list handles GET /{id}/<relation>.
func (h *collection[P, C]) list(w http.ResponseWriter, r *http.Request) {
	schema, _ := domain.SchemaOf(h.linker.Relation().Child)
	args, err := parseFindMany(r.URL.Query(), schema)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	rows, err := h.linker.ListForParent(r.Context(), chi.URLParam(r, "id"), args)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list "+h.linker.Relation().Name)
		return
	}
	respondRows(w, r, rows)
}

func registerCollection[P, C domain.Entity](r chi.Router, h *collection[P, C]) {
	name := h.linker.Relation().Name
	path := "/{id}/" + name

	r.Get(path, h.list)
	r.Post(path, h.mutation(func(r *http.Request, parent string, keys []string) ([]string, error) {
		return h.linker.Connect(r.Context(), parent, keys)
	}, "Failed to connect "+name))
	r.Delete(path, h.mutation(func(r *http.Request, parent string, keys []string) ([]string, error) {
		return h.linker.Disconnect(r.Context(), parent, keys)
	}, "Failed to disconnect "+name))
	r.Patch(path, h.mutation(func(r *http.Request, parent string, keys []string) ([]string, error) {
		return h.linker.ReplaceAll(r.Context(), parent, keys)
	}, "Failed to replace "+name))
}

// registerReference serves GET /{id}/<ref>, the parent a child points at.
func registerReference[C, P domain.Entity](r chi.Router, ref string, res *service.Reference[C, P]) {
	r.Get("/{id}/"+ref, func(w http.ResponseWriter, r *http.Request) {
		parent, err := res.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			HandleAPIError(w, r, err, "Failed to get "+ref)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, parent)
	})
}

// decodeAndValidate decodes the body into v and validates it, writing a 400
// response and returning false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any, log *slog.Logger) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		log.Debug("invalid request format", slog.String("error", err.Error()))
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidBody, err), "")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		log.Debug("request validation failed", slog.String("error", err.Error()))
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}

func respondRows[T any](w http.ResponseWriter, r *http.Request, rows []T) {
	if rows == nil {
		rows = []T{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, rows)
}

func setETag(w http.ResponseWriter, rec domain.Entity) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(rec.Meta().Version, 10)))
}

// parseIfMatch reads a version from an If-Match header such as "3" or W/"3".
// An empty header or * yields nil.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	raw := strings.Trim(strings.TrimPrefix(header, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError("If-Match", "must hold a record version", domain.ErrValidation)
	}
	return &v, nil
}
