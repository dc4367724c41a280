package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

var mockNow = time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

// passthrough hands arguments to sqlmock unchanged so slices reach the
// expectations the way pgx would receive them.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewStore(db, logger.NewTestLogger(t), WithClock(func() time.Time { return mockNow })), mock
}

var itemColumns = []string{
	"id", "created_at", "updated_at", "version", "name", "quantity", "destination_id", "shipment_id",
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestCollectionFind(t *testing.T) {
	s, mock := newMockStore(t)
	created := mockNow.Add(-time.Hour)

	mock.ExpectQuery(q(`FROM "items" WHERE "id" = $1`)).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("item-1", created, mockNow, int64(3), "crate", int64(4), nil, "ship-1"))

	got, err := s.Items().Find(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", got.ID)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, "crate", *got.Name)
	assert.Equal(t, int64(4), *got.Quantity)
	assert.Nil(t, got.DestinationID)
	assert.Equal(t, "ship-1", *got.ShipmentID)
}

func TestCollectionFind_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q(`FROM "items" WHERE "id" = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(itemColumns))

	_, err := s.Items().Find(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollectionFindMany(t *testing.T) {
	s, mock := newMockStore(t)

	args, err := query.FindMany{
		Where:  query.Filter{{Field: "name", Op: query.OpContains, Value: "crate"}},
		Skip:   1,
		Take:   query.TakeOf(2),
		SortBy: []query.Sort{{Field: "quantity", Direction: query.Desc}},
	}.Validate(domain.ItemModel.Schema, query.Limits{MaxTake: 10})
	require.NoError(t, err)

	mock.ExpectQuery(q(`FROM "items" WHERE "name" ILIKE $1 ORDER BY "quantity" DESC NULLS LAST, "id" COLLATE "C" ASC NULLS LAST LIMIT $2 OFFSET $3`)).
		WithArgs("%crate%", 2, 1).
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("item-2", mockNow, mockNow, int64(1), "crate b", int64(9), nil, nil).
			AddRow("item-1", mockNow, mockNow, int64(1), "crate a", nil, nil, nil))

	rows, err := s.Items().FindMany(context.Background(), args)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "item-2", rows[0].ID)
	assert.Nil(t, rows[1].Quantity)
}

func TestCollectionCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "packages" WHERE "destination_id" = $1`)).
		WithArgs("dst-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := s.Packages().Count(context.Background(), query.Filter{query.Eq("destinationId", "dst-1")})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestCollectionExisting(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.Items().Existing(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(q(`SELECT "id" FROM "items" WHERE "id" = ANY($1) ORDER BY "id" COLLATE "C"`)).
		WithArgs([]string{"item-2", "ghost"}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("item-2"))

	got, err = s.Items().Existing(context.Background(), []string{"item-2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"item-2"}, got)
}

func TestCollectionInsert(t *testing.T) {
	tracking := "TRK-1"
	p := &domain.Package{TrackingNumber: &tracking}
	p.ID, p.CreatedAt, p.UpdatedAt, p.Version = "pkg-1", mockNow, mockNow, 1

	t.Run("success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(q(`INSERT INTO "packages" ("id", "created_at", "updated_at", "version", "tracking_number", "weight", "destination_id") VALUES ($1, $2, $3, $4, $5, $6, $7)`)).
			WithArgs("pkg-1", mockNow, mockNow, int64(1), "TRK-1", nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Packages().Insert(context.Background(), p))
	})

	t.Run("duplicate key", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(q(`INSERT INTO "packages"`)).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		err := s.Packages().Insert(context.Background(), p)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("dangling reference", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(q(`INSERT INTO "packages"`)).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode})

		err := s.Packages().Insert(context.Background(), p)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestCollectionUpdate(t *testing.T) {
	name := "crate"
	it := &domain.Item{Name: &name}
	it.ID, it.CreatedAt, it.UpdatedAt, it.Version = "item-1", mockNow.Add(-time.Hour), mockNow, 4

	stmt := q(`UPDATE "items" SET "updated_at" = $1, "name" = $2, "quantity" = $3, "destination_id" = $4, "shipment_id" = $5, "version" = "version" + 1 WHERE "id" = $6 AND "version" = $7`)

	t.Run("success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(stmt).
			WithArgs(mockNow, "crate", nil, nil, nil, "item-1", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Items().Update(context.Background(), it))
		assert.Equal(t, int64(4), it.Version, "the caller's record is left untouched")
	})

	t.Run("stale version", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Items().Update(context.Background(), it)
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestCollectionDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(q(`DELETE FROM "shipments" WHERE "id" = $1`)).
		WithArgs("ship-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`DELETE FROM "shipments" WHERE "id" = $1`)).
		WithArgs("ship-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Shipments().Delete(context.Background(), "ship-1"))
	assert.ErrorIs(t, s.Shipments().Delete(context.Background(), "ship-1"), store.ErrNotFound)
}

func TestCollectionLink(t *testing.T) {
	exists := q(`SELECT EXISTS (SELECT 1 FROM "shipments" WHERE "id" = $1)`)

	t.Run("links records not yet pointing at the parent", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(exists).WithArgs("ship-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(q(`UPDATE "items" SET "shipment_id" = $1, "version" = "version" + 1, "updated_at" = $2 WHERE "id" = ANY($3) AND "shipment_id" IS DISTINCT FROM $1`)).
			WithArgs("ship-1", mockNow, []string{"item-1", "item-2"}).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := s.Items().Link(context.Background(), "shipmentId", "ship-1", []string{"item-1", "item-2"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("missing parent", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(exists).WithArgs("ship-9").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.Items().Link(context.Background(), "shipmentId", "ship-9", []string{"item-1"})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("not a reference", func(t *testing.T) {
		s, _ := newMockStore(t)
		_, err := s.Items().Link(context.Background(), "name", "ship-1", []string{"item-1"})
		assert.ErrorIs(t, err, domain.ErrUnknownField)
	})
}

func TestCollectionUnlink(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(q(`UPDATE "shipments" SET "package_id" = NULL, "version" = "version" + 1, "updated_at" = $1 WHERE "package_id" = $2 AND "id" = ANY($3)`)).
		WithArgs(mockNow, "pkg-1", []string{"ship-1"}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`UPDATE "shipments" SET "package_id" = NULL, "version" = "version" + 1, "updated_at" = $1 WHERE "package_id" = $2`)).
		WithArgs(mockNow, "pkg-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Shipments().Unlink(context.Background(), "packageId", "pkg-1", []string{"ship-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Shipments().Unlink(context.Background(), "packageId", "pkg-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCollectionUnlinkExcept(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(q(`UPDATE "items" SET "destination_id" = NULL, "version" = "version" + 1, "updated_at" = $1 WHERE "destination_id" = $2 AND NOT ("id" = ANY($3))`)).
		WithArgs(mockNow, "dst-1", []string{}).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.Items().UnlinkExcept(context.Background(), "destinationId", "dst-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreInTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(q(`DELETE FROM "items"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.InTx(context.Background(), func(ctx context.Context, tx store.Store) error {
			return tx.InTx(ctx, func(ctx context.Context, inner store.Store) error {
				return inner.Items().Delete(ctx, "item-1")
			})
		})
		assert.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.InTx(context.Background(), func(context.Context, store.Store) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("close inside a transaction fails", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.InTx(context.Background(), func(_ context.Context, tx store.Store) error {
			return tx.Close()
		})
		assert.Error(t, err)
	})
}
