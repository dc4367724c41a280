package testdb

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/config"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/platform/postgres"
	"github.com/phrazzld/shipping-api/internal/redact"
)

// TestTimeout bounds the setup work done against the test database.
const TestTimeout = 30 * time.Second

// shippingTables lists the tables ResetTables empties, children first.
var shippingTables = []string{"items", "shipments", "packages", "destinations"}

var (
	migrateOnce sync.Once
	migrateErr  error
)

// GetTestDBWithT opens the test database, applies the migrations once per
// process and closes the pool when the test ends. The test is skipped when no
// database is configured outside CI.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		if isCIEnvironment() {
			t.Fatalf("no test database configured, set %s", EnvDatabaseURL)
		}
		t.Skipf("%s not set - skipping integration test", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	log := logger.NewTestLogger(t)
	db, err := postgres.Open(ctx, config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, log)
	require.NoError(t, err, "failed to open test database %s", redact.URL(dbURL))
	t.Cleanup(func() { CleanupDB(t, db) })

	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(ctx, db, postgres.MigrateUp, log)
	})
	require.NoError(t, migrateErr, "failed to migrate test database")
	return db
}

// ResetTables deletes every row of the shipping tables.
func ResetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	for _, table := range shippingTables {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err, "failed to empty %s", table)
	}
}

// WithTx runs fn in a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Errorf("failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// CleanupDB closes db, reporting failures on t.
func CleanupDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		t.Errorf("failed to close database connection: %v", err)
	}
}
