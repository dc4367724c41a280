// Package testdb provides helpers for tests that run against a real Postgres
// database.
//
// Tests find the database through environment variables, checked in order:
//
//   - DATABASE_URL
//   - SHIPPING_TEST_DB_URL
//   - SHIPPING_DATABASE_URL
//
// When none is set, tests calling GetTestDBWithT are skipped, except in CI
// where a missing database is a failure.
//
// GetTestDBWithT opens a pool, migrates the schema up once per process and
// registers cleanup. ResetTables empties every shipping table so each test
// starts from a known state.
package testdb
