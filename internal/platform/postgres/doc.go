// Package postgres implements store.Store on PostgreSQL.
//
// Every entity type is served by one generic collection that renders
// query.FindMany requests into parameterized SQL. Schema changes are goose
// migrations embedded in the binary.
package postgres
