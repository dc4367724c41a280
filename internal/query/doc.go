// Package query defines the declarative filter, sort and pagination contract
// shared by every collection in the store layer.
//
// A FindMany request carries a conjunctive Filter, skip/take pagination and an
// ordered list of sort keys. Requests are validated against an entity Schema
// before they reach a store. Apply evaluates a request over an in-memory slice
// and is the reference semantics that SQL-backed stores must reproduce.
package query
