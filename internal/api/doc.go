// Package api serves the shipping records over HTTP. Every entity gets the
// same set of routes: create, find-many with where/sortBy/skip/take query
// parameters, count, get, partial update and delete. Relations add routes to
// list, connect, disconnect and replace the members of a parent and to read
// the parent a child points at.
//
// Handlers translate HTTP concerns into calls on the service package and map
// its errors to status codes and safe messages.
package api
