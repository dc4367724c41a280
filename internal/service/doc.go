// Package service implements the operations of the shipping API on top of a
// store.Store.
//
// Records provides create, read, update and delete for one entity type,
// Linker manages the members of a one-to-many relation from the parent side
// and Reference resolves the parent of a child. Shipping bundles them for
// the four entities. Every mutation runs in one store transaction and emits
// an events.ChangeEvent after it commits.
package service
