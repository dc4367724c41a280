// Package store defines the persistence contract of the shipping records.
// Implementations live under internal/platform; the storetest package holds
// the behaviour every implementation must share.
package store
