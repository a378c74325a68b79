// Package store defines interfaces for persisting series history. Concrete
// implementations live under internal/storage; this package must not import
// database drivers or concrete clients.
package store
