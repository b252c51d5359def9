// Package store defines the key/value storage the decision history, the reverse DNS cache
// and the statistics windows are persisted in
package store

import (
	"time"
)

// EachFunc receives the value of every entry visited by KVStore.Each.
// The slice must not be retained after the call returns
type EachFunc func(value []byte)

// KVStore is an embedded key/value database. Keys live in namespaces, e.g. "hist:ip" for
// the per-address decision records
type KVStore interface {
	Get(namespace, key []byte) (value []byte, err error)
	Set(namespace, key, value []byte) error
	// SetEx stores an entry that expires after ttl. A ttl <= 0 never expires
	SetEx(namespace, key, value []byte, ttl time.Duration) error
	Has(namespace, key []byte) (bool, error)
	Remove(namespace, key []byte) error
	// Clear drops every entry of a namespace
	Clear(namespace []byte) error

	All(namespace, prefix []byte) ([][]byte, error)
	Each(namespace, prefix []byte, callback EachFunc) error
	Count(namespace, prefix []byte) (int, error)

	// ErrNotFound is the error Get returns for a missing key
	ErrNotFound() error
	Close() error
}
