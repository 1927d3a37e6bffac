// Package cache provides the in-memory query cache the dashboard renders
// from: one entry per Key, with load status, staleness and change
// notification.
package cache

import "time"

// Status is the load state of an entry
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// Entry is a snapshot of one cached read
type Entry struct {
	Status    Status
	Value     any
	Err       error
	Stale     bool
	UpdatedAt time.Time

	hasValue      bool
	invalidations uint64
}

// HasValue reports whether a value was ever stored, which may be nil
func (e Entry) HasValue() bool {
	return e.hasValue
}

// Invalidations counts how often the entry has been invalidated. A load
// compares it before and after fetching to notice invalidations it raced.
func (e Entry) Invalidations() uint64 {
	return e.invalidations
}

// Fresh reports whether the entry can be served without a network call
func (e Entry) Fresh() bool {
	return e.Status == Success && !e.Stale
}

// Observer is called after an entry changes, outside any store lock
type Observer func(key Key, e Entry)

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the entry for key and whether it was ever populated
	Get(key Key) (Entry, bool)
	// Snapshot returns the value stored for key, for rollback
	Snapshot(key Key) (any, bool)
	// Keys lists every populated key starting with prefix
	Keys(prefix Key) []Key
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Set merges fields into the entry for key and notifies observers
	Set(key Key, fields ...Field)
	// SetAt is Set, skipped when the store has been reset since generation gen
	SetAt(gen uint64, key Key, fields ...Field) bool
	// Invalidate marks every entry under prefix stale and returns their keys
	Invalidate(prefix Key) []Key
}

// Notifier provides the observer contract views use to re-render
type Notifier interface {
	Subscribe(key Key, fn Observer) (unsubscribe func())
	SubscribePrefix(prefix Key, fn Observer) (unsubscribe func())
	// Observed reports whether anything is watching key
	Observed(key Key) bool
}

// Cache is the main interface that combines all cache operations
type Cache interface {
	Reader
	Writer
	Notifier
	// Generation changes every time the cache is reset
	Generation() uint64
	Reset()
}
