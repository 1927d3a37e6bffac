package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Field is one part of a partial update applied by Set
type Field func(*Entry)

// WithStatus sets the status. Success clears any previous error and the
// stale flag.
func WithStatus(s Status) Field {
	return func(e *Entry) {
		e.Status = s
		if s == Success {
			e.Err = nil
			e.Stale = false
		}
	}
}

// WithValue stores v, which may be nil
func WithValue(v any) Field {
	return func(e *Entry) {
		e.Value = v
		e.hasValue = true
	}
}

// WithError records a failed load
func WithError(err error) Field {
	return func(e *Entry) { e.Err = err }
}

// WithStale sets the stale flag directly
func WithStale(stale bool) Field {
	return func(e *Entry) { e.Stale = stale }
}

// StaleIfInvalidated keeps the entry stale when it was invalidated after the
// count since was read. Apply it after WithStatus.
func StaleIfInvalidated(since uint64) Field {
	return func(e *Entry) {
		if e.invalidations != since {
			e.Stale = true
		}
	}
}

type observer struct {
	key    Key
	prefix bool
	fn     Observer
}

func (o observer) matches(k Key) bool {
	if o.prefix {
		return k.HasPrefix(o.key)
	}
	return k.Equal(o.key)
}

type slot struct {
	key   Key
	entry Entry
}

type notification struct {
	key   Key
	entry Entry
	fns   []Observer
}

// Store is the in-memory implementation of Cache. It is safe for concurrent
// use; observers are always called after the lock is released.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*slot
	observers map[string]observer
	gen       uint64
	now       func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides time.Now for UpdatedAt stamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]*slot),
		observers: make(map[string]observer),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get implements Reader
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.entries[key.ID()]
	if !ok {
		return Entry{}, false
	}
	return sl.entry, true
}

// Snapshot implements Reader
func (s *Store) Snapshot(key Key) (any, bool) {
	e, ok := s.Get(key)
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.Value, true
}

// Keys implements Reader
func (s *Store) Keys(prefix Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []Key
	for _, sl := range s.entries {
		if sl.key.HasPrefix(prefix) {
			keys = append(keys, sl.key)
		}
	}
	return keys
}

// Set implements Writer
func (s *Store) Set(key Key, fields ...Field) {
	s.mu.Lock()
	n := s.setLocked(key, fields)
	s.mu.Unlock()
	n.deliver()
}

// SetAt implements Writer
func (s *Store) SetAt(gen uint64, key Key, fields ...Field) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	n := s.setLocked(key, fields)
	s.mu.Unlock()
	n.deliver()
	return true
}

func (s *Store) setLocked(key Key, fields []Field) notification {
	id := key.ID()
	sl, ok := s.entries[id]
	if !ok {
		sl = &slot{key: append(Key(nil), key...)}
		s.entries[id] = sl
	}
	for _, f := range fields {
		f(&sl.entry)
	}
	sl.entry.UpdatedAt = s.now()
	return s.notificationLocked(sl)
}

// Invalidate implements Writer. Stale entries keep their value so views
// never flash empty while a refetch runs.
func (s *Store) Invalidate(prefix Key) []Key {
	s.mu.Lock()
	var (
		keys  []Key
		notes []notification
	)
	for _, sl := range s.entries {
		if !sl.key.HasPrefix(prefix) {
			continue
		}
		sl.entry.Stale = true
		sl.entry.invalidations++
		keys = append(keys, sl.key)
		notes = append(notes, s.notificationLocked(sl))
	}
	s.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}
	return keys
}

// Subscribe implements Notifier for one exact key
func (s *Store) Subscribe(key Key, fn Observer) func() {
	return s.subscribe(observer{key: append(Key(nil), key...), fn: fn})
}

// SubscribePrefix implements Notifier for every key under prefix
func (s *Store) SubscribePrefix(prefix Key, fn Observer) func() {
	return s.subscribe(observer{key: append(Key(nil), prefix...), prefix: true, fn: fn})
}

func (s *Store) subscribe(o observer) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Observed implements Notifier
func (s *Store) Observed(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.observers {
		if o.matches(key) {
			return true
		}
	}
	return false
}

// Generation implements Cache
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Reset drops every entry and starts a new generation, so loads begun
// before the reset can no longer write. Observers stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	s.gen++
	s.entries = make(map[string]*slot)
	s.mu.Unlock()
}

func (s *Store) notificationLocked(sl *slot) notification {
	n := notification{key: sl.key, entry: sl.entry}
	for _, o := range s.observers {
		if o.matches(sl.key) {
			n.fns = append(n.fns, o.fn)
		}
	}
	return n
}

func (n notification) deliver() {
	for _, fn := range n.fns {
		fn(n.key, n.entry)
	}
}

var _ Cache = (*Store)(nil)
