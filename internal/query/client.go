// Package query is the synchronization layer between views and the ledger
// backend. Reads go through the cache and are de-duplicated per key; writes
// either invalidate after the call or patch the cache first and roll back on
// failure.
package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/finboard/internal/cache"
)

// FetchFunc loads the value for one key from the backend
type FetchFunc func(ctx context.Context) (any, error)

// MutationError is returned when a write fails. Any optimistic change has
// already been rolled back by the time it is returned.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

type fetcher struct {
	key cache.Key
	fn  FetchFunc
}

// Client orchestrates reads and writes against one cache. Fetches run under
// the client's own context, so a caller giving up does not abort a load other
// callers are waiting on; Close cancels them all.
type Client struct {
	store  cache.Cache
	group  singleflight.Group
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	fetchers map[string]fetcher
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger; the default discards
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client over store
func New(store cache.Cache, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:    store,
		logger:   zerolog.Nop(),
		ctx:      ctx,
		cancel:   cancel,
		fetchers: make(map[string]fetcher),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Cache returns the store the client reads and writes
func (c *Client) Cache() cache.Cache {
	return c.store
}

// Read returns the cached entry for key, fetching when needed:
//   - an incomplete key returns an Idle entry and never fetches
//   - a fresh entry is returned without a network call
//   - a stale entry with a value is returned at once and revalidated in the background
//   - otherwise the caller waits for the load, shared with any concurrent reader
func (c *Client) Read(ctx context.Context, key cache.Key, fetch FetchFunc) (cache.Entry, error) {
	if !key.Complete() {
		return cache.Entry{Status: cache.Idle}, nil
	}
	c.remember(key, fetch)

	if e, ok := c.store.Get(key); ok {
		if e.Fresh() {
			return e, nil
		}
		if e.HasValue() && e.Status != cache.Error {
			c.revalidate(key, fetch)
			return e, nil
		}
	}
	return c.await(ctx, key, fetch)
}

// ReadFresh is Read without stale-while-revalidate: a stale entry is
// reloaded before returning.
func (c *Client) ReadFresh(ctx context.Context, key cache.Key, fetch FetchFunc) (cache.Entry, error) {
	if !key.Complete() {
		return cache.Entry{Status: cache.Idle}, nil
	}
	c.remember(key, fetch)

	if e, ok := c.store.Get(key); ok && e.Fresh() {
		return e, nil
	}
	e, err := c.await(ctx, key, fetch)
	if err == nil && e.Status == cache.Success && e.Stale {
		// invalidated while loading, the value may predate the change
		return c.await(ctx, key, fetch)
	}
	return e, err
}

func (c *Client) await(ctx context.Context, key cache.Key, fetch FetchFunc) (cache.Entry, error) {
	select {
	case res := <-c.load(key, fetch):
		c.settle(key, fetch)
		e, ok := c.store.Get(key)
		if !ok {
			// store was reset while loading
			e = cache.Entry{Status: cache.Success, Value: res.Val}
			if res.Err != nil {
				e = cache.Entry{Status: cache.Error, Err: res.Err}
			}
		}
		return e, res.Err
	case <-ctx.Done():
		e, _ := c.store.Get(key)
		return e, ctx.Err()
	}
}

// load starts a fetch for key unless one is already in flight, in which case
// the returned channel delivers that fetch's result.
func (c *Client) load(key cache.Key, fetch FetchFunc) <-chan singleflight.Result {
	gen := c.store.Generation()
	return c.group.DoChan(key.ID(), func() (any, error) {
		c.store.SetAt(gen, key, cache.WithStatus(cache.Loading))
		var since uint64
		if e, ok := c.store.Get(key); ok {
			since = e.Invalidations()
		}

		v, err := fetch(c.ctx)
		if err != nil {
			if !c.store.SetAt(gen, key, cache.WithStatus(cache.Error), cache.WithError(err)) {
				c.logger.Debug().Str("key", key.String()).Msg("dropping failed load for reset cache")
			}
			return nil, err
		}
		if !c.store.SetAt(gen, key, cache.WithValue(v), cache.WithStatus(cache.Success), cache.StaleIfInvalidated(since)) {
			c.logger.Debug().Str("key", key.String()).Msg("dropping load for reset cache")
		}
		return v, nil
	})
}

func (c *Client) revalidate(key cache.Key, fetch FetchFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if res := <-c.load(key, fetch); res.Err != nil {
			c.logger.Warn().Err(res.Err).Str("key", key.String()).Msg("background refetch failed")
			return
		}
		c.settle(key, fetch)
	}()
}

// settle runs after a load finished. An invalidation that arrived while the
// load was in flight joined it instead of starting a new one, so a watched
// entry left stale is fetched once more.
func (c *Client) settle(key cache.Key, fetch FetchFunc) {
	e, ok := c.store.Get(key)
	if ok && e.Status == cache.Success && e.Stale && c.store.Observed(key) {
		c.revalidate(key, fetch)
	}
}

// remember keeps the last fetch used per key so invalidation can refetch
// entries that are still being watched.
func (c *Client) remember(key cache.Key, fetch FetchFunc) {
	c.mu.Lock()
	c.fetchers[key.ID()] = fetcher{key: key, fn: fetch}
	c.mu.Unlock()
}

// Invalidate marks every entry under each prefix stale. Entries somebody is
// subscribed to are refetched right away; the rest reload on their next read.
func (c *Client) Invalidate(prefixes ...cache.Key) {
	for _, p := range prefixes {
		for _, k := range c.store.Invalidate(p) {
			if !c.store.Observed(k) {
				continue
			}
			c.mu.Lock()
			f, ok := c.fetchers[k.ID()]
			c.mu.Unlock()
			if ok {
				c.revalidate(f.key, f.fn)
			}
		}
	}
}

// Wait blocks until background refetches have finished
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight loads and waits for background work to stop
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
