package query

import (
	"context"
	"fmt"
	"time"

	"github.com/briangreenhill/finboard/internal/cache"
)

// Result is a typed view of a cache entry
type Result[T any] struct {
	Status    cache.Status
	Data      T
	Stale     bool
	UpdatedAt time.Time
	// Loaded is true once Data holds a value from the backend, which may be
	// stale or being refetched
	Loaded bool
}

// Get reads key through c and converts the cached value to T
func Get[T any](ctx context.Context, c *Client, key cache.Key, fetch func(context.Context) (T, error)) (Result[T], error) {
	e, err := c.Read(ctx, key, erase(fetch))
	return typed[T](key, e, err)
}

// GetFresh is Get with ReadFresh semantics
func GetFresh[T any](ctx context.Context, c *Client, key cache.Key, fetch func(context.Context) (T, error)) (Result[T], error) {
	e, err := c.ReadFresh(ctx, key, erase(fetch))
	return typed[T](key, e, err)
}

func erase[T any](fetch func(context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

func typed[T any](key cache.Key, e cache.Entry, err error) (Result[T], error) {
	r := Result[T]{Status: e.Status, Stale: e.Stale, UpdatedAt: e.UpdatedAt}
	r.Loaded = e.HasValue() || e.Value != nil
	if e.Value != nil {
		v, ok := e.Value.(T)
		if !ok {
			return r, fmt.Errorf("cache entry %s holds %T, not %T", key, e.Value, r.Data)
		}
		r.Data = v
	}
	return r, err
}
