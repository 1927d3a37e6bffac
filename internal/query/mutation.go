package query

import (
	"context"

	"github.com/briangreenhill/finboard/internal/cache"
)

// Mutate runs call and, once it succeeds, invalidates every prefix whose
// cached value could have changed. Used for creates, where there is nothing
// sensible to show before the server answers.
func (c *Client) Mutate(ctx context.Context, op string, call func(ctx context.Context) error, prefixes ...cache.Key) error {
	if err := call(ctx); err != nil {
		return &MutationError{Op: op, Err: err}
	}
	c.Invalidate(prefixes...)
	return nil
}

// Optimistic describes a write whose effect is applied to the cache before
// the backend confirms it.
type Optimistic struct {
	Op string
	// Prefix selects the cached entries the change is applied to
	Prefix cache.Key
	// Apply returns the speculative value for one entry. It must not modify
	// its argument, which is kept for rollback.
	Apply func(value any) any
	Call  func(ctx context.Context) error
	// Invalidate lists further prefixes to reconcile on success
	Invalidate []cache.Key
}

type snapshot struct {
	key   cache.Key
	value any
}

// Optimistic snapshots every cached value under m.Prefix, applies m.Apply to
// each and then runs m.Call. On success the prefix and m.Invalidate are
// invalidated so the server's state wins. On failure each entry is put back
// to exactly the value captured before the change and a *MutationError is
// returned.
//
// Rollback is unconditional: a refetch or another write that landed on the
// same key while the call was in flight is overwritten by the snapshot.
func (c *Client) Optimistic(ctx context.Context, m Optimistic) error {
	var snaps []snapshot
	for _, k := range c.store.Keys(m.Prefix) {
		v, ok := c.store.Snapshot(k)
		if !ok {
			continue
		}
		snaps = append(snaps, snapshot{key: k, value: v})
		c.store.Set(k, cache.WithValue(m.Apply(v)))
	}

	if err := m.Call(ctx); err != nil {
		for _, s := range snaps {
			c.store.Set(s.key, cache.WithValue(s.value))
		}
		c.logger.Info().Err(err).Str("op", m.Op).Int("rolled_back", len(snaps)).Msg("optimistic write failed")
		return &MutationError{Op: m.Op, Err: err}
	}

	c.Invalidate(append([]cache.Key{m.Prefix}, m.Invalidate...)...)
	return nil
}
