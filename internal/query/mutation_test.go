package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/internal/cache"
)

func removeItem(item string) func(any) any {
	return func(v any) any {
		list, ok := v.([]string)
		if !ok {
			return v
		}
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s != item {
				out = append(out, s)
			}
		}
		return out
	}
}

func TestOptimisticRollbackRestoresSnapshot(t *testing.T) {
	c, store := newClient(t)
	key := cache.NewKey("transactions", "u1", 0, 10)
	original := []string{"A", "B", "C"}
	store.Set(key, cache.WithValue(original), cache.WithStatus(cache.Success))

	boom := errors.New("undo rejected")
	var during any
	err := c.Optimistic(context.Background(), Optimistic{
		Op:     "undo transaction",
		Prefix: cache.NewKey("transactions", "u1"),
		Apply:  removeItem("B"),
		Call: func(ctx context.Context) error {
			during, _ = store.Snapshot(key)
			return boom
		},
	})

	var merr *MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "undo transaction", merr.Op)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"A", "C"}, during, "change is visible before the backend answers")

	after, _ := store.Get(key)
	assert.Equal(t, []string{"A", "B", "C"}, after.Value)
	// the very same slice, not a rebuilt copy
	assert.Same(t, &original[0], &after.Value.([]string)[0])
	assert.True(t, after.Fresh(), "a failed write does not invalidate")
}

func TestOptimisticSuccessInvalidates(t *testing.T) {
	c, store := newClient(t)
	list := cache.NewKey("transactions", "u1", 0, 10)
	other := cache.NewKey("transactions", "u2", 0, 10)
	balance := cache.NewKey("balance", "u1")
	store.Set(list, cache.WithValue([]string{"A", "B"}), cache.WithStatus(cache.Success))
	store.Set(other, cache.WithValue([]string{"B"}), cache.WithStatus(cache.Success))
	store.Set(balance, cache.WithValue(10), cache.WithStatus(cache.Success))

	err := c.Optimistic(context.Background(), Optimistic{
		Op:         "undo transaction",
		Prefix:     cache.NewKey("transactions", "u1"),
		Apply:      removeItem("B"),
		Call:       func(ctx context.Context) error { return nil },
		Invalidate: []cache.Key{cache.NewKey("balance", "u1")},
	})
	require.NoError(t, err)

	e, _ := store.Get(list)
	assert.Equal(t, []string{"A"}, e.Value)
	assert.True(t, e.Stale)

	e, _ = store.Get(balance)
	assert.True(t, e.Stale)

	e, _ = store.Get(other)
	assert.Equal(t, []string{"B"}, e.Value)
	assert.True(t, e.Fresh())
}

func TestOptimisticSkipsEntriesWithoutValue(t *testing.T) {
	c, store := newClient(t)
	key := cache.NewKey("transactions", "u1", 0, 10)
	store.Set(key, cache.WithStatus(cache.Loading))

	applied := 0
	err := c.Optimistic(context.Background(), Optimistic{
		Op:     "undo transaction",
		Prefix: cache.NewKey("transactions", "u1"),
		Apply:  func(v any) any { applied++; return v },
		Call:   func(ctx context.Context) error { return errors.New("nope") },
	})
	require.Error(t, err)
	assert.Zero(t, applied)
	e, _ := store.Get(key)
	assert.False(t, e.HasValue())
}

func TestMutateInvalidatesOnSuccessOnly(t *testing.T) {
	c, store := newClient(t)
	balance := cache.NewKey("balance", "u1")
	store.Set(balance, cache.WithValue(10), cache.WithStatus(cache.Success))

	err := c.Mutate(context.Background(), "add transaction", func(ctx context.Context) error {
		return errors.New("500")
	}, cache.NewKey("balance", "u1"))
	var merr *MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "add transaction failed: 500", err.Error())
	e, _ := store.Get(balance)
	assert.True(t, e.Fresh())

	err = c.Mutate(context.Background(), "add transaction", func(ctx context.Context) error {
		return nil
	}, cache.NewKey("balance", "u1"))
	require.NoError(t, err)
	e, _ = store.Get(balance)
	assert.True(t, e.Stale)
}
