package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/internal/cache"
)

type countingFetch struct {
	calls atomic.Int32
	value any
	err   error
}

func (f *countingFetch) fetch(ctx context.Context) (any, error) {
	f.calls.Add(1)
	return f.value, f.err
}

func newClient(t *testing.T) (*Client, *cache.Store) {
	t.Helper()
	store := cache.New()
	c := New(store)
	t.Cleanup(c.Close)
	return c, store
}

func TestReadCachesFreshValue(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	f := &countingFetch{value: 100}

	e, err := c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, cache.Success, e.Status)
	assert.Equal(t, 100, e.Value)

	e, err = c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 100, e.Value)
	assert.Equal(t, int32(1), f.calls.Load(), "fresh entry must not refetch")
}

func TestReadDeduplicatesInFlight(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("transactions", "u1", 0, 10)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []string{"A"}, nil
	}

	var wg sync.WaitGroup
	results := make([]cache.Entry, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Read(ctx, key, fetch)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = c.Read(ctx, key, fetch)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []string{"A"}, r.Value)
	}
}

func TestReadIncompleteKeyIsIdle(t *testing.T) {
	c, store := newClient(t)
	f := &countingFetch{value: 1}

	e, err := c.Read(context.Background(), cache.NewKey("balance", nil), f.fetch)
	require.NoError(t, err)
	assert.Equal(t, cache.Idle, e.Status)
	assert.Zero(t, f.calls.Load())

	e, err = c.ReadFresh(context.Background(), cache.NewKey("balance", ""), f.fetch)
	require.NoError(t, err)
	assert.Equal(t, cache.Idle, e.Status)
	assert.Zero(t, f.calls.Load())
	assert.Empty(t, store.Keys(cache.Key{}))
}

func TestReadErrorIsStoredAndRetried(t *testing.T) {
	c, store := newClient(t)
	key := cache.NewKey("balance", "u1")
	boom := errors.New("backend down")
	f := &countingFetch{err: boom}

	e, err := c.Read(context.Background(), key, f.fetch)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, cache.Error, e.Status)
	stored, _ := store.Get(key)
	assert.ErrorIs(t, stored.Err, boom)

	f.err, f.value = nil, 5
	e, err = c.Read(context.Background(), key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 5, e.Value)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestInvalidatedReadRevalidates(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	f := &countingFetch{value: 1}

	_, err := c.Read(ctx, key, f.fetch)
	require.NoError(t, err)

	f.value = 2
	c.Invalidate(cache.NewKey("balance", "u1"))

	e, err := c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Value, "stale value is served immediately")
	assert.True(t, e.Stale)

	c.Wait()
	e, err = c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Value)
	assert.True(t, e.Fresh())
	assert.Equal(t, int32(2), f.calls.Load())
}

// gatedFetch blocks its first call until release is closed and returns the
// current value of server when it returns.
type gatedFetch struct {
	calls   atomic.Int32
	server  atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedFetch(value int32) *gatedFetch {
	g := &gatedFetch{started: make(chan struct{}), release: make(chan struct{})}
	g.server.Store(value)
	return g
}

func (g *gatedFetch) fetch(ctx context.Context) (any, error) {
	v := g.server.Load()
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
	}
	return int(v), nil
}

func TestInvalidateDuringLoadKeepsEntryStale(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	g := newGatedFetch(1)

	done := make(chan cache.Entry)
	go func() {
		e, _ := c.Read(ctx, key, g.fetch)
		done <- e
	}()
	<-g.started
	g.server.Store(2)
	c.Invalidate(cache.NewKey("balance", "u1"))
	close(g.release)

	e := <-done
	assert.Equal(t, 1, e.Value)
	assert.True(t, e.Stale, "a load that raced an invalidation is not fresh")

	e, err := c.ReadFresh(ctx, key, g.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Value)
	assert.True(t, e.Fresh())
	assert.Equal(t, int32(2), g.calls.Load())
}

func TestInvalidateDuringLoadRefetchesObservedKey(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	g := newGatedFetch(1)

	unsub := store.Subscribe(key, func(cache.Key, cache.Entry) {})
	defer unsub()

	done := make(chan struct{})
	go func() {
		_, _ = c.Read(ctx, key, g.fetch)
		close(done)
	}()
	<-g.started
	g.server.Store(2)
	c.Invalidate(cache.NewKey("balance"))
	close(g.release)
	<-done

	require.Eventually(t, func() bool {
		e, _ := store.Get(key)
		return e.Fresh() && e.Value == 2
	}, time.Second, 5*time.Millisecond)
	c.Wait()
	assert.GreaterOrEqual(t, g.calls.Load(), int32(2))
}

func TestInvalidateAfterCloseStartsNothing(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	f := &countingFetch{value: 1}

	_, err := c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	unsub := store.Subscribe(key, func(cache.Key, cache.Entry) {})
	defer unsub()

	c.Close()
	c.Invalidate(cache.NewKey("balance"))
	c.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	e, _ := store.Get(key)
	assert.True(t, e.Stale)
}

func TestReadFreshWaitsForStaleEntry(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	key := cache.NewKey("balance", "u1")
	f := &countingFetch{value: 1}

	_, err := c.Read(ctx, key, f.fetch)
	require.NoError(t, err)
	f.value = 2
	c.Invalidate(key)

	e, err := c.ReadFresh(ctx, key, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Value)
	assert.False(t, e.Stale)
}

func TestInvalidateRefetchesObservedKeys(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()
	watched := cache.NewKey("balance", "u1")
	unwatched := cache.NewKey("transactions", "u1", 0, 10)
	fb := &countingFetch{value: 1}
	ft := &countingFetch{value: []string{"A"}}

	_, err := c.Read(ctx, watched, fb.fetch)
	require.NoError(t, err)
	_, err = c.Read(ctx, unwatched, ft.fetch)
	require.NoError(t, err)

	updates := make(chan cache.Entry, 8)
	unsub := store.Subscribe(watched, func(k cache.Key, e cache.Entry) { updates <- e })
	defer unsub()

	fb.value = 2
	c.Invalidate(cache.NewKey("balance", "u1"), cache.NewKey("transactions", "u1"))
	c.Wait()

	assert.Equal(t, int32(2), fb.calls.Load())
	assert.Equal(t, int32(1), ft.calls.Load(), "unobserved keys wait for their next read")

	e, _ := store.Get(watched)
	assert.Equal(t, 2, e.Value)
	assert.True(t, e.Fresh())
	assert.NotEmpty(t, updates)
}

func TestLoadAfterResetIsDropped(t *testing.T) {
	c, store := newClient(t)
	key := cache.NewKey("balance", "u1")
	release := make(chan struct{})
	started := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return 99, nil
	}

	done := make(chan cache.Entry)
	go func() {
		e, _ := c.Read(context.Background(), key, fetch)
		done <- e
	}()
	<-started
	store.Reset()
	close(release)

	e := <-done
	assert.Equal(t, 99, e.Value, "the waiting caller still gets its answer")
	_, ok := store.Get(key)
	assert.False(t, ok, "but the reset cache is not written")
}

func TestReadCallerCancellation(t *testing.T) {
	c, store := newClient(t)
	key := cache.NewKey("balance", "u1")
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		<-release
		return 7, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Read(ctx, key, fetch)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	e, err := c.ReadFresh(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, e.Value)
	got, _ := store.Get(key)
	assert.Equal(t, 7, got.Value)
}

func TestGetTyped(t *testing.T) {
	c, _ := newClient(t)
	key := cache.NewKey("categories")
	r, err := Get(context.Background(), c, key, func(ctx context.Context) ([]string, error) {
		return []string{"Food"}, nil
	})
	require.NoError(t, err)
	assert.True(t, r.Loaded)
	assert.Equal(t, []string{"Food"}, r.Data)

	_, err = Get(context.Background(), c, key, func(ctx context.Context) (int, error) { return 0, nil })
	assert.Error(t, err, "type mismatch is reported")

	idle, err := Get(context.Background(), c, cache.NewKey("balance", ""), func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, cache.Idle, idle.Status)
	assert.False(t, idle.Loaded)
}
