package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory() (*MemoryAdapter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryAdapter(WithClock(clock.Now)), clock
}

func TestMemoryAdapter_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemory()

	require.NoError(t, c.Set(ctx, "/sites?page=1&per_page=100", []byte("payload"), 5*time.Minute))

	clock.Advance(5 * time.Minute)
	got, err := c.Get(ctx, "/sites?page=1&per_page=100")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	clock.Advance(time.Millisecond)
	_, err = c.Get(ctx, "/sites?page=1&per_page=100")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryAdapter_SetOverwritesAndRestartsTTL(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemory()

	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, c.Set(ctx, "k", []byte("new"), time.Minute))
	clock.Advance(50 * time.Second)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestMemoryAdapter_MissingKey(t *testing.T) {
	c, _ := newTestMemory()
	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestMemoryAdapter_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory()

	for _, k := range []string{"/sites?page=1", "/sites?city=Austin", "/sites/42/providers?page=1", "/providers?page=1"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
	}

	require.NoError(t, c.DeletePrefix(ctx, "/sites?"))

	_, err := c.Get(ctx, "/sites?page=1")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	_, err = c.Get(ctx, "/sites?city=Austin")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	_, err = c.Get(ctx, "/sites/42/providers?page=1")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "/providers?page=1")
	assert.NoError(t, err)
}

func TestMemoryAdapter_Flush(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, 0, c.Len())
}

func TestMemoryAdapter_StoredValueIsCopied(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryAdapter_ConcurrentReadsDuringWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter()
	require.NoError(t, c.Set(ctx, "k", []byte("v0"), time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "k", []byte("v1"), time.Minute)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := c.Get(ctx, "k")
				if assert.NoError(t, err) {
					assert.Contains(t, []string{"v0", "v1"}, string(got))
				}
			}
		}()
	}
	wg.Wait()
}
