package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)
	ps, err := cache.NewPubSub(cache.CacheConfig{})
	require.NoError(t, err)
	return c, ps
}

func TestLocalCache_NotFoundIsUnified(t *testing.T) {
	c, _ := newLocal(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "nope")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = c.ZScore(ctx, "ranking:guilds", "g1")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestLock_AcquireRelease(t *testing.T) {
	c, _ := newLocal(t)
	ctx := context.Background()

	l, err := cache.Acquire(ctx, c, "lock:guild:g1", time.Minute)
	require.NoError(t, err)

	_, err = cache.Acquire(ctx, c, "lock:guild:g1", time.Minute)
	assert.ErrorIs(t, err, cache.ErrLocked)

	// Other guilds are independent.
	other, err := cache.Acquire(ctx, c, "lock:guild:g2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, l.Release(ctx))
	l2, err := cache.Acquire(ctx, c, "lock:guild:g1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestPubSubAdapter(t *testing.T) {
	_, ps := newLocal(t)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "guild:g1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "guild:g1", `{"type":"member.joined"}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "guild:g1", msg.Channel)
		assert.JSONEq(t, `{"type":"member.joined"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}
