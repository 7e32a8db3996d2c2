package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
)

func TestInMemoryCache_SetGetDelete(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	item := &auctionDomain.Item{ID: "A1", Title: "Car"}
	require.NoError(t, c.Set(ctx, auctionDomain.ItemCacheKeyByID("A1"), item, 0))

	var got auctionDomain.Item
	hit, err := c.Get(ctx, auctionDomain.ItemCacheKeyByID("A1"), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Car", got.Title)

	require.NoError(t, c.Delete(ctx, auctionDomain.ItemCacheKeyByID("A1")))
	hit, err = c.Get(ctx, auctionDomain.ItemCacheKeyByID("A1"), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInMemoryCache_Expiration(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var v string
	hit, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit, "una clave expirada se trata como miss")
}

func TestInMemoryLocker(t *testing.T) {
	l := NewInMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "seed", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryLock(ctx, "seed", time.Minute)
	assert.False(t, ok, "el segundo intento no debe obtener el lock")

	require.NoError(t, l.Unlock(ctx, "seed"))
	ok, _ = l.TryLock(ctx, "seed", time.Minute)
	assert.True(t, ok)
}
