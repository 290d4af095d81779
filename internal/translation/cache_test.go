package translation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falazar/bookworm-languages/internal/storage"
)

func TestCacheKeyLanguagePairsDoNotCollide(t *testing.T) {
	assert.NotEqual(t, CacheKey("hello", "en", "es"), CacheKey("hello", "en", "fr"))
	assert.NotEqual(t, CacheKey("hello", "en", "es"), CacheKey("hello", "es", "en"))
	assert.Equal(t, CacheKey("hello", "en", "es"), CacheKey("hello", "en", "es"))
}

func TestCachePutGetAndReload(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	store, err := storage.Open(dbPath)
	require.NoError(t, err)

	cache, err := NewCache(ctx, store, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	key := CacheKey("Hello.", "en", "es")
	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Put(ctx, key, "Hola.")
	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Hola.", got)
	assert.Equal(t, 1, cache.Len())

	// A repeated Put keeps the first translation.
	cache.Put(ctx, key, "Buenas.")
	got, _ = cache.Get(key)
	assert.Equal(t, "Hola.", got)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, store.Close())

	// Entries survive a reopen: the write-through persisted them.
	store, err = storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reloaded, err := NewCache(ctx, store, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	got, ok = reloaded.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Hola.", got)
}
