package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "bookworm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCacheEntry(ctx, "k1", "hola"))
	require.NoError(t, store.SaveCacheEntry(ctx, "k2", "mundo"))

	cache, err := store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "hola", "k2": "mundo"}, cache)
}

func TestCacheEntryNeverRewritten(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCacheEntry(ctx, "k1", "first"))
	require.NoError(t, store.SaveCacheEntry(ctx, "k1", "second"))

	cache, err := store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", cache["k1"])
}

func TestProgressRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetProgress(ctx, "mybook")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SetProgress(ctx, Progress{Book: "mybook", LastChapter: "ch3.xhtml", LastParagraph: 6}))

	got, err = store.GetProgress(ctx, "mybook")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ch3.xhtml", got.LastChapter)
	assert.Equal(t, 6, got.LastParagraph)

	// Progress is overwritten per book, not appended.
	require.NoError(t, store.SetProgress(ctx, Progress{Book: "mybook", LastChapter: "ch4.xhtml", LastParagraph: 0}))
	got, err = store.GetProgress(ctx, "mybook")
	require.NoError(t, err)
	assert.Equal(t, "ch4.xhtml", got.LastChapter)
	assert.Equal(t, 0, got.LastParagraph)
}
