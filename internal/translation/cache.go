package translation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/storage"
)

// Cache memoizes provider calls. Entries are loaded eagerly at
// construction and written through to the store on every miss; within
// a run a key never changes once written.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	store   *storage.Store
	logger  *logrus.Logger
}

func NewCache(ctx context.Context, store *storage.Store, logger *logrus.Logger) (*Cache, error) {
	entries, err := store.LoadCache(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Loaded %d translation cache entries", len(entries))

	return &Cache{
		entries: entries,
		store:   store,
		logger:  logger,
	}, nil
}

// CacheKey is a deterministic hash of the full request, so the same
// text translated into a different language pair never collides.
func CacheKey(text, sourceLang, targetLang string) string {
	h := sha1.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) Put(ctx context.Context, key, translated string) {
	c.mu.Lock()
	if _, exists := c.entries[key]; exists {
		c.mu.Unlock()
		return
	}
	c.entries[key] = translated
	c.mu.Unlock()

	// Durability failures are logged, not fatal: the translation
	// itself already succeeded.
	if err := c.store.SaveCacheEntry(ctx, key, translated); err != nil {
		c.logger.Warnf("Failed to persist translation cache entry: %v", err)
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
