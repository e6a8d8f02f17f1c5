package workspace

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"agentedit/config"
)

// DefaultCacheEntries bounds the content cache when no size is configured.
const DefaultCacheEntries = 64

// ContentCache keeps recently loaded file bodies. It is read-through: a hit
// never reaches the file system.
type ContentCache struct {
	entries *lru.Cache[Ref, string]
}

// NewContentCache creates a cache holding at most size bodies.
func NewContentCache(size int) *ContentCache {
	if size <= 0 {
		size = DefaultCacheEntries
	}
	// lru.New only fails for non-positive sizes
	entries, _ := lru.New[Ref, string](size)
	return &ContentCache{entries: entries}
}

// Get returns a cached body.
func (c *ContentCache) Get(ref Ref) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.entries.Get(ref)
}

// Put stores body for ref, evicting the least recently used entry if full.
func (c *ContentCache) Put(ref Ref, body string) {
	if c == nil {
		return
	}
	c.entries.Add(ref, body)
}

// Invalidate drops ref from the cache.
func (c *ContentCache) Invalidate(ref Ref) {
	if c == nil {
		return
	}
	if c.entries.Remove(ref) && config.DebugLog != nil {
		config.DebugLog.Printf("[Workspace] Invalidated cached content for %s", ref)
	}
}

// Purge empties the cache.
func (c *ContentCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len returns the number of cached bodies.
func (c *ContentCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// CachedRead returns ref's content from cache, falling back to read and
// caching the result on success.
func (c *ContentCache) CachedRead(ctx context.Context, ref Ref, read func(context.Context, Ref) (string, error)) (string, error) {
	if body, ok := c.Get(ref); ok {
		return body, nil
	}
	body, err := read(ctx, ref)
	if err != nil {
		return "", err
	}
	c.Put(ref, body)
	return body, nil
}
