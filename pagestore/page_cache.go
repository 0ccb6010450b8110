package pagestore

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

const minCacheCounters = 1000

type cachedPage struct {
	version uint64
	data    []byte
}

// pageCache memoizes page bytes, entries may be dropped at any time.
// Every page carries a version bumped on save, and a cached copy is served only
// while its version is current, so a delayed insert can not bring back old bytes.
type pageCache struct {
	cache *ristretto.Cache[uint32, *cachedPage]

	mu       sync.RWMutex
	versions map[uint32]uint64
}

func newPageCache(maxBytes int64, pageSize int) (*pageCache, error) {
	counters := 10 * maxBytes / int64(pageSize)
	if counters < minCacheCounters {
		counters = minCacheCounters
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint32, *cachedPage]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &pageCache{
		cache:    cache,
		versions: make(map[uint32]uint64),
	}, nil
}

func (c *pageCache) version(page uint32) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[page]
}

func (c *pageCache) get(page uint32) ([]byte, bool) {
	cached, ok := c.cache.Get(page)
	if !ok || cached.version != c.version(page) {
		return nil, false
	}
	return cached.data, true
}

// put stores data read while the page was at version, data must not be mutated afterward
func (c *pageCache) put(page uint32, version uint64, data []byte) {
	c.cache.Set(page, &cachedPage{version: version, data: data}, int64(len(data)))
}

func (c *pageCache) invalidate(page uint32) {
	c.mu.Lock()
	c.versions[page]++
	c.mu.Unlock()
	c.cache.Del(page)
}

func (c *pageCache) close() {
	c.cache.Close()
}
