package heapkv

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// frontCache keeps serialized values of recently used keys.
// writes counts completed writes, a reader may only fill an entry if no write
// completed since it started looking, so a slow scan can not cache a replaced value.
type frontCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, []byte]
	writes uint64
}

func newFrontCache(size int) (*frontCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &frontCache{lru: c}, nil
}

func (c *frontCache) get(key []byte) ([]byte, bool) {
	return c.lru.Get(string(key))
}

// stamp return the write counter, pass it to fill once the lookup is done
func (c *frontCache) stamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *frontCache) fill(key, value []byte, stamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == stamp {
		c.lru.Add(string(key), value)
	}
}

// put records a completed write of key, value nil means the key was removed
func (c *frontCache) put(key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if value == nil {
		c.lru.Remove(string(key))
		return
	}
	c.lru.Add(string(key), value)
}

func (c *frontCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.lru.Purge()
}
