// Package tiles serves basemap raster tiles through a caching proxy in front
// of a configured upstream tile server.
package tiles

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Key identifies one tile image.
type Key struct {
	Z, X, Y int
	Format  string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d.%s", k.Z, k.X, k.Y, k.Format)
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

type cacheEntry struct {
	key      Key
	data     []byte
	storedAt time.Time
}

// Cache is a size-bounded LRU of tile bytes whose entries expire after a TTL.
type Cache struct {
	mu         sync.Mutex
	items      map[Key]*list.Element
	lru        *list.List // front is most recently used
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	hits       int64
	misses     int64
}

// NewCache creates a Cache. maxEntries below 1 is treated as 1 and a
// non-positive ttl disables expiry.
func NewCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		items:      make(map[Key]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
	}
}

// Get returns the cached tile and whether it was present and fresh.
func (c *Cache) Get(k Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.clock.Since(entry.storedAt) > c.ttl {
		c.removeElement(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return entry.data, true
}

// Put stores a tile, evicting the least recently used entries when full.
func (c *Cache) Put(k Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.items[k]; ok {
		entry := el.Value.(*cacheEntry)
		entry.data = data
		entry.storedAt = now
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		c.removeElement(c.lru.Back())
	}
	c.items[k] = c.lru.PushFront(&cacheEntry{key: k, data: data, storedAt: now})
}

// Purge empties the cache and keeps the hit counters.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]*list.Element)
	c.lru.Init()
}

// Stats reports entry counts and the hit rate.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		HitRate:    rate,
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.lru.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
