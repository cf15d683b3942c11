package tiles

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(z, x, y int) Key { return Key{Z: z, X: x, Y: y, Format: "png"} }

func TestCache_GetPut(t *testing.T) {
	c := NewCache(10, time.Minute, clockwork.NewFakeClock())

	_, ok := c.Get(key(1, 0, 0))
	assert.False(t, ok)

	c.Put(key(1, 0, 0), []byte("a"))
	data, ok := c.Get(key(1, 0, 0))
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data)

	c.Put(key(1, 0, 0), []byte("b"))
	data, _ = c.Get(key(1, 0, 0))
	assert.Equal(t, []byte("b"), data)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, 0, nil)

	c.Put(key(2, 0, 0), []byte("a"))
	c.Put(key(2, 1, 0), []byte("b"))
	_, _ = c.Get(key(2, 0, 0)) // a is now most recent
	c.Put(key(2, 2, 0), []byte("c"))

	_, ok := c.Get(key(2, 1, 0))
	assert.False(t, ok, "b should be evicted")
	_, ok = c.Get(key(2, 0, 0))
	assert.True(t, ok)
	_, ok = c.Get(key(2, 2, 0))
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestCache_TTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(10, time.Minute, clock)

	c.Put(key(3, 1, 1), []byte("tile"))
	clock.Advance(time.Minute)
	_, ok := c.Get(key(3, 1, 1))
	assert.True(t, ok, "entry at exactly the TTL is still fresh")

	clock.Advance(time.Second)
	_, ok = c.Get(key(3, 1, 1))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_Purge(t *testing.T) {
	c := NewCache(0, 0, nil)
	assert.Equal(t, 1, c.Stats().MaxEntries)

	c.Put(key(0, 0, 0), []byte("x"))
	c.Purge()
	_, ok := c.Get(key(0, 0, 0))
	assert.False(t, ok)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "10/163/395.png", key(10, 163, 395).String())
}
