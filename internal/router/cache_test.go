package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := NewCache(10, CacheStrategyLRU)
	c.Set("k1", Response{ProviderID: "p1", Content: valuetype.String("v1")}, time.Minute)

	resp, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "p1", resp.ProviderID)
	assert.True(t, resp.Cached)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewCache(10, CacheStrategyLRU)
	c.Set("k1", Response{ProviderID: "p1"}, -time.Second)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, CacheStrategyLRU)
	c.Set("a", Response{ProviderID: "a"}, time.Minute)
	c.Set("b", Response{ProviderID: "b"}, time.Minute)

	// Touch "a" so "b" becomes the least recently used.
	_, _ = c.Get("a")

	c.Set("c", Response{ProviderID: "c"}, time.Minute)

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
}

func TestCache_FIFOEvictsOldestInserted(t *testing.T) {
	c := NewCache(2, CacheStrategyFIFO)
	c.Set("a", Response{ProviderID: "a"}, time.Minute)
	c.Set("b", Response{ProviderID: "b"}, time.Minute)

	// Access order must not matter for FIFO.
	_, _ = c.Get("a")

	c.Set("c", Response{ProviderID: "c"}, time.Minute)

	_, aOK := c.Get("a")
	_, cOK := c.Get("c")
	assert.False(t, aOK)
	assert.True(t, cOK)
}

func TestCache_HitRateTracksAccesses(t *testing.T) {
	c := NewCache(10, CacheStrategyLRU)
	c.Set("k", Response{}, time.Minute)
	_, _ = c.Get("k")
	_, _ = c.Get("missing")
	assert.InDelta(t, 0.5, c.HitRate(), 0.001)
}
