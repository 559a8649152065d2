package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// Cache is the cache-aside contract used by read paths.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(keys ...string)
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// LRU is a size-bounded least-recently-used cache.
type LRU struct {
	entries *lru.Cache
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewLRU creates an LRU cache holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &LRU{entries: entries}, nil
}

// Get returns the cached value for key.
func (c *LRU) Get(key string) (any, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *LRU) Set(key string, value any) {
	c.entries.Add(key, value)
}

// Delete removes every given key. Missing keys are ignored.
func (c *LRU) Delete(keys ...string) {
	for _, k := range keys {
		c.entries.Remove(k)
	}
}

// Stats returns hit/miss counters and the current entry count.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.entries.Len(),
	}
}

// Noop never stores anything; every Get misses.
type Noop struct{}

func (Noop) Get(string) (any, bool) { return nil, false }
func (Noop) Set(string, any)        {}
func (Noop) Delete(...string)       {}
