// Package cache provides small LRU caches for repository metadata,
// keyed by namespace.
//
// Cached values are never trusted on their own: every entry carries the
// identity of the backing file it was read from, and lookups must
// present the current identity. A handle that rewrites a file moves its
// identity forward, so stale entries turn into misses instead of served
// garbage, including across handles sharing a namespace.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/segmentio/ksuid"
)

// Stamp is the identity of the backing file of a cached entry at the
// time it was read.
type Stamp struct {
	Size    int64
	ModTime time.Time

	_ struct{}
}

// Matches reports whether two stamps denote the same file state
func (s Stamp) Matches(other Stamp) bool {
	return s.Size == other.Size && s.ModTime.Equal(other.ModTime)
}

type entry struct {
	stamp Stamp
	value interface{}
}

// Cache is a stamped LRU cache
type Cache struct {
	namespace string
	lru       *lru.Cache
}

// New creates a private cache holding up to size entries
func New(namespace string, size int) (*Cache, error) {
	if namespace == "" {
		namespace = ksuid.New().String()
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{namespace: namespace, lru: l}, nil
}

// Namespace returns the cache namespace
func (c *Cache) Namespace() string {
	return c.namespace
}

// Get returns the cached value under key if its stamp still matches now
func (c *Cache) Get(key string, now Stamp) (interface{}, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if !e.stamp.Matches(now) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Put caches value under key, stamped with the state it was read from
func (c *Cache) Put(key string, stamp Stamp, value interface{}) {
	c.lru.Add(key, entry{stamp: stamp, value: value})
}

// Drop evicts one key
func (c *Cache) Drop(key string) {
	c.lru.Remove(key)
}

// Purge evicts everything
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.lru.Len()
}

// registry of shared caches, keyed by namespace. Handles configured
// with the same cache namespace observe each other's entries.
var (
	registryMu sync.Mutex
	registry   = map[string]*Cache{}
)

// Shared returns the process-wide cache for a namespace, creating it on
// first use. An empty namespace yields a fresh private cache instead.
func Shared(namespace string, size int) (*Cache, error) {
	if namespace == "" {
		return New("", size)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if c, ok := registry[namespace]; ok {
		return c, nil
	}
	c, err := New(namespace, size)
	if err != nil {
		return nil, err
	}
	registry[namespace] = c
	return c, nil
}
