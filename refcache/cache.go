// Package refcache provides an LRU cache of weak references. Cached
// objects stay logically owned by their strong holders; the cache only
// keeps their memory reachable and hands out fresh strong references for
// entries that are still alive.
package refcache

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/harkal/refptr"
)

// Cache maps string keys to weak references. All methods are safe for
// concurrent use.
type Cache[T refptr.Target] struct {
	mu  sync.Mutex
	lru *simplelru.LRU
}

// New creates a cache holding at most size entries.
func New[T refptr.Target](size int) (*Cache[T], error) {
	c := &Cache[T]{}
	lru, err := simplelru.NewLRU(size, func(key, value interface{}) {
		value.(*refptr.Weak[T, refptr.ZeroNull[T]]).Release()
	})
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// Put stores a weak reference to r's target under key, replacing any
// previous entry.
func (c *Cache[T]) Put(key string, r refptr.Ref[T, refptr.ZeroNull[T]]) {
	w := refptr.WeakOf(r)
	c.mu.Lock()
	// Remove runs the eviction callback, releasing a replaced entry's
	// weak reference; a plain Add would leak it.
	c.lru.Remove(key)
	c.lru.Add(key, &w)
	c.mu.Unlock()
}

// Get returns a strong reference to the cached object, or a null
// reference on a miss. An entry whose object has died counts as a miss
// and is dropped from the cache.
func (c *Cache[T]) Get(key string) refptr.Ref[T, refptr.ZeroNull[T]] {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return refptr.Ref[T, refptr.ZeroNull[T]]{}
	}
	r := v.(*refptr.Weak[T, refptr.ZeroNull[T]]).Lock()
	if r.IsNull() {
		c.lru.Remove(key)
	}
	return r
}

// Remove drops the entry under key, releasing its weak reference.
func (c *Cache[T]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Len returns the number of entries, dead ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry, releasing all held weak references.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
