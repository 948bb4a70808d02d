package server

import (
	"sync"
	"time"
)

const renderCacheLimit = 256

type renderItem struct {
	html       string
	expiration time.Time
}

// renderCache is a small in-memory TTL cache of rendered markdown, keyed by
// project id and revision. It is safe for concurrent access.
type renderCache struct {
	mu    sync.RWMutex
	items map[string]renderItem
	ttl   time.Duration
	now   func() time.Time
}

func newRenderCache(ttl time.Duration) *renderCache {
	return &renderCache{items: make(map[string]renderItem), ttl: ttl, now: time.Now}
}

// Set stores html under key, evicting expired entries once the cache is full.
func (c *renderCache) Set(key, html string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= renderCacheLimit {
		for k, it := range c.items {
			if !now.Before(it.expiration) {
				delete(c.items, k)
			}
		}
		if len(c.items) >= renderCacheLimit {
			c.items = make(map[string]renderItem)
		}
	}
	c.items[key] = renderItem{html: html, expiration: now.Add(c.ttl)}
}

// Get returns the html for key unless it is missing or expired.
func (c *renderCache) Get(key string) (string, bool) {
	now := c.now()
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !now.Before(it.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return "", false
	}
	return it.html, true
}
