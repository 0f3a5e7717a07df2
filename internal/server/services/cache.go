package services

import (
	"time"

	"github.com/dmitrijs2005/filevault/internal/metrics"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedObject struct {
	locator string
	object  *storage.Object
}

// PublicCache holds decrypted bytes of public files keyed by file ID. An
// entry only answers for the locator it was filled from, so a re-upload
// that races an invalidation can never serve the old content.
type PublicCache struct {
	lru *expirable.LRU[string, cachedObject]
}

func NewPublicCache(size int, ttl time.Duration) *PublicCache {
	if size <= 0 {
		size = 1
	}
	return &PublicCache{lru: expirable.NewLRU[string, cachedObject](size, nil, ttl)}
}

func (c *PublicCache) Get(fileID, locator string) (*storage.Object, bool) {
	e, ok := c.lru.Get(fileID)
	hit := ok && e.locator == locator
	metrics.RecordCacheLookup(hit)
	if !hit {
		return nil, false
	}
	return e.object, true
}

func (c *PublicCache) Put(fileID, locator string, obj *storage.Object) {
	c.lru.Add(fileID, cachedObject{locator: locator, object: obj})
}

func (c *PublicCache) Invalidate(fileID string) {
	c.lru.Remove(fileID)
}

func (c *PublicCache) Len() int { return c.lru.Len() }
