package fingerprint

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/portaldiscoverer/discoverer/common/types"
)

type cacheKey struct {
	id   types.EntityID
	c    types.Coordinate
	name string
}

// Cached memoizes an inner Computer. The host map re-emits the same portals on
// every pan, so most lookups are hits.
type Cached struct {
	inner Computer
	cache *lru.Cache[cacheKey, types.Fingerprint]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Computer, size int) (*Cached, error) {
	cache, err := lru.New[cacheKey, types.Fingerprint](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Compute implements Computer.
func (c *Cached) Compute(id types.EntityID, coord types.Coordinate, name string) types.Fingerprint {
	key := cacheKey{id: id, c: coord, name: name}
	if fp, ok := c.cache.Get(key); ok {
		return fp
	}
	fp := c.inner.Compute(id, coord, name)
	c.cache.Add(key, fp)
	return fp
}

// Len returns the number of memoized fingerprints.
func (c *Cached) Len() int {
	return c.cache.Len()
}
