package identity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/karlseguin/ccache"
)

// CachedDirectory caches successful lookups for a bounded TTL.
// Not-found results are not cached so a newly onboarded identity is visible immediately.
type CachedDirectory struct {
	next  Directory
	cache *ccache.Cache
	ttl   time.Duration
}

// NewCachedDirectory wraps next. A ttl of 0 disables caching and returns next unchanged.
func NewCachedDirectory(next Directory, maxSize int64, ttl time.Duration) Directory {
	if ttl <= 0 {
		return next
	}
	return &CachedDirectory{
		next:  next,
		cache: ccache.New(ccache.Configure().MaxSize(maxSize)),
		ttl:   ttl,
	}
}

func (c *CachedDirectory) Lookup(ctx context.Context, address common.Address) (Identity, error) {
	key := address.Hex()
	if cached := c.cache.Get(key); cached != nil && !cached.Expired() {
		return cached.Value().(Identity), nil
	}
	identity, err := c.next.Lookup(ctx, address)
	if err != nil {
		return Identity{}, err
	}
	c.cache.Set(key, identity, c.ttl)
	return identity, nil
}

// Invalidate drops the cached entry for address.
func (c *CachedDirectory) Invalidate(address common.Address) {
	c.cache.Delete(address.Hex())
}

// Stop releases the cache's background worker.
func (c *CachedDirectory) Stop() {
	c.cache.Stop()
}
