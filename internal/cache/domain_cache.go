package cache

import (
	"strings"
	"time"
)

const (
	defaultDomainTTL  = 5 * time.Minute
	defaultMissingTTL = 30 * time.Second
)

// DomainCache memoizes hostname to store id lookups for storefront routing. Misses are cached briefly so
// unknown hosts do not hit the store on every request.
type DomainCache struct {
	stores     Cache[string, string]
	hitTTL     time.Duration
	missingTTL time.Duration
}

func NewDomainCache() *DomainCache {
	return &DomainCache{
		stores:     NewTTLCache[string, string](),
		hitTTL:     defaultDomainTTL,
		missingTTL: defaultMissingTTL,
	}
}

// Get returns the cached store id. found reports a cached entry; an empty storeID with found=true is a cached miss.
func (c *DomainCache) Get(host string) (storeID string, found bool) {
	return c.stores.Get(NormalizeHost(host))
}

func (c *DomainCache) Set(host, storeID string) {
	ttl := c.hitTTL
	if storeID == "" {
		ttl = c.missingTTL
	}
	c.stores.Set(NormalizeHost(host), storeID, ttl)
}

func (c *DomainCache) Invalidate(host string) {
	c.stores.Delete(NormalizeHost(host))
}

// NormalizeHost lower-cases a Host header value and strips the port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx >= 0 {
			return host[:idx+1]
		}
		return host
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return strings.TrimSuffix(host, ".")
}
