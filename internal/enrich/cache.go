package enrich

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/islandways/placesync/pkg/directory"
)

// Cache memoizes search responses so repeated queries inside a run don't
// re-bill. Entries expire after the TTL; negative results are cached too,
// since a query that found nothing once will find nothing again within the
// window.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time // overridable in tests
}

type cacheEntry struct {
	resp     *directory.SearchResponse
	storedAt time.Time
}

// NewCache creates a search cache. A non-positive ttl means entries never
// expire for the life of the process.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Key returns SHA-256 hex of the normalized query plus any location hint,
// so the same text searched under different bounds caches separately.
func Key(req directory.SearchRequest) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(req.TextQuery)))
	if req.LocationBias != nil {
		c := req.LocationBias.Circle
		fmt.Fprintf(&b, "|b:%.5f,%.5f,%.0f", c.Center.Latitude, c.Center.Longitude, c.Radius)
	}
	if req.LocationRestriction != nil {
		r := req.LocationRestriction.Rectangle
		fmt.Fprintf(&b, "|r:%.5f,%.5f,%.5f,%.5f",
			r.Low.Latitude, r.Low.Longitude, r.High.Latitude, r.High.Longitude)
	}

	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}

// Get returns the cached response for key, expiring stale entries.
func (c *Cache) Get(key string) (*directory.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp, true
}

// Set stores a response under key.
func (c *Cache) Set(key string, resp *directory.SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{resp: resp, storedAt: c.now()}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports live entries, sweeping expired ones first.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 {
		cutoff := c.now().Add(-c.ttl)
		for k, e := range c.entries {
			if !e.storedAt.After(cutoff) {
				delete(c.entries, k)
			}
		}
	}
	return len(c.entries)
}
