package geocode

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/petalpost/location-service/internal/domain"
)

// Cache is a thread-safe coordinate-keyed cache of resolved addresses.
// Coordinates are rounded to 4 decimal places (~11m) before keying, so two
// fixes differing only beyond that precision hit the same entry. Entries
// expire after the TTL and are removed lazily on read; when the cache is at
// capacity the oldest-inserted entry is evicted first.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*cacheEntry
	head    *cacheEntry // most recently inserted
	tail    *cacheEntry // oldest inserted
}

type cacheEntry struct {
	key       string
	value     domain.ResolvedAddress
	expiresAt time.Time
	prev      *cacheEntry
	next      *cacheEntry
}

// NewCache creates a cache with the given TTL and capacity. maxEntries <= 0
// means unbounded.
func NewCache(ttl time.Duration, maxEntries int, clock clockwork.Clock) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]*cacheEntry),
	}
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// Get returns the cached address for the rounded coordinates. An expired
// entry counts as a miss and is removed.
func (c *Cache) Get(lat, lng float64) (domain.ResolvedAddress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(lat, lng)]
	if !ok {
		return domain.ResolvedAddress{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.removeEntry(e)
		return domain.ResolvedAddress{}, false
	}
	return e.value, true
}

// Put stores the address under the rounded coordinates with a fresh TTL.
func (c *Cache) Put(lat, lng float64, addr domain.ResolvedAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(lat, lng)
	expiresAt := c.clock.Now().Add(c.ttl)

	if e, ok := c.entries[key]; ok {
		e.value = addr
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, value: addr, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) unlink(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache) removeEntry(e *cacheEntry) {
	delete(c.entries, e.key)
	c.unlink(e)
}

func (c *Cache) evictTail() {
	if c.tail == nil {
		return
	}
	c.removeEntry(c.tail)
}
