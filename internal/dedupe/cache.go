// ABOUTME: TTL + size-bounded cache of recently seen keys.
// ABOUTME: Used to classify late duplicate responses as stale rather than unknown.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key      string
	markedAt time.Time
}

// Cache remembers keys for a bounded time and count. The request correlator
// marks every resolved request id so that a response arriving after
// resolution (a server retry echo) can be told apart from an id this client
// never issued. Eviction is lazy: expired entries are purged on Mark.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
}

// New creates a cache keeping keys for ttl, capped at maxSize entries.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Mark records that key was seen now, refreshing it if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.purgeExpired(now)

	if elem, ok := c.seen[key]; ok {
		elem.Value.(*entry).markedAt = now
		c.order.MoveToBack(elem)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[key] = c.order.PushBack(&entry{key: key, markedAt: now})
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.seen[key]
	if !ok {
		return false
	}
	return time.Since(elem.Value.(*entry).markedAt) < c.ttl
}

// Len returns the current entry count, including not-yet-purged expired keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) purgeExpired(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*entry)
		if now.Sub(e.markedAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, e.key)
	}
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.seen, e.key)
}
