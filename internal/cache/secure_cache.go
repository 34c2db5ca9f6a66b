// Package cache provides a bounded, TTL-based cache for decrypted field
// values. Every buffer the cache drops, for any reason, is wiped before it
// becomes unreachable, so evicted plaintext does not linger on the heap.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/allisson/fieldcrypt/internal/secmem"
)

// entry is one resident decrypted value. The plaintext buffer is owned
// exclusively by the cache; readers get copies.
type entry struct {
	fingerprint string
	plaintext   []byte
	expiresAt   time.Time
}

// SecureCache is a thread-safe LRU cache with a byte budget, an entry-count
// budget, and a fixed TTL per entry. Expired entries are purged lazily on
// access. Eviction is synchronous: an entry's buffer is wiped before the
// entry leaves the map, so concurrent insertion can never double-free it.
type SecureCache struct {
	maxBytes   int
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	bytes   int

	now func() time.Time // test hook
}

// New creates a SecureCache. maxBytes and maxEntries must be positive and
// ttl must be greater than zero; a nil cache is the idiom for "caching
// disabled" and all methods tolerate a nil receiver.
func New(maxBytes, maxEntries int, ttl time.Duration) *SecureCache {
	if maxBytes <= 0 || maxEntries <= 0 || ttl <= 0 {
		return nil
	}
	return &SecureCache{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns a copy of the cached plaintext for a fingerprint, or false on
// a miss. An expired entry is wiped and reported as a miss.
func (c *SecureCache) Get(fingerprint string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	out := make([]byte, len(ent.plaintext))
	copy(out, ent.plaintext)
	return out, true
}

// Put inserts a copy of plaintext under a fingerprint, evicting
// least-recently-used entries until the insert fits within both budgets.
// Values larger than the whole byte budget are not cached; callers fall
// back to decrypting. Put never fails.
func (c *SecureCache) Put(fingerprint string, plaintext []byte) {
	if c == nil || len(plaintext) == 0 || len(plaintext) > c.maxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		// Same fingerprint means same ciphertext, but refresh the TTL and
		// buffer anyway rather than trusting the resident copy forever.
		c.removeLocked(elem)
	}

	for c.bytes+len(plaintext) > c.maxBytes || c.order.Len() >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
	}

	buf := make([]byte, len(plaintext))
	copy(buf, plaintext)
	ent := &entry{
		fingerprint: fingerprint,
		plaintext:   buf,
		expiresAt:   c.now().Add(c.ttl),
	}
	c.entries[fingerprint] = c.order.PushFront(ent)
	c.bytes += len(buf)
}

// Invalidate wipes and removes a single entry.
func (c *SecureCache) Invalidate(fingerprint string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		c.removeLocked(elem)
	}
}

// Purge wipes and removes every entry.
func (c *SecureCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.order.Back(); elem != nil; elem = c.order.Back() {
		c.removeLocked(elem)
	}
}

// Len returns the number of resident entries.
func (c *SecureCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// SizeBytes returns the total plaintext bytes resident in the cache.
func (c *SecureCache) SizeBytes() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// removeLocked wipes an entry's buffer and unlinks it. Callers hold c.mu,
// which guarantees the wipe happens before any concurrent insert can reuse
// the fingerprint.
func (c *SecureCache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	secmem.Wipe(ent.plaintext)
	c.bytes -= len(ent.plaintext)
	delete(c.entries, ent.fingerprint)
	c.order.Remove(elem)
}
