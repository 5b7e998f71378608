package modes

import (
	"sync"
	"time"
)

// ICAO returns the transponder address for downlink formats that carry it
// directly (11, 17 and 18). Other formats overlay the address onto the
// parity field and return ok=false here.
func ICAO(payload []byte) (addr uint32, ok bool) {
	if len(payload) < 4 {
		return 0, false
	}
	switch DF(payload) {
	case 11, 17, 18:
		return uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3]), true
	}
	return 0, false
}

// AddressCache remembers recently seen transponder addresses. Entries
// expire after the configured TTL. Safe for concurrent use.
type AddressCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[uint32]time.Time
}

// NewAddressCache creates a cache with the given entry lifetime. A zero
// or negative TTL defaults to one minute.
func NewAddressCache(ttl time.Duration) *AddressCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AddressCache{
		ttl:  ttl,
		seen: make(map[uint32]time.Time),
	}
}

// Add records an address at the given time.
func (c *AddressCache) Add(addr uint32, now time.Time) {
	c.mu.Lock()
	c.seen[addr] = now
	c.mu.Unlock()
}

// Seen reports whether the address was recorded within the TTL. Expired
// entries are removed on lookup.
func (c *AddressCache) Seen(addr uint32, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.seen[addr]
	if !ok {
		return false
	}
	if now.Sub(t) > c.ttl {
		delete(c.seen, addr)
		return false
	}
	return true
}

// Len returns the number of live entries, expiring stale ones.
func (c *AddressCache) Len(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for addr, t := range c.seen {
		if now.Sub(t) > c.ttl {
			delete(c.seen, addr)
		}
	}
	return len(c.seen)
}
