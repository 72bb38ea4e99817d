package stream

import (
	"sync"
	"time"

	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/timeutil"
)

// Cache defaults. Discovery is cheap to repeat but expensive to wait on, so
// results stay fresh for a short TTL and a single underlying resolve is
// bounded to MaxWait regardless of what the caller asked for.
const (
	DefaultTTL     = 2 * time.Second
	DefaultMaxWait = 500 * time.Millisecond
)

type cacheKey struct {
	typeTag  string
	minCount int
}

type cacheEntry struct {
	descriptors []Descriptor
	fetched     time.Time
}

type resolveWaiter struct {
	fn func([]Descriptor, error)
	// suppressOnClose marks callbacks that must never fire after Close;
	// synchronous waiters instead unblock with ErrClosed.
	suppressOnClose bool
}

type inflightResolve struct {
	waiters []resolveWaiter
}

// Cache wraps a Resolver with a short-TTL result cache and coalescing of
// concurrent identical requests. At most one underlying resolve per
// (typeTag, minCount) key is ever in flight.
type Cache struct {
	resolver Resolver
	clock    timeutil.Clock
	ttl      time.Duration
	maxWait  time.Duration

	mu       sync.Mutex
	entries  map[cacheKey]cacheEntry
	inflight map[cacheKey]*inflightResolve
	closed   bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the cache freshness bound.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxWait overrides the per-resolve wait bound.
func WithMaxWait(d time.Duration) CacheOption {
	return func(c *Cache) { c.maxWait = d }
}

// WithClock injects a clock, for tests.
func WithClock(clock timeutil.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// NewCache creates a Cache over the given resolver.
func NewCache(resolver Resolver, opts ...CacheOption) *Cache {
	c := &Cache{
		resolver: resolver,
		clock:    timeutil.RealClock{},
		ttl:      DefaultTTL,
		maxWait:  DefaultMaxWait,
		entries:  make(map[cacheKey]cacheEntry),
		inflight: make(map[cacheKey]*inflightResolve),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the cached descriptor set when its age is below the TTL,
// otherwise performs a fresh discovery and refreshes the cache. Blocks the
// caller for at most the bounded discovery wait. A resolve joining an
// already in-flight discovery for the same key shares its result.
func (c *Cache) Resolve(typeTag string, minCount int, timeout time.Duration) ([]Descriptor, error) {
	type result struct {
		descriptors []Descriptor
		err         error
	}
	ch := make(chan result, 1)
	err := c.submit(typeTag, minCount, timeout, resolveWaiter{
		fn: func(d []Descriptor, err error) { ch <- result{d, err} },
	})
	if err != nil {
		return nil, err
	}
	r := <-ch
	return r.descriptors, r.err
}

// ResolveAsync performs the same logic as Resolve on a background goroutine
// and invokes callback with the result exactly once, never blocking the
// caller. Concurrent requests for the same key coalesce onto the in-flight
// discovery. After Close, pending callbacks are suppressed and new requests
// are rejected with ErrClosed.
func (c *Cache) ResolveAsync(typeTag string, minCount int, timeout time.Duration, callback func([]Descriptor, error)) error {
	return c.submit(typeTag, minCount, timeout, resolveWaiter{
		fn:              callback,
		suppressOnClose: true,
	})
}

// submit serves w from cache when fresh, joins an in-flight resolve, or
// starts a new one.
func (c *Cache) submit(typeTag string, minCount int, timeout time.Duration, w resolveWaiter) error {
	key := cacheKey{typeTag: typeTag, minCount: minCount}
	wait := timeout
	if wait <= 0 || wait > c.maxWait {
		wait = c.maxWait
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if entry, ok := c.entries[key]; ok && c.clock.Since(entry.fetched) < c.ttl {
		descriptors := append([]Descriptor(nil), entry.descriptors...)
		c.mu.Unlock()
		monitoring.Debugf("stream cache: hit for %s (n>=%d)", typeTag, minCount)
		go c.deliverCached(w, descriptors)
		return nil
	}

	if fl, ok := c.inflight[key]; ok {
		fl.waiters = append(fl.waiters, w)
		c.mu.Unlock()
		monitoring.Debugf("stream cache: joined in-flight resolve for %s", typeTag)
		return nil
	}

	c.inflight[key] = &inflightResolve{waiters: []resolveWaiter{w}}
	c.mu.Unlock()

	go func() {
		descriptors, err := c.resolver.Resolve(typeTag, minCount, wait)
		c.complete(key, descriptors, err)
	}()
	return nil
}

// deliverCached hands a cache hit to a waiter off the caller's goroutine.
// Close can land between the hit and this dispatch, so the closed flag is
// re-checked here: the suppression guarantee covers hits too, not just
// in-flight discoveries.
func (c *Cache) deliverCached(w resolveWaiter, descriptors []Descriptor) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	switch {
	case closed && w.suppressOnClose:
	case closed:
		w.fn(nil, ErrClosed)
	default:
		w.fn(descriptors, nil)
	}
}

func (c *Cache) complete(key cacheKey, descriptors []Descriptor, err error) {
	c.mu.Lock()
	fl := c.inflight[key]
	delete(c.inflight, key)
	closed := c.closed
	// Only successful, non-empty results refresh the cache: an empty set
	// usually means the publisher is still warming up, and caching it
	// would starve the caller's retry loop for a whole TTL.
	if !closed && err == nil && len(descriptors) > 0 {
		c.entries[key] = cacheEntry{
			descriptors: append([]Descriptor(nil), descriptors...),
			fetched:     c.clock.Now(),
		}
	}
	c.mu.Unlock()

	if fl == nil {
		return
	}
	if err != nil {
		monitoring.Logf("stream cache: resolve %s failed: %v", key.typeTag, err)
	}
	for _, w := range fl.waiters {
		switch {
		case closed && w.suppressOnClose:
			// Callback suppressed: the owning context is gone.
		case closed:
			w.fn(nil, ErrClosed)
		default:
			w.fn(descriptors, err)
		}
	}
}

// Invalidate drops any cached entry for the key, forcing the next resolve to
// hit the underlying resolver.
func (c *Cache) Invalidate(typeTag string, minCount int) {
	c.mu.Lock()
	delete(c.entries, cacheKey{typeTag: typeTag, minCount: minCount})
	c.mu.Unlock()
}

// Close tears the cache down. Discoveries still in flight are abandoned:
// their async callbacks never fire and their synchronous waiters unblock
// with ErrClosed once the bounded wait elapses.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
}
