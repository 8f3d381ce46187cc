package bmicro

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// ctxKey scopes context values of this package.
type ctxKey int

const ctxKeyTracked ctxKey = iota

// BodyCache keeps the raw bytes of request bodies that were read by one of the decoders so the single-use
// body stream is never read twice. Entries are keyed by a token the dispatcher generates for every
// request and they live until the request is released.
type BodyCache struct {
	next    atomic.Uint64
	mu      sync.Mutex
	entries map[uint64]*bodyEntry
}

type bodyEntry struct {
	mu     sync.Mutex
	cached bool
	raw    []byte
}

// tracked is what the request context carries to find its cache entry.
type tracked struct {
	cache *BodyCache
	token uint64
	limit string
}

// NewBodyCache inits an empty cache.
func NewBodyCache() *BodyCache {
	return &BodyCache{entries: make(map[uint64]*bodyEntry)}
}

// Track registers 'r' with the cache. It returns the request that must be passed on to the handler and a
// function that releases the entry, it is safe to call the release function more than once.
func (c *BodyCache) Track(r *http.Request) (*http.Request, func()) {
	return c.track(r, "")
}

// track is Track with a default body limit for the decoders.
func (c *BodyCache) track(r *http.Request, limit string) (*http.Request, func()) {
	tok := c.next.Add(1)

	c.mu.Lock()
	c.entries[tok] = &bodyEntry{}
	c.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.entries, tok)
			c.mu.Unlock()
		})
	}

	ctx := context.WithValue(r.Context(), ctxKeyTracked, tracked{cache: c, token: tok, limit: limit})

	return r.WithContext(ctx), release
}

// Len returns the number of requests currently tracked.
func (c *BodyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *BodyCache) entry(tok uint64) (*bodyEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[tok]
	return e, ok
}

func trackedFromContext(ctx context.Context) (tracked, bool) {
	t, ok := ctx.Value(ctxKeyTracked).(tracked)
	return t, ok
}
