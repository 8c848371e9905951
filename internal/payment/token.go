package payment

import (
    "context"
    "sync"
    "time"
)

// TokenFunc fetches a fresh gateway access token and reports how long it
// is valid for.
type TokenFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache caches the gateway access token for the lifetime of the
// process so reconciliation does not pay a token round-trip per call.
// The token is refreshed a fixed margin before its actual expiry.  The
// cache is an explicit object passed to the client, never a package
// global.
type TokenCache struct {
    mu     sync.Mutex
    fetch  TokenFunc
    margin time.Duration
    token  string
    expiry time.Time
    now    func() time.Time
}

// NewTokenCache returns a cache that refreshes margin before expiry.
func NewTokenCache(margin time.Duration, fetch TokenFunc) *TokenCache {
    return &TokenCache{fetch: fetch, margin: margin, now: time.Now}
}

// Get returns the cached token, refreshing it when missing or within the
// safety margin of its expiry.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.token != "" && c.now().Before(c.expiry.Add(-c.margin)) {
        return c.token, nil
    }
    token, ttl, err := c.fetch(ctx)
    if err != nil {
        return "", err
    }
    c.token = token
    c.expiry = c.now().Add(ttl)
    return token, nil
}

// Invalidate drops the cached token; the next Get fetches a new one.
// Called when the gateway rejects a request with 401.
func (c *TokenCache) Invalidate() {
    c.mu.Lock()
    c.token = ""
    c.mu.Unlock()
}
