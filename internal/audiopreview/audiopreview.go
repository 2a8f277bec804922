package audiopreview

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

//go:generate go run go.uber.org/mock/mockgen -source=audiopreview.go -destination=mocks/mock.go

// Resolver maps an audio clip's (title, artist) pair to a playable preview
// URL. An empty URL with a nil error means no preview exists; lookups are
// best-effort and the synchronizer degrades silently when one fails.
type Resolver interface {
	Resolve(ctx context.Context, title, artist string) (string, error)
}

// Cached wraps a Resolver with a session-lifetime cache keyed on
// (title, artist). Concurrent lookups for the same key are collapsed into a
// single upstream call.
type Cached struct {
	inner Resolver

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]string
}

func NewCached(inner Resolver) *Cached {
	return &Cached{
		inner: inner,
		cache: make(map[string]string),
	}
}

var _ Resolver = (*Cached)(nil)

func (c *Cached) Resolve(ctx context.Context, title, artist string) (string, error) {
	key := cacheKey(title, artist)

	c.mu.RLock()
	url, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return url, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		url, err := c.inner.Resolve(ctx, title, artist)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[key] = url
		c.mu.Unlock()
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func cacheKey(title, artist string) string {
	return strings.ToLower(title) + "\x00" + strings.ToLower(artist)
}
