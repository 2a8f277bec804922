package audiopreview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	mu    sync.Mutex
	calls int32
	url   string
	err   error
	gate  chan struct{} // when set, Resolve blocks until it closes
}

func (r *countingResolver) Resolve(context.Context, string, string) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url, r.err
}

func TestCachedResolveHitsUpstreamOnce(t *testing.T) {
	inner := &countingResolver{url: "https://preview/a.mp3"}
	c := NewCached(inner)

	for i := 0; i < 3; i++ {
		url, err := c.Resolve(context.Background(), "Song", "Artist")
		require.NoError(t, err)
		assert.Equal(t, "https://preview/a.mp3", url)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestCachedResolveKeyIsCaseInsensitive(t *testing.T) {
	inner := &countingResolver{url: "https://preview/a.mp3"}
	c := NewCached(inner)

	_, err := c.Resolve(context.Background(), "Song", "Artist")
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "SONG", "artist")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestCachedResolveCachesNoPreviewResult(t *testing.T) {
	inner := &countingResolver{url: ""}
	c := NewCached(inner)

	url, err := c.Resolve(context.Background(), "Obscure", "Band")
	require.NoError(t, err)
	assert.Empty(t, url)

	_, err = c.Resolve(context.Background(), "Obscure", "Band")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls), "a no-preview answer is cached too")
}

func TestCachedResolveDoesNotCacheErrors(t *testing.T) {
	inner := &countingResolver{err: errors.New("upstream down")}
	c := NewCached(inner)

	_, err := c.Resolve(context.Background(), "Song", "Artist")
	require.Error(t, err)

	inner.mu.Lock()
	inner.err = nil
	inner.url = "https://preview/a.mp3"
	inner.mu.Unlock()

	url, err := c.Resolve(context.Background(), "Song", "Artist")
	require.NoError(t, err)
	assert.Equal(t, "https://preview/a.mp3", url, "a failed lookup stays retryable")
}

func TestCachedResolveCollapsesConcurrentLookups(t *testing.T) {
	inner := &countingResolver{url: "https://preview/a.mp3", gate: make(chan struct{})}
	c := NewCached(inner)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), "Song", "Artist")
		}(i)
	}

	// let every goroutine join the in-flight lookup before releasing it
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&inner.calls) == 1
	}, time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	close(inner.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls), "in-flight lookups for one key collapse")
	for _, url := range results {
		assert.Equal(t, "https://preview/a.mp3", url)
	}
}
