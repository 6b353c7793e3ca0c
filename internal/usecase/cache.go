package usecase

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	destination   string
	domainContext string
}

// ClassificationCache memoizes destination verdicts for the current session.
//
// Concurrent misses for the same key collapse into one remote call through
// Resolve; every waiter receives the shared result. Entries are write-once and
// only disappear on Clear. There is no size bound.
type ClassificationCache struct {
	mu         sync.RWMutex
	entries    map[cacheKey]bool
	generation uint64
	inflight   singleflight.Group
}

// NewClassificationCache creates an empty cache.
func NewClassificationCache() *ClassificationCache {
	return &ClassificationCache{entries: make(map[cacheKey]bool)}
}

// Lookup returns the recorded verdict. It never calls a remote service.
func (c *ClassificationCache) Lookup(destination, domainContext string) (verdict bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	verdict, ok = c.entries[cacheKey{destination, domainContext}]
	return verdict, ok
}

// Record stores a verdict. The first write wins; it reports whether this call
// wrote the entry.
func (c *ClassificationCache) Record(destination, domainContext string, verdict bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey{destination, domainContext}
	if _, exists := c.entries[k]; exists {
		return false
	}
	c.entries[k] = verdict
	return true
}

// Clear drops every entry. In-flight resolutions started before Clear no
// longer share a key with new ones.
func (c *ClassificationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]bool)
	c.generation++
}

// Len returns the number of recorded verdicts.
func (c *ClassificationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve runs fn at most once per key among concurrent callers. The shared
// call is detached from the caller's cancellation so one abandoned waiter does
// not fail the others; fn is responsible for its own timeout. Resolve does not
// record the result.
func (c *ClassificationCache) Resolve(
	ctx context.Context,
	destination, domainContext string,
	fn func(ctx context.Context) (bool, error),
) (verdict bool, shared bool, err error) {
	c.mu.RLock()
	key := fmt.Sprintf("%d\x00%s\x00%s", c.generation, domainContext, destination)
	c.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		return false, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Shared, res.Err
		}
		return res.Val.(bool), res.Shared, nil
	}
}
