// Package tokencache implements expiry-aware memoization of short-lived
// credentials, shared by the GitHub and GitLab authenticators.
package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeNeeded is the minimum remaining validity required of a
// cached token before it is considered usable, matching the Python
// original's `time_needed=60`.
const DefaultTimeNeeded = 60 * time.Second

// RenewFunc mints a fresh token, returning its value and the epoch
// second at which it expires.
type RenewFunc[T any] func(ctx context.Context) (value T, expiresAt int64, err error)

type entry[T any] struct {
	value     T
	expiresAt int64
}

// Cache is an expiry-aware memoization map keyed by an opaque name.
//
// A returned value is guaranteed valid for at least timeNeeded past
// the current moment; otherwise renew is invoked and the entry
// replaced atomically. Failure of renew propagates as a failure of
// Get and the prior entry (if any) is left untouched.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	group   singleflight.Group
}

// New creates an empty token cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]entry[T])}
}

// Get returns a cached value for name if it remains valid for at
// least timeNeeded, otherwise calls renew and caches the result.
//
// Concurrent calls for the same name are coalesced via singleflight so
// a cache miss does not double-mint a credential under preemptive
// scheduling (spec §9 allows, but does not require, this).
func (c *Cache[T]) Get(ctx context.Context, name string, renew RenewFunc[T], timeNeeded time.Duration) (T, error) {
	if timeNeeded <= 0 {
		timeNeeded = DefaultTimeNeeded
	}

	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()

	now := time.Now().Unix()
	if ok && e.expiresAt > now+int64(timeNeeded.Seconds()) {
		return e.value, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		// Re-check: another goroutine may have refreshed the entry
		// while we were waiting to be scheduled into Do.
		c.mu.Lock()
		e, ok := c.entries[name]
		c.mu.Unlock()
		now := time.Now().Unix()
		if ok && e.expiresAt > now+int64(timeNeeded.Seconds()) {
			return e.value, nil
		}

		value, expiresAt, err := renew(ctx)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("failed to renew token %q: %w", name, err)
		}

		c.mu.Lock()
		c.entries[name] = entry[T]{value: value, expiresAt: expiresAt}
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}
