// Package cache is a keyed, revalidating request cache. Reads serve the
// last-known-good value immediately and refresh it in the background
// (stale-while-revalidate); mutations rewrite entries synchronously so the
// UI reflects an intended end state before the network confirms it.
//
// Entries carry a version stamp, bumped on every mutation. A fetch that
// started against an older version is discarded on arrival, so a slow
// revalidation can never overwrite a newer optimistic write.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Well-known cache keys. Every component addressing a resource uses these.
const (
	KeyEvents         = "events"
	KeyUser           = "user"
	KeyUserActivities = "user-activities"
	KeyUserNFTs       = "user-nfts"
	KeyRewardHistory  = "rewards-history"
)

const (
	// DefaultFreshFor is how long a fetched value is served without a
	// background refresh.
	DefaultFreshFor = 30 * time.Second
	// DefaultDedupInterval is the window in which repeated reads of one key
	// collapse into a single network request.
	DefaultDedupInterval = 5 * time.Second
)

// FetchFunc loads the authoritative value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// UpdateFunc rewrites a cached value. It receives the current value (nil
// when the key has never been populated) and returns the replacement.
type UpdateFunc func(current any) any

// ReadOptions tune a single logical resource.
type ReadOptions struct {
	FreshFor              time.Duration
	DedupInterval         time.Duration
	RevalidateOnFocus     bool
	RevalidateOnReconnect bool
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.FreshFor == 0 {
		o.FreshFor = DefaultFreshFor
	}
	if o.DedupInterval == 0 {
		o.DedupInterval = DefaultDedupInterval
	}
	return o
}

type entry struct {
	data        any
	hasData     bool
	fetchedAt   time.Time
	lastAttempt time.Time
	lastErr     error
	version     uint64
	fetch       FetchFunc
	opts        ReadOptions
}

// Cache is the shared store. It is the only shared mutable resource in the
// application and is written exclusively through Mutate/Revalidate.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{opts: ReadOptions{}.withDefaults()}
		c.entries[key] = e
	}
	return e
}

// Read returns the cached value for key, fetching or refreshing as needed.
//
// Fresh data returns immediately. Stale data returns immediately too, with a
// refresh started in the background. A missing value is fetched
// synchronously. A failed refresh never clears previously cached data; the
// failure is held in the error side channel (LastError).
func (c *Cache) Read(ctx context.Context, key string, fetch FetchFunc, opts ReadOptions) (any, error) {
	opts = opts.withDefaults()

	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetch = fetch
	e.opts = opts
	now := c.now()

	if e.hasData && now.Sub(e.fetchedAt) < opts.FreshFor {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}

	if e.hasData {
		// Stale: serve the previous value and refresh behind it, unless a
		// refresh was attempted inside the dedup window.
		stale := e.data
		if now.Sub(e.lastAttempt) >= opts.DedupInterval {
			e.lastAttempt = now
			version := e.version
			c.mu.Unlock()
			go c.refresh(key, fetch, version)
			return stale, nil
		}
		c.mu.Unlock()
		return stale, nil
	}

	// No data yet: fetch synchronously. Concurrent reads share one flight.
	e.lastAttempt = now
	version := e.version
	c.mu.Unlock()

	data, err, _ := c.group.Do(key, func() (any, error) {
		return fetch(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entryLocked(key)
	if err != nil {
		e.lastErr = err
		if e.hasData {
			return e.data, nil
		}
		return nil, err
	}
	if e.version == version {
		e.data = data
		e.hasData = true
		e.fetchedAt = c.now()
		e.lastErr = nil
	}
	if e.hasData {
		return e.data, nil
	}
	return data, nil
}

// refresh fetches in the background. It deliberately runs on a fresh
// context: the caller that triggered it may be long gone, and an abandoned
// result is simply discarded by the version guard.
func (c *Cache) refresh(key string, fetch FetchFunc, version uint64) {
	data, err, _ := c.group.Do(key, func() (any, error) {
		return fetch(context.Background())
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	if err != nil {
		e.lastErr = err
		return
	}
	if e.version != version {
		// A mutation landed while this fetch was in flight. Its result
		// describes a world that no longer exists.
		return
	}
	e.data = data
	e.hasData = true
	e.fetchedAt = c.now()
	e.lastErr = nil
}

// Mutate rewrites the cached value for key synchronously and bumps its
// version. It never touches the network.
func (c *Cache) Mutate(key string, update UpdateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutateLocked(key, update)
}

// MutateMany applies updates to several keys under one lock, so no reader
// observes a partially applied multi-key mutation.
func (c *Cache) MutateMany(updates map[string]UpdateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, update := range updates {
		c.mutateLocked(key, update)
	}
}

func (c *Cache) mutateLocked(key string, update UpdateFunc) {
	e := c.entryLocked(key)
	var current any
	if e.hasData {
		current = e.data
	}
	e.data = update(current)
	e.hasData = true
	e.version++
}

// Revalidate forces a synchronous refetch of key using its registered
// fetcher, replacing any optimistic value with authoritative data. Keys
// never read through the cache are skipped.
func (c *Cache) Revalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return nil
	}
	fetch := e.fetch
	version := e.version
	e.lastAttempt = c.now()
	c.mu.Unlock()

	data, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entryLocked(key)
	if err != nil {
		e.lastErr = err
		return err
	}
	if e.version != version {
		return nil
	}
	e.data = data
	e.hasData = true
	e.fetchedAt = c.now()
	e.lastErr = nil
	return nil
}

// RevalidateAll revalidates every given key. All keys are attempted; the
// first error is returned.
func (c *Cache) RevalidateAll(ctx context.Context, keys ...string) error {
	var first error
	for _, key := range keys {
		if err := c.Revalidate(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OnFocus triggers background refreshes for keys opted into focus
// revalidation. Called when the terminal regains focus.
func (c *Cache) OnFocus() {
	c.triggerWhere(func(o ReadOptions) bool { return o.RevalidateOnFocus })
}

// OnReconnect triggers background refreshes for keys opted into reconnect
// revalidation.
func (c *Cache) OnReconnect() {
	c.triggerWhere(func(o ReadOptions) bool { return o.RevalidateOnReconnect })
}

func (c *Cache) triggerWhere(match func(ReadOptions) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if e.fetch == nil || !match(e.opts) {
			continue
		}
		if now.Sub(e.lastAttempt) < e.opts.DedupInterval {
			continue
		}
		e.lastAttempt = now
		go c.refresh(key, e.fetch, e.version)
	}
}

// Peek returns the cached value without touching the network.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// LastError is the error side channel: the most recent fetch failure for
// key, or nil. Stale data plus a non-nil LastError means "showing old data,
// refresh failing".
func (c *Cache) LastError(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.lastErr
	}
	return nil
}

// Version returns the mutation counter for key.
func (c *Cache) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.version
	}
	return 0
}

// Read is the typed wrapper around Cache.Read.
func Read[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error), opts ReadOptions) (T, error) {
	var zero T
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

// Peek is the typed wrapper around Cache.Peek.
func Peek[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Peek(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
