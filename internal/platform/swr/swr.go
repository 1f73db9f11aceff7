// Package swr implements a stale-while-revalidate query cache.
//
// Each query key owns one Handle holding the last successfully fetched value,
// a loading flag, and the last fetch failure. A handle keeps serving its
// previous value while a refresh is in flight, so consumers can soft-render
// stale data instead of blanking out. Concurrent invocations of the same key
// share a single in-flight fetch, and a per-handle generation counter discards
// completions that were superseded by a later fetch.
package swr

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Fetcher loads the value for one query key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is one consistent read of a handle's observable state.
//
// HasData distinguishes "no data yet" from a legitimately empty value; Current
// is only meaningful when HasData is true. While Loading is true with HasData
// set, Current still reflects the previous (stale) value.
type Snapshot[T any] struct {
	Current T
	HasData bool
	Loading bool
	Err     error
}

// Options configures a Cache.
type Options struct {
	// FetchTimeout bounds each fetcher execution. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// DefaultFetchTimeout bounds fetcher executions when Options leaves it unset.
const DefaultFetchTimeout = 5 * time.Second

// Cache holds query handles keyed by a stable string (query name plus
// serialized arguments). A Cache is process-scoped state with an explicit
// lifecycle; construct it at startup and pass it where it is needed.
type Cache[T any] struct {
	fetchTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*Handle[T]
	subs    map[string]map[int]chan struct{}
	nextSub int
}

// Handle is the cached state for one query key. All mutation happens on the
// handle's own fetch completions; consumers only read snapshots.
type Handle[T any] struct {
	cache   *Cache[T]
	key     string
	fetcher Fetcher[T]

	mu       sync.Mutex
	current  T
	hasData  bool
	loading  bool
	err      error
	started  uint64 // generation of the most recently started fetch
	applied  uint64 // generation of the most recently applied completion
	settled  chan struct{}
	refs     int
	lastUsed time.Time
}

// New creates an empty cache.
func New[T any](opts Options) *Cache[T] {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Cache[T]{
		fetchTimeout: timeout,
		handles:      make(map[string]*Handle[T]),
		subs:         make(map[string]map[int]chan struct{}),
	}
}

// Invoke returns the handle for key, creating it and starting the first fetch
// when none exists. Invocations while a fetch is outstanding share that fetch
// rather than issuing redundant work. The returned handle holds one reference;
// callers release it with Release when done observing the key.
func (c *Cache[T]) Invoke(ctx context.Context, key string, fetcher Fetcher[T]) *Handle[T] {
	c.mu.Lock()
	handle, ok := c.handles[key]
	if !ok {
		// Born loading, with the settle channel already in place: a second
		// invoker can win handle.mu before the first fetch starts, and must
		// still observe an in-flight state rather than an empty settled one.
		handle = &Handle[T]{
			cache:   c,
			key:     key,
			fetcher: fetcher,
			loading: true,
			settled: make(chan struct{}),
		}
		c.handles[key] = handle
	}
	c.mu.Unlock()

	handle.mu.Lock()
	handle.refs++
	handle.lastUsed = time.Now()
	if !ok {
		handle.startFetchLocked(ctx)
	}
	handle.mu.Unlock()
	return handle
}

// Refresh re-executes the fetcher for an existing handle without clearing its
// current value. It reports whether a handle for key exists. A refresh issued
// while another fetch is outstanding starts a new generation; the older
// completion is discarded if it arrives after the newer one has applied.
func (c *Cache[T]) Refresh(ctx context.Context, key string) bool {
	c.mu.Lock()
	handle, ok := c.handles[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handle.Refresh(ctx)
	return true
}

// RefreshPrefix refreshes every live handle whose key starts with prefix and
// returns how many were refreshed. Mutations use it to invalidate all cached
// variants of a query (for example every filtered listing for one owner)
// without tracking each concrete key.
func (c *Cache[T]) RefreshPrefix(ctx context.Context, prefix string) int {
	c.mu.Lock()
	var targets []*Handle[T]
	for key, handle := range c.handles {
		if strings.HasPrefix(key, prefix) {
			targets = append(targets, handle)
		}
	}
	c.mu.Unlock()

	for _, handle := range targets {
		handle.Refresh(ctx)
	}
	return len(targets)
}

// Subscribe registers interest in key. The returned channel receives one
// signal after every settled fetch for the key (success or failure); signals
// coalesce when the subscriber lags. The cancel function unregisters and
// closes the channel.
func (c *Cache[T]) Subscribe(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	subs, ok := c.subs[key]
	if !ok {
		subs = make(map[int]chan struct{})
		c.subs[key] = subs
	}
	token := c.nextSub
	c.nextSub++
	subs[token] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if subs, ok := c.subs[key]; ok {
			if _, present := subs[token]; present {
				delete(subs, token)
				close(ch)
				if len(subs) == 0 {
					delete(c.subs, key)
				}
			}
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Evict removes the handle for key when no consumer references it. It reports
// whether the handle was removed.
func (c *Cache[T]) Evict(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle, ok := c.handles[key]
	if !ok {
		return false
	}
	handle.mu.Lock()
	removable := handle.refs == 0
	handle.mu.Unlock()
	if !removable {
		return false
	}
	delete(c.handles, key)
	return true
}

// Sweep evicts unreferenced handles that have been idle for at least maxIdle
// and returns how many were removed.
func (c *Cache[T]) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, handle := range c.handles {
		handle.mu.Lock()
		stale := handle.refs == 0 && !handle.loading && handle.lastUsed.Before(cutoff)
		handle.mu.Unlock()
		if stale {
			delete(c.handles, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live handles.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *Cache[T]) notify(key string) {
	// Sends stay under the lock so a concurrent cancel cannot close a
	// channel mid-send; they never block because every channel is buffered
	// and lagging subscribers coalesce.
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Key returns the handle's query key.
func (h *Handle[T]) Key() string {
	return h.key
}

// Snapshot returns the handle's observable state.
func (h *Handle[T]) Snapshot() Snapshot[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot[T]{
		Current: h.current,
		HasData: h.hasData,
		Loading: h.loading,
		Err:     h.err,
	}
}

// Refresh starts a new fetch generation without clearing the current value.
func (h *Handle[T]) Refresh(ctx context.Context) {
	h.mu.Lock()
	h.lastUsed = time.Now()
	h.startFetchLocked(ctx)
	h.mu.Unlock()
}

// Wait blocks until the outstanding fetch settles or ctx ends. It returns the
// handle's value and its error state after settling; a stale value is returned
// alongside the error when a refresh failed over existing data.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	for {
		h.mu.Lock()
		if !h.loading {
			value, err := h.current, h.err
			h.mu.Unlock()
			return value, err
		}
		settled := h.settled
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-settled:
		}
	}
}

// Release drops one consumer reference. Unreferenced handles stay cached until
// evicted or swept; lifetime is bounded by the longest-lived holder plus the
// sweep policy.
func (h *Handle[T]) Release() {
	h.mu.Lock()
	if h.refs > 0 {
		h.refs--
	}
	h.lastUsed = time.Now()
	h.mu.Unlock()
}

// startFetchLocked begins a new fetch generation. Callers hold h.mu.
func (h *Handle[T]) startFetchLocked(ctx context.Context) {
	h.started++
	generation := h.started
	h.loading = true
	if h.settled == nil {
		h.settled = make(chan struct{})
	}

	// The fetch outlives the invoking caller; detach from its cancellation
	// but keep values for tracing.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cache.fetchTimeout)
	go func() {
		defer cancel()
		value, err := h.fetcher(fetchCtx)
		h.settle(generation, value, err)
	}()
}

// settle applies one fetch completion. Completions apply in completion order;
// a completion whose generation is at or below the last applied one was
// superseded and is discarded.
func (h *Handle[T]) settle(generation uint64, value T, err error) {
	h.mu.Lock()
	if generation <= h.applied {
		h.mu.Unlock()
		return
	}
	h.applied = generation

	if err != nil {
		h.err = err
	} else {
		h.current = value
		h.hasData = true
		h.err = nil
	}

	// Loading clears only when the newest generation settles; an older
	// completion arriving while a newer fetch is in flight keeps the handle
	// in its loading state.
	if generation == h.started {
		h.loading = false
		if h.settled != nil {
			close(h.settled)
			h.settled = nil
		}
	}
	h.mu.Unlock()

	h.cache.notify(h.key)
}
