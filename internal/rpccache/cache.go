// Package rpccache implements a read-through TTL cache over an allow-list of
// chain-summary RPC methods. Concurrent misses on the same key collapse into
// a single upstream call.
package rpccache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
)

// Upstream is the gateway surface the cache wraps
type Upstream interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

type entry struct {
	value     json.RawMessage
	fetchedAt time.Time
}

// flight is one in-progress refresh. value/err are written once before done
// is closed; every waiter reads them only after observing the close.
type flight struct {
	done  chan struct{}
	value json.RawMessage
	err   error
}

// Cache is a process-wide read-through cache. Only allow-listed methods are
// cached; anything else passes straight through to the upstream gateway.
type Cache struct {
	upstream Upstream
	ttls     map[string]time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	// In-flight refresh tracking, one flight per key, so concurrent misses
	// share a single upstream call.
	inflightMu sync.Mutex
	inflight   map[string]*flight

	hits   atomic.Int64
	misses atomic.Int64

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// New creates a cache with per-method TTLs from configuration
func New(upstream Upstream, cfg *config.CacheConfig) *Cache {
	ttls := map[string]time.Duration{
		rpc.MethodGetBlockchainInfo: cfg.SummaryTTL,
		rpc.MethodGetNetworkInfo:    cfg.SummaryTTL,
		rpc.MethodGetMiningInfo:     cfg.MiningTTL,
		rpc.MethodGetDifficulty:     cfg.MiningTTL,
		rpc.MethodGetRawMempool:     cfg.MempoolTTL,
		rpc.MethodGetBlock:          cfg.BlockTTL,
	}

	sweep := cfg.SweepInterval
	if sweep == 0 {
		sweep = time.Minute
	}

	return &Cache{
		upstream:      upstream,
		ttls:          ttls,
		entries:       make(map[string]entry),
		inflight:      make(map[string]*flight),
		sweepInterval: sweep,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the periodic sweep of expired entries
func (c *Cache) Start() {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Stop terminates the sweep goroutine
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Get serves method/params from cache when a live entry exists, otherwise
// refreshes through the gateway with a single upstream call per key.
func (c *Cache) Get(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	ttl, cacheable := c.ttls[strings.ToLower(method)]
	if !cacheable {
		return c.upstream.Call(ctx, method, params...)
	}

	key, err := cacheKey(method, params)
	if err != nil {
		return nil, err
	}

	if value, ok := c.lookup(key, ttl); ok {
		c.hits.Add(1)
		return value, nil
	}
	c.misses.Add(1)

	f, isFirst := c.getOrCreateInflight(key)
	if !isFirst {
		// Another caller is already refreshing this key; wait for its result.
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// The refresh outcome fans out to every collapsed waiter, so it must not
	// die with the first caller's connection. The gateway's own call timeout
	// still bounds the upstream call.
	value, err := c.upstream.Call(context.WithoutCancel(ctx), method, params...)
	if err == nil {
		c.store(key, value)
	} else {
		logging.FromContext(ctx).WithError(err).WithField("method", method).Debug("Cache refresh failed")
	}

	c.completeInflight(key, f, value, err)
	return value, err
}

// lookup returns a live entry. Entries past their TTL are treated as absent
// and removed lazily.
func (c *Cache) lookup(key string, ttl time.Duration) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(e.fetchedAt) > ttl {
		c.mu.Lock()
		if current, stillThere := c.entries[key]; stillThere && current.fetchedAt.Equal(e.fetchedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value json.RawMessage) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: time.Now()}
	c.mu.Unlock()
}

func (c *Cache) getOrCreateInflight(key string) (*flight, bool) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()

	if f, exists := c.inflight[key]; exists {
		return f, false
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[key] = f
	return f, true
}

func (c *Cache) completeInflight(key string, f *flight, value json.RawMessage, err error) {
	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()

	f.value = value
	f.err = err
	close(f.done)
}

// sweep drops entries past their method TTL
func (c *Cache) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		method := key
		if idx := strings.IndexByte(key, ':'); idx > 0 {
			method = key[:idx]
		}
		ttl, ok := c.ttls[method]
		if !ok || now.Sub(e.fetchedAt) > ttl {
			delete(c.entries, key)
		}
	}
}

// Stats reports hit/miss counters and current sizes
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Entries  int   `json:"entries"`
	Inflight int   `json:"inflight"`
}

// Stats returns a snapshot of cache statistics
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	c.inflightMu.Lock()
	inflight := len(c.inflight)
	c.inflightMu.Unlock()

	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Entries:  entries,
		Inflight: inflight,
	}
}

// cacheKey builds "method:<canonical-json-args>". The method is lowercased
// so differently cased callers share entries.
func cacheKey(method string, params []interface{}) (string, error) {
	if len(params) == 0 {
		return strings.ToLower(method), nil
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key params: %w", err)
	}
	return strings.ToLower(method) + ":" + string(encoded), nil
}
