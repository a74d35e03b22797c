package pipeline

import (
	"context"
	"sync"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/providers"
)

// ModelCache tracks the model backends that hold device-resident state.
// Backends load their models lazily and keep them cached across jobs; the
// cache exists so the orchestrator can release that memory explicitly after
// every job instead of relying on hidden process-wide state. Entries are
// bounded: registering beyond capacity releases and drops the oldest entry.
type ModelCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]providers.CacheReleaser
}

// NewModelCache creates a cache bounded to max entries.
func NewModelCache(max int) *ModelCache {
	if max <= 0 {
		max = 8
	}
	return &ModelCache{
		max:     max,
		entries: make(map[string]providers.CacheReleaser),
	}
}

// Register tracks a backend under name. Re-registering an existing name
// replaces the entry without counting against capacity.
func (c *ModelCache) Register(name string, releaser providers.CacheReleaser) {
	if releaser == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			if r := c.entries[oldest]; r != nil {
				c.releaseLocked(oldest, r)
			}
			delete(c.entries, oldest)
		}
		c.order = append(c.order, name)
	}
	c.entries[name] = releaser
}

// Len returns the number of tracked backends.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictAll asks every tracked backend to drop its cached model memory.
// Failures are logged and do not stop the sweep: eviction runs on both
// success and failure paths of every job.
func (c *ModelCache) EvictAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range c.order {
		if r := c.entries[name]; r != nil {
			if err := r.ReleaseCache(ctx); err != nil {
				logger.WithComponent("model-cache").Warn().
					Err(err).
					Str("backend", name).
					Msg("Cache eviction failed")
			}
		}
	}
}

func (c *ModelCache) releaseLocked(name string, r providers.CacheReleaser) {
	if err := r.ReleaseCache(context.Background()); err != nil {
		logger.WithComponent("model-cache").Warn().
			Err(err).
			Str("backend", name).
			Msg("Cache eviction failed on overflow")
	}
}
