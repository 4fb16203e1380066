package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	profileCacheTTL          = 1 * time.Hour
	profileInvalidateChannel = "profile:invalidate"
)

// cachedProfile is the Redis representation. The source credential is never cached.
type cachedProfile struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	UniqueID     string    `json:"unique_id"`
	OverlayToken string    `json:"overlay_token"`
	Capacity     int       `json:"capacity"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCached(s *domain.Streamer) cachedProfile {
	return cachedProfile{
		ID:           s.ID,
		DisplayName:  s.DisplayName,
		UniqueID:     s.UniqueID,
		OverlayToken: s.OverlayToken,
		Capacity:     s.Capacity,
		CreatedAt:    s.CreatedAt,
	}
}

func (c cachedProfile) toDomain() *domain.Streamer {
	return &domain.Streamer{
		ID:           c.ID,
		DisplayName:  c.DisplayName,
		UniqueID:     c.UniqueID,
		OverlayToken: c.OverlayToken,
		Capacity:     c.Capacity,
		CreatedAt:    c.CreatedAt,
	}
}

// ProfileCache is a read-through cache for streamer profiles: in-memory,
// then Redis, then the repository. Redis failures degrade to the repository.
type ProfileCache struct {
	rdb     goredis.Cmdable
	repo    domain.StreamerRepository
	mem     *memoryCache
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
}

var (
	_ domain.StreamerSource           = (*ProfileCache)(nil)
	_ domain.StreamerCacheInvalidator = (*ProfileCache)(nil)
)

func NewProfileCache(rdb goredis.Cmdable, repo domain.StreamerRepository, memTTL time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *ProfileCache {
	return &ProfileCache{
		rdb:     rdb,
		repo:    repo,
		mem:     newMemoryCache(memTTL, clock),
		clock:   clock,
		metrics: m,
	}
}

// StartEvictionTimer periodically drops expired in-memory entries. Call the
// returned function to stop it.
func (c *ProfileCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired profile cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (c *ProfileCache) GetStreamer(ctx context.Context, id string) (*domain.Streamer, error) {
	if p, ok := c.mem.get(id); ok {
		c.hit("memory")
		return p.toDomain(), nil
	}
	c.miss("memory")

	if p, ok := c.getCached(ctx, id); ok {
		c.hit("redis")
		c.mem.set(id, p)
		return p.toDomain(), nil
	}
	c.miss("redis")

	s, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	p := toCached(s)
	c.mem.set(id, p)
	c.writeCache(ctx, id, p)
	return p.toDomain(), nil
}

// InvalidateCache drops the profile locally and in Redis and tells other
// instances to drop their in-memory copy.
func (c *ProfileCache) InvalidateCache(ctx context.Context, id string) error {
	c.mem.invalidate(id)
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}

	if err := c.rdb.Del(ctx, profileCacheKey(id)).Err(); err != nil {
		c.backendError("del")
		return fmt.Errorf("failed to invalidate profile cache: %w", err)
	}
	if err := c.rdb.Publish(ctx, profileInvalidateChannel, id).Err(); err != nil {
		c.backendError("publish")
		return fmt.Errorf("failed to publish profile invalidation: %w", err)
	}
	return nil
}

func (c *ProfileCache) invalidateLocal(id string) {
	c.mem.invalidate(id)
}

func (c *ProfileCache) writeCache(ctx context.Context, id string, p cachedProfile) {
	encoded, err := json.Marshal(p)
	if err != nil {
		slog.Warn("Failed to marshal profile for Redis cache", "streamer_id", id, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, profileCacheKey(id), encoded, profileCacheTTL).Err(); err != nil {
		c.backendError("set")
		slog.Warn("Failed to populate Redis profile cache", "streamer_id", id, "error", err)
	}
}

func (c *ProfileCache) getCached(ctx context.Context, id string) (cachedProfile, bool) {
	data, err := c.rdb.Get(ctx, profileCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.backendError("get")
			slog.Warn("Redis profile cache GET failed", "streamer_id", id, "error", err)
		}
		return cachedProfile{}, false
	}

	var p cachedProfile
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("Failed to unmarshal cached profile", "streamer_id", id, "error", err)
		return cachedProfile{}, false
	}
	return p, true
}

func (c *ProfileCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (c *ProfileCache) miss(layer string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(layer).Inc()
	}
}

func (c *ProfileCache) backendError(op string) {
	if c.metrics != nil {
		c.metrics.Errors.WithLabelValues(op).Inc()
	}
}

func profileCacheKey(id string) string {
	return "profile_cache:" + id
}

// memoryCache is the in-process layer with TTL expiry.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryCacheEntry struct {
	profile   cachedProfile
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(id string) (cachedProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return cachedProfile{}, false
	}
	return entry.profile, true
}

func (c *memoryCache) set(id string, p cachedProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = memoryCacheEntry{profile: p, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *memoryCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}
