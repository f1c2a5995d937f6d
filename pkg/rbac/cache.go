package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionCache stores effective permission sets per (user, scope).
//
// Entries are written under the user's generation. InvalidateUser bumps the
// generation so any entry written under an older one, including a set loaded
// before a mutation and written after it, is never read again.
type PermissionCache interface {
	Generation(ctx context.Context, userID int64) (uint64, error)
	Get(ctx context.Context, userID int64, gen uint64, filter ScopeFilter) ([]string, bool, error)
	Set(ctx context.Context, userID int64, gen uint64, filter ScopeFilter, perms []string) error
	InvalidateUser(ctx context.Context, userID int64) error
	Name() string
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Generation(context.Context, int64) (uint64, error) { return 0, nil }

func (NoopCache) Get(context.Context, int64, uint64, ScopeFilter) ([]string, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(context.Context, int64, uint64, ScopeFilter, []string) error { return nil }

func (NoopCache) InvalidateUser(context.Context, int64) error { return nil }

func (NoopCache) Name() string { return "none" }

// MemoryCache is an in-process LRU with per-entry TTL.
type MemoryCache struct {
	entries *expirable.LRU[string, []string]

	mu             sync.Mutex
	generations    map[int64]uint64
	epoch          uint64
	floor          uint64
	maxGenerations int
}

const minTrackedGenerations = 1024

// NewMemoryCache creates a cache holding at most size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCache{
		entries:        expirable.NewLRU[string, []string](size, nil, ttl),
		generations:    make(map[int64]uint64),
		maxGenerations: max(size, minTrackedGenerations),
	}
}

// Generation counters live outside the LRU: evicting one would reset it to
// zero and resurrect entries written under the old zero generation. Users
// without a counter are at the floor, which is never below any generation
// handed out before the counters were last reset.
func (c *MemoryCache) Generation(_ context.Context, userID int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen, ok := c.generations[userID]; ok {
		return gen, nil
	}
	return c.floor, nil
}

func (c *MemoryCache) Get(_ context.Context, userID int64, gen uint64, filter ScopeFilter) ([]string, bool, error) {
	perms, ok := c.entries.Get(entryKey(userID, gen, filter))
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), perms...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID int64, gen uint64, filter ScopeFilter, perms []string) error {
	c.entries.Add(entryKey(userID, gen, filter), append([]string(nil), perms...))
	return nil
}

// InvalidateUser moves the user to a fresh generation from a cache-wide
// counter. Once more than maxGenerations users are tracked, the counters are
// dropped and the floor raised past every generation in use, so the map
// stays bounded and every cached set is discarded.
func (c *MemoryCache) InvalidateUser(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.generations[userID] = c.epoch
	if len(c.generations) > c.maxGenerations {
		c.generations = make(map[int64]uint64)
		c.floor = c.epoch
		c.entries.Purge()
	}
	return nil
}

func (c *MemoryCache) Name() string { return "memory" }

// Len returns the number of live entries.
func (c *MemoryCache) Len() int { return c.entries.Len() }

// RedisCache shares permission sets between server instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced by prefix
// (default "tasklane:perm").
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "tasklane:perm"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) genKey(userID int64) string {
	return fmt.Sprintf("%s:gen:%d", c.prefix, userID)
}

// Generation keys carry no expiry for the same reason the memory cache keeps
// them out of its LRU.
func (c *RedisCache) Generation(ctx context.Context, userID int64) (uint64, error) {
	raw, err := c.client.Get(ctx, c.genKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %q: %w", raw, err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, userID int64, gen uint64, filter ScopeFilter) ([]string, bool, error) {
	payload, err := c.client.Get(ctx, c.prefix+":"+entryKey(userID, gen, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return perms, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int64, gen uint64, filter ScopeFilter, perms []string) error {
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+":"+entryKey(userID, gen, filter), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID int64) error {
	if err := c.client.Incr(ctx, c.genKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis incr generation: %w", err)
	}
	return nil
}

func (c *RedisCache) Name() string { return "redis" }

func entryKey(userID int64, gen uint64, filter ScopeFilter) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatUint(gen, 10) + ":" + filter.Key()
}
