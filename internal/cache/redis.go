package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"

	"market-hunter/internal/logger"
	"market-hunter/internal/scraper"
)

const (
	resultsPrefix   = "scraping:"
	rateLimitPrefix = "rate_limit:"

	defaultTTL        = 10 * time.Minute
	defaultRateWindow = 5 * time.Minute
)

// SearchCache keeps one-off search results in process memory and, when a
// Redis client is configured, in Redis so replicas share them. Redis errors
// fall back to the local tier.
type SearchCache struct {
	client *redis.Client
	local  *ristretto.Cache
	log    logger.Logger

	ttl    time.Duration
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	gates map[string]time.Time
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// New builds the cache. client may be nil.
func New(client *redis.Client, ttl, window time.Duration, log logger.Logger) (*SearchCache, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	if log == nil {
		log = logger.Nop()
	}

	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	return &SearchCache{
		client: client,
		local:  local,
		log:    log,
		ttl:    ttl,
		window: window,
		now:    time.Now,
		gates:  make(map[string]time.Time),
	}, nil
}

func (c *SearchCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *SearchCache) Get(ctx context.Context, key string) ([]scraper.Listing, bool) {
	if v, ok := c.local.Get(key); ok {
		if listings, ok := v.([]scraper.Listing); ok {
			return listings, true
		}
	}
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, resultsPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("redis get failed", logger.String("key", key), logger.Error(err))
		return nil, false
	}

	var listings []scraper.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		c.log.Warn("dropping unreadable cache entry", logger.String("key", key), logger.Error(err))
		return nil, false
	}

	c.local.SetWithTTL(key, listings, int64(len(data)), c.ttl)
	return listings, true
}

func (c *SearchCache) Set(ctx context.Context, key string, listings []scraper.Listing) {
	if listings == nil {
		listings = []scraper.Listing{}
	}
	data, err := json.Marshal(listings)
	if err != nil {
		c.log.Warn("failed to encode search results", logger.Error(err))
		return
	}

	c.local.SetWithTTL(key, listings, int64(len(data)), c.ttl)
	c.local.Wait()

	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, resultsPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", logger.String("key", key), logger.Error(err))
	}
}

// Allow reports whether a scrape for key may run now. Only the first call
// in each window is allowed.
func (c *SearchCache) Allow(ctx context.Context, key string) bool {
	if c.client != nil {
		rk := rateLimitPrefix + key
		count, err := c.client.Incr(ctx, rk).Result()
		if err == nil {
			if count == 1 {
				c.client.Expire(ctx, rk, c.window)
			}
			return count == 1
		}
		c.log.Warn("redis rate limit failed, using local gate", logger.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.gates[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range c.gates {
		if !now.Before(until) {
			delete(c.gates, k)
		}
	}
	c.gates[key] = now.Add(c.window)
	return true
}

func (c *SearchCache) Close() error {
	c.local.Close()
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
