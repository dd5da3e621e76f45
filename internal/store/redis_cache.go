package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/redis/go-redis/v9"
)

// SessionCache remembers the latest session number recorded per user.
type SessionCache interface {
	// Latest returns the cached number and whether an entry existed.
	Latest(ctx context.Context, user string) (int, bool, error)
	// Raise stores n unless a higher number is already cached.
	Raise(ctx context.Context, user string, n int) error
}

// raiseScript sets KEYS[1] to ARGV[1] only when it increases the stored value.
// ARGV[2] is a TTL in seconds; 0 keeps the key forever.
var raiseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if n > cur then
	if tonumber(ARGV[2]) > 0 then
		redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
	else
		redis.call('SET', KEYS[1], ARGV[1])
	end
	return n
end
return cur
`)

// RedisSessionCache is a SessionCache shared by every bot instance through Redis.
type RedisSessionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "foodfinder:session:").
	Prefix string
	// TTL expires idle entries; 0 keeps them forever.
	TTL time.Duration
}

// NewRedisSessionCache connects to Redis and verifies the connection.
func NewRedisSessionCache(cfg RedisConfig) (*RedisSessionCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("RedisSessionCache connected", "addr", cfg.Addr)
	return NewRedisSessionCacheFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisSessionCacheFromClient wraps an existing client.
func NewRedisSessionCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionCache {
	if prefix == "" {
		prefix = "foodfinder:session:"
	}
	return &RedisSessionCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisSessionCache) key(user string) string {
	return c.prefix + user
}

func (c *RedisSessionCache) Latest(ctx context.Context, user string) (int, bool, error) {
	n, err := c.client.Get(ctx, c.key(user)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get session: %w", err)
	}
	return n, true, nil
}

func (c *RedisSessionCache) Raise(ctx context.Context, user string, n int) error {
	ttl := int64(c.ttl / time.Second)
	if err := raiseScript.Run(ctx, c.client, []string{c.key(user)}, n, ttl).Err(); err != nil {
		return fmt.Errorf("raise session: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}

// CachedEventLog fronts an EventLog's LatestSession lookups with a SessionCache.
// Records of cacheCode events raise the cached number after they are persisted.
type CachedEventLog struct {
	EventLog
	cache     SessionCache
	cacheCode string
}

// NewCachedEventLog wraps log so that LatestSession for cacheCode is served from cache.
func NewCachedEventLog(log EventLog, cache SessionCache, cacheCode string) *CachedEventLog {
	return &CachedEventLog{EventLog: log, cache: cache, cacheCode: cacheCode}
}

func (c *CachedEventLog) Record(ctx context.Context, e models.ConvoEvent) error {
	if err := c.EventLog.Record(ctx, e); err != nil {
		return err
	}
	if e.EventCode == c.cacheCode {
		if err := c.cache.Raise(ctx, e.User, e.SessionNumber); err != nil {
			slog.Warn("CachedEventLog: cache update failed", "error", err, "user", e.User)
		}
	}
	return nil
}

func (c *CachedEventLog) LatestSession(ctx context.Context, user, eventCode string) (int, error) {
	if eventCode != c.cacheCode {
		return c.EventLog.LatestSession(ctx, user, eventCode)
	}
	if n, ok, err := c.cache.Latest(ctx, user); err != nil {
		slog.Warn("CachedEventLog: cache read failed, falling back to event log", "error", err, "user", user)
	} else if ok {
		return n, nil
	}
	n, err := c.EventLog.LatestSession(ctx, user, eventCode)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := c.cache.Raise(ctx, user, n); err != nil {
			slog.Warn("CachedEventLog: cache fill failed", "error", err, "user", user)
		}
	}
	return n, nil
}
