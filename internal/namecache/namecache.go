// Package namecache keeps the display names the chat transport reports for
// users, so pairing and game-over notifications can name the opponent. Names
// are informational only; losing them costs nothing, hence Redis with a TTL
// and nil-safe accessors when no Redis is configured.
package namecache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/immanelg/tgpawn/internal/obslog"
)

const ttl = 7 * 24 * time.Hour

type Cache struct {
	rdb *redis.Client
}

func New(redisURL string) (*Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for name cache")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Remember stores the latest observed display name. Failures are logged and
// swallowed; the cache is best-effort.
func (c *Cache) Remember(ctx context.Context, userID int64, name string) {
	if c == nil || c.rdb == nil || strings.TrimSpace(name) == "" {
		return
	}
	if err := c.rdb.Set(ctx, nameKey(userID), strings.TrimSpace(name), ttl).Err(); err != nil {
		obslog.L().Warn("namecache_set_error", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Name returns the cached display name, or "" when unknown.
func (c *Cache) Name(ctx context.Context, userID int64) string {
	if c == nil || c.rdb == nil {
		return ""
	}
	v, err := c.rdb.Get(ctx, nameKey(userID)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		obslog.L().Warn("namecache_get_error", zap.Int64("user_id", userID), zap.Error(err))
		return ""
	}
	return v
}

func nameKey(userID int64) string { return "tgpawn:name:" + strconv.FormatInt(userID, 10) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
