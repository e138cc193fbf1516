package service

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/predio-auth/internal/config"
	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/model"
)

// RedisMenuCache keeps menus under <prefix>:v<version>:<role ids>.  Bumping
// <prefix>:version orphans every entry, which then ages out by TTL.
type RedisMenuCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisMenuCache returns nil when caching is disabled or rdb is nil, so
// the result can be passed straight to MenuService.WithCache.
func NewRedisMenuCache(cfg config.MenuCacheConfig, rdb *redis.Client) MenuCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisMenuCache{rdb: rdb, ttl: ttl, prefix: cfg.Prefix}
}

func (c *RedisMenuCache) versionKey() string { return c.prefix + ":version" }

// Key embeds the current version, so a menu stored under it after an
// Invalidate is never read back.
func (c *RedisMenuCache) Key(ctx context.Context, roleIDs []uint64) (string, error) {
	ver, err := c.rdb.Get(ctx, c.versionKey()).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	ids := append([]uint64(nil), roleIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return c.prefix + ":v" + strconv.FormatInt(ver, 10) + ":" + strings.Join(parts, ","), nil
}

func (c *RedisMenuCache) Get(ctx context.Context, key string) ([]model.MenuModule, bool) {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var menu []model.MenuModule
	if err := json.Unmarshal(bs, &menu); err != nil {
		return nil, false
	}
	return menu, true
}

func (c *RedisMenuCache) Set(ctx context.Context, key string, menu []model.MenuModule) {
	bs, err := json.Marshal(menu)
	if err != nil {
		return
	}
	if err := c.rdb.SetEx(ctx, key, bs, c.ttl).Err(); err != nil {
		logs.FromContext(ctx).WithError(err).Debug("menu cache: store failed")
	}
}

func (c *RedisMenuCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, c.versionKey()).Err(); err != nil {
		logs.FromContext(ctx).WithError(err).Warn("menu cache: invalidate failed")
	}
}
