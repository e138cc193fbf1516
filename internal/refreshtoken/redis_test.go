package refreshtoken_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/refreshtoken/registrytest"
)

// TestRedisRegistry needs a reachable server in REDIS_ADDR.
func TestRedisRegistry(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	registrytest.Run(t, func(t *testing.T, now func() time.Time) refreshtoken.Registry {
		prefix := "test:rt:" + ulid.Make().String()
		t.Cleanup(func() {
			ctx := context.Background()
			iter := rdb.Scan(ctx, 0, prefix+":*", 100).Iterator()
			for iter.Next(ctx) {
				rdb.Del(ctx, iter.Val())
			}
		})
		return refreshtoken.NewRedis(rdb, registrytest.TTL, prefix).WithClock(now)
	})
}
