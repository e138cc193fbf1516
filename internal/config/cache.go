package config

import (
	"os"
	"strconv"
	"time"
)

// MenuCacheConfig defines settings for the Redis-backed menu cache.  When
// Enabled is false or no Redis client is configured, menus are always built
// from the database.  TTL bounds how long an entry may live even if no page
// assignment bumps the cache version.
type MenuCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadMenuCacheConfig reads MENU_CACHE_* environment variables.  Defaults
// are used when variables are not set.
func LoadMenuCacheConfig() MenuCacheConfig {
	return MenuCacheConfig{
		Enabled: getenv("MENU_CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("MENU_CACHE_TTL", "5m")),
		Prefix:  getenv("MENU_CACHE_PREFIX", "menu"),
	}
}

// Helper functions reused from redis.go and ratelimit.go
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Minute
	}
	return d
}
