package cache

import (
	"fmt"
	"time"

	"vfs-go/internal/cms"
	"vfs-go/internal/config"
)

// Cache is an ElementCache that can also serve entries.
type Cache interface {
	cms.ElementCache

	// Get returns the cached bytes for path and whether they were present.
	Get(path string) ([]byte, bool, error)

	// Put stores data for path.
	Put(path string, data []byte) error
}

// DefaultTTL bounds how long an entry survives without being invalidated.
const DefaultTTL = 24 * time.Hour

// NewCacheFromConfig creates a Cache based on the cache config type.
// Type "none" returns a nil Cache.
func NewCacheFromConfig(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache requires redis_addr to be set")
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix, DefaultTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
