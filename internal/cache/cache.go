// Package cache provides the key/value and pub/sub layer used for job status
// snapshots and progress fan-out.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Broker publishes and subscribes to named channels.
type Broker interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Store is a cache that is also a broker. Both implementations satisfy it.
type Store interface {
	Client
	Broker
}

// New builds the configured cache store.
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisClient(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
	case "memory", "":
		return NewMemoryClient(cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// JobKey is the status snapshot key for a server-side job.
func JobKey(jobID string) string {
	return Key("job", jobID)
}

// ProgressChannel is the pub/sub channel carrying a session's progress events.
func ProgressChannel(sessionID string) string {
	return Key("progress", sessionID)
}
