package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions holds connection settings for the Redis backend.
type RedisOptions struct {
	Addr        string
	Password    string
	Database    int
	TLS         bool
	DialTimeout time.Duration
	PoolSize    int
	MaxRetries  int
}

// NewRedisClient creates a Redis client and verifies connectivity. A ping
// failure is reported but the client is still returned: the guard breaker
// absorbs an outage and the backend may come up later.
func NewRedisClient(opts RedisOptions) (*redis.Client, error) {
	options := &redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.Database,
		DialTimeout: opts.DialTimeout,
		PoolSize:    opts.PoolSize,
		MaxRetries:  opts.MaxRetries,
	}

	if opts.TLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
