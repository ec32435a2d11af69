// Package redis holds the process-wide Redis connection used by the room
// store backend.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mossy-p/reunion/config"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 5 * time.Second
	// Room store calls sit on the signaling request path; a slow Redis
	// should surface as a 500 rather than a hung poll.
	ioTimeout = 2 * time.Second
)

var client *redis.Client

func options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "reunion",
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
}

// Connect opens the shared client and pings it once.
func Connect(ctx context.Context, cfg config.RedisConfig) error {
	c := redis.NewClient(options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", c.Options().Addr, err)
	}

	client = c
	return nil
}

// Close closes the Redis connection
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

// GetClient returns the shared client, or nil before Connect.
func GetClient() *redis.Client {
	return client
}
