// Package redisconn opens the Redis client shared by the cache server, the
// goal cache and the dashboard.
package redisconn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the Redis connection read from REDIS_* variables.
type Config struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Password string `env:"REDIS_PASSWORD"`
	// Addr overrides Host and Port when set.
	Addr string `env:"REDIS_ADDR"`
}

// Address returns host:port.
func (c Config) Address() string {
	if c.Addr != "" {
		return c.Addr
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// New builds a client without contacting the server.
func New(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})
}

// Open builds a client and pings it. The client is returned even when the
// ping fails so callers can keep retrying later.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := New(cfg)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("connect to redis at %s: %w", cfg.Address(), err)
	}
	return client, nil
}
