// Package redis implements the quoter's cache interfaces, tick rate limits
// and position-size baselines, on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options describes the connection. Fields map one to one onto the [redis]
// config section.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Connect dials Redis and verifies the connection with a ping before
// returning the client. Callers own the returned client and must Close it.
func Connect(ctx context.Context, o Options) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       o.Addr,
		Password:   o.Password,
		DB:         o.DB,
		PoolSize:   o.PoolSize,
		MaxRetries: o.MaxRetries,
	}
	if o.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", o.Addr, err)
	}
	return rdb, nil
}
