// Package redisx wraps the go-redis client with health checking and pool
// metrics. The revocation list and the shared rate limiter both run on top
// of it when Redis is configured.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_pool_hits_total",
		Help: "Number of times a connection was found in the pool.",
	})
	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_pool_misses_total",
		Help: "Number of times a connection was not found in the pool.",
	})
	poolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_pool_timeouts_total",
		Help: "Number of times a connection was not obtained due to timeout.",
	})
	poolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_pool_total_conns",
		Help: "Number of total connections in the pool.",
	})
	poolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_pool_idle_conns",
		Help: "Number of idle connections in the pool.",
	})
	poolStaleConns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_pool_stale_conns_total",
		Help: "Number of stale connections removed from the pool.",
	})
)

// Client wraps *redis.Client with health checks and pool-stat export.
type Client struct {
	*redis.Client
	lastStats *redis.PoolStats
}

// New dials Redis from a URL (redis://host:port/db). An empty URL means
// Redis is not configured and returns a nil client without error.
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats exports current pool statistics to Prometheus. Call it
// periodically from a background goroutine.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()

	poolTotalConns.Set(float64(stats.TotalConns))
	poolIdleConns.Set(float64(stats.IdleConns))

	if c.lastStats != nil {
		if stats.Hits > c.lastStats.Hits {
			poolHits.Add(float64(stats.Hits - c.lastStats.Hits))
		}
		if stats.Misses > c.lastStats.Misses {
			poolMisses.Add(float64(stats.Misses - c.lastStats.Misses))
		}
		if stats.Timeouts > c.lastStats.Timeouts {
			poolTimeouts.Add(float64(stats.Timeouts - c.lastStats.Timeouts))
		}
		if stats.StaleConns > c.lastStats.StaleConns {
			poolStaleConns.Add(float64(stats.StaleConns - c.lastStats.StaleConns))
		}
	} else {
		poolHits.Add(float64(stats.Hits))
		poolMisses.Add(float64(stats.Misses))
		poolTimeouts.Add(float64(stats.Timeouts))
		poolStaleConns.Add(float64(stats.StaleConns))
	}

	c.lastStats = stats
}
