// Package cache is a best-effort Redis layer in front of the realtime
// endpoint. Every failure is absorbed and logged: a dead Redis degrades
// latency, never availability.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with a fixed TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redisURL (redis:// or rediss://) and verifies the
// connection with a ping. A failed ping is logged, not fatal; the server
// runs uncached until Redis comes back.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[cache] warning: redis ping: %v (continuing uncached)", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// realtimeKey names the cached realtime payload for one device.
func realtimeKey(deviceID string) string {
	return "realtime:" + deviceID
}

// GetRealtime returns the cached payload for a device, or nil on miss or
// any Redis error.
func (c *Cache) GetRealtime(ctx context.Context, deviceID string) []byte {
	val, err := c.client.Get(ctx, realtimeKey(deviceID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[cache] warning: get %s: %v", realtimeKey(deviceID), err)
		}
		return nil
	}
	return val
}

// SetRealtime stores the payload for a device with the configured TTL.
func (c *Cache) SetRealtime(ctx context.Context, deviceID string, payload []byte) {
	if err := c.client.Set(ctx, realtimeKey(deviceID), payload, c.ttl).Err(); err != nil {
		log.Printf("[cache] warning: set %s: %v", realtimeKey(deviceID), err)
	}
}

// InvalidateRealtime drops the cached payload for a device. Called after
// ingest so fresh samples become visible before the TTL expires.
func (c *Cache) InvalidateRealtime(ctx context.Context, deviceID string) {
	if err := c.client.Del(ctx, realtimeKey(deviceID)).Err(); err != nil {
		log.Printf("[cache] warning: del %s: %v", realtimeKey(deviceID), err)
	}
}
