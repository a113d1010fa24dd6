// Package redis holds the Redis-backed pieces of the engine: a namespaced
// client and the live XP leaderboard kept in a sorted set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss means the key does not exist.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection means the first PING failed. Callers may retry it.
	ErrCacheConnection = errors.New("cache: connection failed")

	errCacheEncoding = errors.New("cache: value encoding failed")
)

// Config describes how to reach Redis. A URL wins over Host and Port.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix is prepended to every key, e.g. "progress:".
	KeyPrefix string
}

// DefaultConfig targets a local Redis on 6379.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		KeyPrefix:    "progress:",
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() (*redis.Options, error) {
	if c.URL == "" {
		return &redis.Options{
			Addr:         c.Addr(),
			Password:     c.Password,
			DB:           c.DB,
			PoolSize:     c.PoolSize,
			MinIdleConns: c.MinIdleConns,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		}, nil
	}

	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return opts, nil
}

// Cache is a go-redis client whose keys all live under one prefix.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache builds the client and waits at most DialTimeout (5s when unset)
// for a PING.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrCacheConnection, err)
	}
	return &Cache{client: client, prefix: cfg.KeyPrefix}, nil
}

// Client exposes the raw client for data types Cache has no helper for.
func (c *Cache) Client() *redis.Client { return c.client }

func (c *Cache) Close() error { return c.client.Close() }

// Key returns the namespaced form of name.
func (c *Cache) Key(name string) string { return c.prefix + name }

// Set writes value as JSON. ttl 0 keeps the key forever.
func (c *Cache) Set(ctx context.Context, name string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Join(errCacheEncoding, err)
	}
	return c.client.Set(ctx, c.Key(name), raw, ttl).Err()
}

// Get decodes the JSON under name into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, name string, dest any) error {
	raw, err := c.client.Get(ctx, c.Key(name)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Join(errCacheEncoding, err)
	}
	return nil
}

// Delete removes every name. Missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, c.Key(n))
	}
	return c.client.Del(ctx, keys...).Err()
}
