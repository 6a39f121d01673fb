package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialCheckTimeout = 5 * time.Second

// Config is the redis section of the app config. An empty URL disables Redis.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// Client owns the connection pool shared by the Redis-backed stores.
type Client struct {
	rdb *redis.Client
}

// NewClient dials the server in cfg.URL and fails unless it answers PING.
// A non-empty Password overrides any password embedded in the URL.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	c := &Client{rdb: redis.NewClient(opts)}
	ctx, cancel := context.WithTimeout(context.Background(), dialCheckTimeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}
	return c, nil
}

// Health is the readiness check registered with the health monitor.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Keys are namespaced by chain so several watchers can share one server.
func seenKey(chain, dedupKey string) string { return "buy_seen:" + chain + ":" + dedupKey }
func recentKey(chain string) string         { return "buys_recent:" + chain }
