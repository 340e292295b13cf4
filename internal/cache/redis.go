package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeKeyPrefix = "refcode:"

// Client wraps Redis. A nil *Client is valid and behaves as an always-miss cache,
// so the engine runs unchanged when Redis is not configured.
type Client struct {
	Redis *redis.Client
	ttl   time.Duration
}

func NewClient(redisURL string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	return &Client{Redis: client, ttl: ttl}, nil
}

// NewFromRedis wraps an existing client.
func NewFromRedis(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{Redis: rdb, ttl: ttl}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.Redis.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Redis.Ping(ctx).Err()
}

// CodeOwner returns the cached owner of a referral code.
func (c *Client) CodeOwner(ctx context.Context, code string) (uint, bool, error) {
	if c == nil {
		return 0, false, nil
	}
	v, err := c.Redis.Get(ctx, codeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry for %q: %w", code, err)
	}
	return uint(id), true, nil
}

// SetCodeOwner caches the owner of a code. Codes never change owner, so the
// entry only expires to bound memory.
func (c *Client) SetCodeOwner(ctx context.Context, code string, ownerID uint) error {
	if c == nil {
		return nil
	}
	return c.Redis.Set(ctx, codeKeyPrefix+code, strconv.FormatUint(uint64(ownerID), 10), c.ttl).Err()
}

// ForgetCode drops a code, e.g. after its owner is tombstoned.
func (c *Client) ForgetCode(ctx context.Context, code string) error {
	if c == nil {
		return nil
	}
	return c.Redis.Del(ctx, codeKeyPrefix+code).Err()
}
