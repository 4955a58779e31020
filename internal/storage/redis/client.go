package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Токен живёт 30 дней (как сессия на backend); настройки — без TTL.
const tokenTTL = 30 * 24 * time.Hour

const (
	tokenKey   = "console:token"
	prefPrefix = "console:pref:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetToken(ctx context.Context, token string) error {
	return c.cli.Set(ctx, tokenKey, token, tokenTTL).Err()
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	val, err := c.cli.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteToken(ctx context.Context) error {
	return c.cli.Del(ctx, tokenKey).Err()
}

func (c *Client) SetPreference(ctx context.Context, key, value string) error {
	return c.cli.Set(ctx, prefPrefix+key, value, 0).Err()
}

func (c *Client) GetPreference(ctx context.Context, key string) (string, error) {
	val, err := c.cli.Get(ctx, prefPrefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeletePreference(ctx context.Context, key string) error {
	return c.cli.Del(ctx, prefPrefix+key).Err()
}
