package memory

import (
	"context"
	"sync"
)

// Client хранит токен и настройки в памяти (режим -dev и тесты).
type Client struct {
	mu    sync.RWMutex
	token string
	prefs map[string]string
}

func New() *Client {
	return &Client{prefs: make(map[string]string)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

func (c *Client) DeleteToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

func (c *Client) SetPreference(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs[key] = value
	return nil
}

func (c *Client) GetPreference(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs[key], nil
}

func (c *Client) DeletePreference(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prefs, key)
	return nil
}
