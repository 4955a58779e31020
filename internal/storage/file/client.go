package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Client хранит токен и настройки в JSON-файле с правами 0600 — локальный
// fallback, когда системный keychain недоступен (агент запущен без shell).
type Client struct {
	mu   sync.Mutex
	path string
}

type payload struct {
	Token string            `json:"token,omitempty"`
	Prefs map[string]string `json:"prefs,omitempty"`
}

func New(path string) (*Client, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &Client{path: path}, nil
}

func (c *Client) Close() error { return nil }

func (c *Client) load() (*payload, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &payload{Prefs: make(map[string]string)}, nil
		}
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		// Битый файл не должен блокировать вход: начинаем с чистого состояния.
		return &payload{Prefs: make(map[string]string)}, nil
	}
	if p.Prefs == nil {
		p.Prefs = make(map[string]string)
	}
	return &p, nil
}

func (c *Client) save(p *payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

func (c *Client) SetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return err
	}
	p.Token = token
	return c.save(p)
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return "", err
	}
	return p.Token, nil
}

func (c *Client) DeleteToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return err
	}
	p.Token = ""
	return c.save(p)
}

func (c *Client) SetPreference(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return err
	}
	p.Prefs[key] = value
	return c.save(p)
}

func (c *Client) GetPreference(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return "", err
	}
	return p.Prefs[key], nil
}

func (c *Client) DeletePreference(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.load()
	if err != nil {
		return err
	}
	delete(p.Prefs, key)
	return c.save(p)
}
