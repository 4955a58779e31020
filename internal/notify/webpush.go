package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/storage"
)

// VAPIDKeys — пара ключей для Web Push (VAPID).
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultVAPIDKeysPath = "config/vapid.json"

// EnsureVAPIDKeys загружает ключи из файла; если файла нет или он пустой — генерирует, сохраняет и возвращает.
// Путь задаётся через env VAPID_KEYS_FILE или по умолчанию config/vapid.json (относительно cwd).
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultVAPIDKeysPath
	}
	keys, err := loadVAPIDKeys(path)
	if err == nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		return keys, nil
	}
	// Генерация при первом запуске
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, err
	}
	keys = &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := saveVAPIDKeys(path, keys); err != nil {
		logger.Errorf("notify: не удалось сохранить VAPID-ключи в %s: %v (ключи сгенерированы и используются)", path, err)
		return keys, nil
	}
	logger.Infof("notify: VAPID-ключи сгенерированы и сохранены в %s", path)
	return keys, nil
}

func loadVAPIDKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys VAPIDKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}

func saveVAPIDKeys(path string, keys *VAPIDKeys) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Subscription — подписка из браузерного контекста рендерера.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

const subscriptionsPrefKey = "push.subscriptions"

const maxSubscriptions = 10

// WebPushSender raises banners by sending Web Push messages to the
// operator's subscribed browser contexts. Subscriptions live in the secrets
// store under push.subscriptions.
type WebPushSender struct {
	keys       *VAPIDKeys
	subscriber string
	store      storage.SecretsStore

	mu sync.Mutex
	// ready caches the has-subscriptions check (the "permission requested
	// once" contract): -1 unknown, 0 no, 1 yes.
	ready atomic.Int32
}

func NewWebPushSender(keys *VAPIDKeys, subscriber string, store storage.SecretsStore) *WebPushSender {
	s := &WebPushSender{keys: keys, subscriber: subscriber, store: store}
	s.ready.Store(-1)
	return s
}

func (s *WebPushSender) loadSubs(ctx context.Context) ([]Subscription, error) {
	raw, err := s.store.GetPreference(ctx, subscriptionsPrefKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var subs []Subscription
	if err := json.Unmarshal([]byte(raw), &subs); err != nil {
		return nil, fmt.Errorf("notify: parse subscriptions: %w", err)
	}
	return subs, nil
}

func (s *WebPushSender) saveSubs(ctx context.Context, subs []Subscription) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	if err := s.store.SetPreference(ctx, subscriptionsPrefKey, string(data)); err != nil {
		return err
	}
	if len(subs) > 0 {
		s.ready.Store(1)
	} else {
		s.ready.Store(0)
	}
	return nil
}

// Subscribe registers a renderer push subscription.
func (s *WebPushSender) Subscribe(ctx context.Context, sub Subscription) error {
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return fmt.Errorf("notify: subscription requires endpoint, p256dh and auth")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.loadSubs(ctx)
	if err != nil {
		return err
	}
	kept := subs[:0]
	for _, existing := range subs {
		if existing.Endpoint != sub.Endpoint {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, sub)
	if len(kept) > maxSubscriptions {
		kept = kept[len(kept)-maxSubscriptions:]
	}
	return s.saveSubs(ctx, kept)
}

// Unsubscribe drops the subscription with the given endpoint.
func (s *WebPushSender) Unsubscribe(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.loadSubs(ctx)
	if err != nil {
		return err
	}
	kept := subs[:0]
	for _, existing := range subs {
		if existing.Endpoint != endpoint {
			kept = append(kept, existing)
		}
	}
	return s.saveSubs(ctx, kept)
}

// Ready reports whether at least one subscription exists. The first call
// hits storage; the answer is cached until the subscription set changes.
func (s *WebPushSender) Ready(ctx context.Context) bool {
	if v := s.ready.Load(); v >= 0 {
		return v == 1
	}
	subs, err := s.loadSubs(ctx)
	if err != nil {
		logger.Errorf("notify: load subscriptions: %v", err)
		return false
	}
	if len(subs) > 0 {
		s.ready.Store(1)
		return true
	}
	s.ready.Store(0)
	return false
}

type bannerPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send pushes the banner to every subscribed context. Dead subscriptions
// (404/410) are pruned afterwards. The mutex only guards the snapshot and
// the prune; the sends themselves run unlocked so Subscribe/Unsubscribe and
// the next banner are not held up behind slow push services.
func (s *WebPushSender) Send(ctx context.Context, title, body string) error {
	if s.keys == nil {
		return nil
	}
	s.mu.Lock()
	subs, err := s.loadSubs(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(bannerPayload{Title: title, Body: body})
	if err != nil {
		return err
	}
	opts := &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             30,
	}

	var dead []string
	for _, sub := range subs {
		wsub := &webpush.Subscription{Endpoint: sub.Endpoint}
		wsub.Keys.P256dh = sub.Keys.P256dh
		wsub.Keys.Auth = sub.Keys.Auth

		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, wsub, opts)
		cancel()
		if err != nil {
			logger.Errorf("notify: webpush send: %v", err)
			continue
		}
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			// Subscription expired at the push service, drop it.
			dead = append(dead, sub.Endpoint)
		}
		resp.Body.Close()
	}
	if len(dead) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-read under the lock: the set may have changed during the sends.
	current, err := s.loadSubs(ctx)
	if err != nil {
		logger.Errorf("notify: prune subscriptions: %v", err)
		return nil
	}
	kept := current[:0]
	for _, sub := range current {
		expired := false
		for _, endpoint := range dead {
			if sub.Endpoint == endpoint {
				expired = true
				break
			}
		}
		if !expired {
			kept = append(kept, sub)
		}
	}
	if len(kept) != len(current) {
		if err := s.saveSubs(ctx, kept); err != nil {
			logger.Errorf("notify: prune subscriptions: %v", err)
		}
	}
	return nil
}
