// Package notify decides whether an inbound customer message produces an
// audible cue and/or a banner notification. Sound and banner are gated
// independently by three persisted preferences; delivery failures never
// propagate past this package.
package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/storage"
)

// Preference keys in the secrets store. All are read defensively: missing or
// unparsable values fall back to "notifications on", except do-not-disturb
// which defaults to off.
const (
	PrefEnabled = "notifications.enabled"
	PrefSound   = "notifications.sound"
	PrefDND     = "notifications.dnd"
)

const previewLimit = 100

// Player plays the short new-message cue from the start.
type Player interface {
	Play() error
}

// PlayerFactory rebuilds the player after a playback failure (mirrors
// recreating the audio resource when the first attempt fails).
type PlayerFactory func() Player

// BannerSender raises a system-level notification.
type BannerSender interface {
	Send(ctx context.Context, title, body string) error
	// Ready reports whether notifications can be delivered at all
	// (permission granted / at least one push subscription). Cached by
	// implementations.
	Ready(ctx context.Context) bool
}

type Service struct {
	prefs   storage.SecretsStore
	banners BannerSender

	mu      sync.Mutex
	player  Player
	rebuild PlayerFactory
}

func NewService(prefs storage.SecretsStore, banners BannerSender, factory PlayerFactory) *Service {
	var p Player
	if factory != nil {
		p = factory()
	}
	return &Service{prefs: prefs, banners: banners, player: p, rebuild: factory}
}

func (s *Service) boolPref(ctx context.Context, key string, def bool) bool {
	v, err := s.prefs.GetPreference(ctx, key)
	if err != nil {
		logger.Errorf("notify: read %s: %v", key, err)
		return def
	}
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// NewMessage handles one inbound customer message. Sound plays only when
// playImmediately is set and enabled && sound && !dnd; the banner is raised
// when enabled && !dnd regardless of the sound preference.
func (s *Service) NewMessage(displayName, text string, playImmediately bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	enabled := s.boolPref(ctx, PrefEnabled, true)
	sound := s.boolPref(ctx, PrefSound, true)
	dnd := s.boolPref(ctx, PrefDND, false)

	if playImmediately && enabled && sound && !dnd {
		s.playSound()
	}

	if enabled && !dnd {
		s.sendBanner(ctx, displayName, text)
	}
}

func (s *Service) playSound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return
	}
	err := s.player.Play()
	if err == nil {
		return
	}
	logger.Errorf("notify: play sound: %v", err)
	if s.rebuild == nil {
		return
	}
	// One retry with a freshly built player.
	s.player = s.rebuild()
	if s.player == nil {
		return
	}
	if err := s.player.Play(); err != nil {
		logger.Errorf("notify: play sound (retry): %v", err)
	}
}

func (s *Service) sendBanner(ctx context.Context, displayName, text string) {
	if s.banners == nil || !s.banners.Ready(ctx) {
		return
	}
	if err := s.banners.Send(ctx, displayName, TruncatePreview(text)); err != nil {
		logger.Errorf("notify: banner: %v", err)
	}
}

// TruncatePreview cuts the message body to the banner preview length,
// counting runes so a multibyte text is never split mid-character.
func TruncatePreview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit-3]) + "..."
}
