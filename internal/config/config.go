package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opconsole/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// BrokerConfig — подключение к pub/sub брокеру (push-доставка событий чатов).
type BrokerConfig struct {
	Scheme            string `yaml:"scheme"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	AppKey            string `yaml:"app_key"`
	BroadcastChannel  string `yaml:"broadcast_channel"`
	ChatChannelPrefix string `yaml:"chat_channel_prefix"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"-"`
}

// URL собирает адрес подключения: scheme://host[:port]/app/{key}?protocol=7&client=go&version=...&flash=false.
func (b BrokerConfig) URL(clientVersion string) string {
	host := b.Host
	if b.Port > 0 {
		host = fmt.Sprintf("%s:%d", b.Host, b.Port)
	}
	return fmt.Sprintf("%s://%s/app/%s?protocol=7&client=go&version=%s&flash=false",
		b.Scheme, host, b.AppKey, clientVersion)
}

// ChatChannel возвращает имя канала одного диалога: "<prefix>.<chatID>".
func (b BrokerConfig) ChatChannel(chatID int64) string {
	return fmt.Sprintf("%s.%d", b.ChatChannelPrefix, chatID)
}

// StorageConfig — хранилище токена и настроек: memory | file | redis.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	FilePath string `yaml:"file_path"`
	RedisURL string `yaml:"-"`
}

// PollConfig — интервалы фонового опроса (подстраховка push-канала).
type PollConfig struct {
	ChatListInterval time.Duration `yaml:"-"`
	ThreadInterval   time.Duration `yaml:"-"`
}

// TypingConfig — таймауты индикатора набора текста.
// Sender: пауза без нажатий, после которой шлём "stopped typing".
// ReceiverExpiry: локальное истечение чужого индикатора, если стоп-событие потерялось.
type TypingConfig struct {
	SenderIdle     time.Duration `yaml:"-"`
	ReceiverExpiry time.Duration `yaml:"-"`
}

// Config содержит настройки агента консоли.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Локальный bridge для UI-процесса
	BridgeAddr   string        `yaml:"bridge_addr"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	IdleTimeout  time.Duration `yaml:"-"`

	// Удалённый backend
	APIBaseURL string        `yaml:"api_base_url"`
	APITimeout time.Duration `yaml:"-"`

	Broker  BrokerConfig  `yaml:"broker"`
	Storage StorageConfig `yaml:"storage"`
	Poll    PollConfig    `yaml:"-"`
	Typing  TypingConfig  `yaml:"-"`

	// CORS для bridge (origin окна рендерера)
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Web Push (баннерные уведомления)
	VAPIDSubscriber string `yaml:"vapid_subscriber"`

	LogLevel string `yaml:"log_level"`
}

// yamlConfig — промежуточная структура для парсинга YAML (длительности в секундах/мс).
type yamlConfig struct {
	BridgeAddr         string        `yaml:"bridge_addr"`
	ReadTimeout        int           `yaml:"read_timeout"`
	WriteTimeout       int           `yaml:"write_timeout"`
	IdleTimeout        int           `yaml:"idle_timeout"`
	APIBaseURL         string        `yaml:"api_base_url"`
	APITimeoutSec      int           `yaml:"api_timeout"`
	Broker             BrokerConfig  `yaml:"broker"`
	ReconnectBaseMS    int           `yaml:"reconnect_base_ms"`
	Storage            StorageConfig `yaml:"storage"`
	ChatListPollSec    int           `yaml:"chat_list_poll_sec"`
	ThreadPollSec      int           `yaml:"thread_poll_sec"`
	TypingSenderMS     int           `yaml:"typing_sender_ms"`
	TypingExpiryMS     int           `yaml:"typing_expiry_ms"`
	CORSAllowedOrigins string        `yaml:"cors_allowed_origins"`
	VAPIDSubscriber    string        `yaml:"vapid_subscriber"`
	LogLevel           string        `yaml:"log_level"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию
	yc := yamlConfig{
		BridgeAddr:    "127.0.0.1:9780",
		ReadTimeout:   15,
		WriteTimeout:  15,
		IdleTimeout:   60,
		APIBaseURL:    "http://localhost:8080",
		APITimeoutSec: 15,
		Broker: BrokerConfig{
			Scheme:               "wss",
			Host:                 "localhost",
			Port:                 6001,
			AppKey:               "operator-console",
			BroadcastChannel:     "operators",
			ChatChannelPrefix:    "chat",
			MaxReconnectAttempts: 5,
		},
		ReconnectBaseMS:    1000,
		Storage:            StorageConfig{Driver: "file", FilePath: "config/secrets.json"},
		ChatListPollSec:    30,
		ThreadPollSec:      5,
		TypingSenderMS:     3000,
		TypingExpiryMS:     5000,
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
	}

	// Загрузка YAML: CONFIG_PATH → config/console.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/console.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	// Переменные окружения имеют наивысший приоритет
	broker := yc.Broker
	broker.Scheme = envStr("BROKER_SCHEME", broker.Scheme)
	broker.Host = envStr("BROKER_HOST", broker.Host)
	broker.Port = envInt("BROKER_PORT", broker.Port)
	broker.AppKey = envStr("BROKER_APP_KEY", broker.AppKey)
	broker.BroadcastChannel = envStr("BROKER_BROADCAST_CHANNEL", broker.BroadcastChannel)
	broker.ChatChannelPrefix = envStr("BROKER_CHAT_CHANNEL_PREFIX", broker.ChatChannelPrefix)
	broker.MaxReconnectAttempts = envInt("BROKER_MAX_RECONNECT_ATTEMPTS", broker.MaxReconnectAttempts)
	if broker.MaxReconnectAttempts <= 0 {
		broker.MaxReconnectAttempts = 5
	}
	broker.ReconnectBaseDelay = time.Duration(envInt("BROKER_RECONNECT_BASE_MS", yc.ReconnectBaseMS)) * time.Millisecond
	if broker.ReconnectBaseDelay <= 0 {
		broker.ReconnectBaseDelay = time.Second
	}

	storage := yc.Storage
	storage.Driver = envStr("STORAGE_DRIVER", storage.Driver)
	storage.FilePath = envStr("STORAGE_FILE_PATH", storage.FilePath)
	storage.RedisURL = envStr("REDIS_URL", "redis://localhost:6379")

	cfg := &Config{
		BridgeAddr:   envStr("BRIDGE_ADDR", yc.BridgeAddr),
		ReadTimeout:  time.Duration(envInt("READ_TIMEOUT", yc.ReadTimeout)) * time.Second,
		WriteTimeout: time.Duration(envInt("WRITE_TIMEOUT", yc.WriteTimeout)) * time.Second,
		IdleTimeout:  time.Duration(envInt("IDLE_TIMEOUT", yc.IdleTimeout)) * time.Second,
		APIBaseURL:   strings.TrimSuffix(envStr("API_BASE_URL", yc.APIBaseURL), "/"),
		APITimeout:   time.Duration(envInt("API_TIMEOUT", yc.APITimeoutSec)) * time.Second,
		Broker:       broker,
		Storage:      storage,
		Poll: PollConfig{
			ChatListInterval: time.Duration(envInt("CHAT_LIST_POLL_SEC", yc.ChatListPollSec)) * time.Second,
			ThreadInterval:   time.Duration(envInt("THREAD_POLL_SEC", yc.ThreadPollSec)) * time.Second,
		},
		Typing: TypingConfig{
			SenderIdle:     time.Duration(envInt("TYPING_SENDER_MS", yc.TypingSenderMS)) * time.Millisecond,
			ReceiverExpiry: time.Duration(envInt("TYPING_EXPIRY_MS", yc.TypingExpiryMS)) * time.Millisecond,
		},
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		VAPIDSubscriber:    envStr("VAPID_SUBSCRIBER", yc.VAPIDSubscriber),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.Poll.ChatListInterval <= 0 {
		cfg.Poll.ChatListInterval = 30 * time.Second
	}
	if cfg.Poll.ThreadInterval <= 0 {
		cfg.Poll.ThreadInterval = 5 * time.Second
	}

	if os.Getenv("APP_ENV") == "production" && cfg.Broker.Scheme != "wss" {
		logger.Errorf("config: в production брокер должен использовать wss (сейчас %s)", cfg.Broker.Scheme)
	}

	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
