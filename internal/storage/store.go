package storage

import "context"

// SecretsStore — хранилище bearer-токена и локальных настроек оператора.
// Реализации: file.Client (аналог OS keychain, основной режим), memory.Client
// (для -dev и тестов), redis.Client (общий кеш для развёртывания на несколько
// рабочих мест).
type SecretsStore interface {
	SetToken(ctx context.Context, token string) error
	GetToken(ctx context.Context) (string, error)
	DeleteToken(ctx context.Context) error

	// Настройки (notifications.enabled, notifications.sound, notifications.dnd,
	// send_key, push.subscriptions и т.п.). Отсутствующий ключ — пустая строка,
	// без ошибки: читающая сторона обязана подставить свой default.
	SetPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key string) (string, error)
	DeletePreference(ctx context.Context, key string) error

	Close() error
}
