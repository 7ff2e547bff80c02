package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается, когда значение по ключу не найдено
var ErrCacheMiss = errors.New("cache: key not found")

// CachePort определяет интерфейс для работы с key-value хранилищем.
// Реализация может использовать Redis, Memcached или любую другую систему.
// Помимо кэширования ответов, хранилище используется как реестр заданий
// импорта: состояние задания живет в нем с ограниченным сроком хранения.
type CachePort interface {
	// Get получает значение из кэша по ключу.
	// Возвращает ErrCacheMiss, если значение не найдено или истекло
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение по ключу.
	// expiration == 0 означает хранение без ограничения срока
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Expire выставляет срок хранения уже существующего ключа
	Expire(ctx context.Context, key string, expiration time.Duration) error

	// Delete удаляет значение по ключу
	Delete(ctx context.Context, key string) error

	// Close закрывает соединение с хранилищем
	Close() error
}
