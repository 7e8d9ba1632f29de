// cache хранит результат последней попытки логина по идентификатору сессии.
//
// Кэш — вспомогательный слой (дедупликация повторных логинов, быстрая
// инвалидация на logout, наблюдаемость), а не источник истины: сервис
// сессий поглощает любые ошибки кэша.
//
// Для EvictByUser поддерживается вторичный индекс user -> {session ids},
// поэтому выселение по пользователю не требует сканирования ключей.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/storefront-session/internal/models"
)

// ErrEmptyKey — пустой sessionID/userID.
var ErrEmptyKey = errors.New("cache: empty key")

// Entry — результат логина, как его вернул issuer.
type Entry struct {
	Status       int
	AccessToken  string
	RefreshToken string
	User         *models.User
	CreatedAt    time.Time
}

// UserID возвращает идентификатор пользователя или "" для неуспешного логина.
func (e *Entry) UserID() string {
	if e == nil || e.User == nil {
		return ""
	}

	return e.User.ID
}

//go:generate mockgen -source=cache.go -destination=mocks/cache.go -package=mocks

// SessionCache — контракт кэша результатов логина.
type SessionCache interface {
	// Set сохраняет запись с TTL; по истечении TTL Get возвращает found=false.
	Set(ctx context.Context, sessionID string, e *Entry, ttl time.Duration) error
	// Get возвращает запись и признак её наличия.
	Get(ctx context.Context, sessionID string) (*Entry, bool, error)
	// EvictBySession удаляет запись сессии и её ссылку из индекса пользователя.
	EvictBySession(ctx context.Context, sessionID string) error
	// EvictByUser удаляет все записи пользователя через вторичный индекс.
	EvictByUser(ctx context.Context, userID string) error
	// Close освобождает ресурсы.
	Close() error
}
