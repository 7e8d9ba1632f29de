// session оркестрирует жизненный цикл сессии: login, refresh и logout.
//
// Основные аспекты:
//   - Service не знает о HTTP: он возвращает результат, по которому транспорт
//     выставляет/стирает cookie через cookies.Policy.
//   - Кэш результатов логина вспомогательный: его ошибки логируются
//     и считаются в метриках, но никогда не возвращаются вызывающему.
//   - Ошибки issuer'а (*upstream.StatusError, upstream.ErrTransient) пробрасываются
//     с сохранением статуса и кода; маппинг в HTTP — в internal/http/errors.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/storefront-session/internal/cache"
	"github.com/pribylovaa/storefront-session/internal/config"
	"github.com/pribylovaa/storefront-session/internal/metrics"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/synccookie"
	"github.com/pribylovaa/storefront-session/internal/upstream"
)

// DefaultCacheTimeout — предел одной операции кэша.
const DefaultCacheTimeout = 200 * time.Millisecond

var (
	// ErrNoRefreshToken — в запросе нет refresh-cookie. Транспорт: 401 NO_REFRESH_TOKEN.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrNoAccessToken — issuer ответил 2xx без access-токена. Транспорт: 500 NO_ACCESS_TOKEN.
	ErrNoAccessToken = errors.New("no access token in upstream response")
)

//go:generate mockgen -source=service.go -destination=mocks/issuer.go -package=mocks

// Issuer — внешний выпускающий токены сервис.
type Issuer interface {
	Login(ctx context.Context, creds models.Credentials) (*upstream.Response, error)
	Refresh(ctx context.Context, refreshToken, cookieName string) (*upstream.Response, error)
	Logout(ctx context.Context, accessToken, refreshToken, cookieName string) error
}

// Service — сервис жизненного цикла сессии. Безопасен для конкурентного
// использования при потокобезопасных Issuer и SessionCache.
type Service struct {
	issuer  Issuer
	cache   cache.SessionCache
	codec   *synccookie.Codec
	cfg     config.SessionConfig
	metrics *metrics.Metrics

	cacheTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCacheTimeout задаёт предел одной операции кэша (d <= 0 — по умолчанию).
func WithCacheTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTimeout = d
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов сессии.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// New создаёт новый экземпляр Service.
func New(issuer Issuer, c cache.SessionCache, codec *synccookie.Codec, cfg config.SessionConfig, opts ...Option) *Service {
	s := &Service{
		issuer: issuer,
		cache:  c,
		codec:  codec,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,

		cacheTimeout: DefaultCacheTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}
