package session

import (
	"context"
	"net/http"
	"time"

	"github.com/pribylovaa/storefront-session/internal/cache"
	"github.com/pribylovaa/storefront-session/internal/cookies"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/synccookie"
	"github.com/pribylovaa/storefront-session/internal/token"
	"github.com/pribylovaa/storefront-session/internal/upstream"
	logctx "github.com/pribylovaa/storefront-session/pkg/log"
	"github.com/pribylovaa/storefront-session/pkg/redact"
)

// Cookies — что транспорт должен записать в ответ. Пустое значение — не трогать.
type Cookies struct {
	// Relay — куки issuer'а без тех, что шлюз выставляет сам (refresh, session, sync).
	Relay []*http.Cookie
	// Refresh — единственная запись refresh-cookie (при логине или ротации).
	Refresh       string
	RefreshMaxAge time.Duration
	// Sync — подписанная sync-cookie.
	Sync       string
	SyncMaxAge time.Duration
	// Session — идентификатор сессии.
	Session string
}

// LoginResult — успешный логин.
type LoginResult struct {
	Status      int
	SessionID   string
	AccessToken string
	User        *models.User
	ExpiresAt   int64 // epoch-ms
	ExpiresIn   int64 // секунды
	Cookies     Cookies
}

// RefreshResult — успешный refresh.
type RefreshResult struct {
	AccessToken string
	User        *models.User
	ExpiresAt   int64 // epoch-ms
	ExpiresIn   int64 // секунды
	Cookies     Cookies
}

// expiry вычисляет срок access-токена: expiresAt issuer'а, иначе now+expiresIn,
// иначе exp из самого токена. 0 — срок неизвестен.
func expiry(a upstream.AuthResponse, now time.Time) (at, in int64) {
	switch {
	case a.ExpiresAt > 0:
		at = a.ExpiresAt
	case a.ExpiresIn > 0:
		at = now.UnixMilli() + a.ExpiresIn*1000
	default:
		if ms, err := token.ExpiryMillis(a.AccessToken); err == nil {
			at = ms
		}
	}

	in = a.ExpiresIn
	if in <= 0 && at > 0 {
		in = max(0, (at-now.UnixMilli())/1000)
	}

	return at, in
}

// refreshValue — refresh-токен из тела ответа или из Set-Cookie issuer'а.
func (s *Service) refreshValue(resp *upstream.Response) string {
	if resp.Auth.RefreshToken != "" {
		return resp.Auth.RefreshToken
	}

	if c := cookies.Find(resp.Cookies, s.cfg.RefreshCookieName); c != nil {
		return c.Value
	}

	return ""
}

// refreshExpiry — реальный срок refresh-токена: CookieMaxAge, урезанный до
// Max-Age/Expires refresh-cookie issuer'а, если тот короче.
func (s *Service) refreshExpiry(resp *upstream.Response, now time.Time) time.Time {
	exp := now.Add(s.cfg.CookieMaxAge)

	issued, ok := cookies.Expiry(cookies.Find(resp.Cookies, s.cfg.RefreshCookieName), now)
	if ok && issued.Before(exp) {
		exp = issued
	}

	return exp
}

// mintSync подписывает sync-cookie для пользователя со сроком exp.
// Ошибка подписи не прерывает операцию: cookie просто не выставляется.
func (s *Service) mintSync(ctx context.Context, u *models.User, exp, now time.Time) (string, time.Duration) {
	if u == nil || u.ID == "" || !exp.After(now) {
		return "", 0
	}

	v, err := s.codec.Encode(synccookie.Payload{UserID: u.ID, Email: u.Email, Exp: exp.UnixMilli()})
	if err != nil {
		logctx.From(ctx).Warn("sync_mint_failed", "user_id", u.ID, "err", err)
		return "", 0
	}

	return v, exp.Sub(now)
}

// relayable убирает из ответа issuer'а cookie с именами, которые шлюз пишет сам:
// иначе в ответе окажутся два Set-Cookie с одним именем.
func (s *Service) relayable(cs []*http.Cookie) []*http.Cookie {
	return cookies.Without(cs, s.cfg.RefreshCookieName, s.cfg.SessionCookieName, s.cfg.SyncCookieName)
}

// cacheCtx ограничивает одну операцию кэша cacheTimeout.
func (s *Service) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cacheTimeout)
}

// cacheSet пишет результат логина; идентификатор сессии уже в логгере контекста.
func (s *Service) cacheSet(ctx context.Context, sessionID string, e *cache.Entry) {
	if s.cache == nil {
		return
	}

	cctx, cancel := s.cacheCtx(ctx)
	defer cancel()

	if err := s.cache.Set(cctx, sessionID, e, s.cfg.ResultTTL); err != nil {
		s.metrics.CacheFailure("set")
		logctx.From(ctx).Warn("cache_set_failed", "err", err)
	}
}

func (s *Service) cacheEvict(ctx context.Context, sessionID, userID string) {
	if s.cache == nil {
		return
	}

	log := logctx.From(ctx)

	if sessionID != "" {
		cctx, cancel := s.cacheCtx(ctx)
		err := s.cache.EvictBySession(cctx, sessionID)
		cancel()
		if err != nil {
			s.metrics.CacheFailure("evict_session")
			log.Warn("cache_evict_session_failed", "session", redact.SessionID(sessionID), "err", err)
		}
	}

	if userID != "" {
		cctx, cancel := s.cacheCtx(ctx)
		err := s.cache.EvictByUser(cctx, userID)
		cancel()
		if err != nil {
			s.metrics.CacheFailure("evict_user")
			log.Warn("cache_evict_user_failed", "user_id", userID, "err", err)
		}
	}
}
