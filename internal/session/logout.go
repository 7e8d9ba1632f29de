package session

import (
	"context"
	"fmt"

	logctx "github.com/pribylovaa/storefront-session/pkg/log"
	"github.com/pribylovaa/storefront-session/pkg/redact"
)

// LogoutInput — идентификаторы и токены текущей сессии из входящего запроса.
type LogoutInput struct {
	SessionID    string
	SyncCookie   string
	AccessToken  string
	RefreshToken string
}

// Logout выселяет записи кэша по сессии и по пользователю, затем вызывает
// logout issuer'а. Ошибка issuer'а возвращается только для логирования:
// транспорт стирает cookie и отвечает 200 в любом случае.
func (s *Service) Logout(ctx context.Context, in LogoutInput) error {
	const op = "session.Logout"

	log := logctx.From(ctx).With("op", op)

	userID := s.resolveUser(ctx, in)
	s.cacheEvict(ctx, in.SessionID, userID)

	if err := s.issuer.Logout(ctx, in.AccessToken, in.RefreshToken, s.cfg.RefreshCookieName); err != nil {
		s.metrics.Logout("failed")
		log.Warn("upstream_logout_failed",
			"user_id", userID,
			"access_token", redact.Token(in.AccessToken),
			"err", err,
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Logout("ok")
	log.Info("logout_succeeded", "user_id", userID, "session", redact.SessionID(in.SessionID))

	return nil
}

// resolveUser определяет пользователя сессии: по проверенной sync-cookie,
// иначе по записи кэша логина. "" — пользователь неизвестен.
func (s *Service) resolveUser(ctx context.Context, in LogoutInput) string {
	if in.SyncCookie != "" {
		if p, err := s.codec.Decode(in.SyncCookie); err == nil {
			return p.UserID
		}
		logctx.From(ctx).Debug("sync_cookie_rejected")
	}

	if in.SessionID == "" || s.cache == nil {
		return ""
	}

	cctx, cancel := s.cacheCtx(ctx)
	defer cancel()

	e, found, err := s.cache.Get(cctx, in.SessionID)
	if err != nil {
		s.metrics.CacheFailure("get")
		logctx.From(ctx).Warn("cache_get_failed", "session", redact.SessionID(in.SessionID), "err", err)
		return ""
	}
	if !found {
		return ""
	}

	return e.UserID()
}
