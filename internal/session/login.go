package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/storefront-session/internal/cache"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/upstream"
	logctx "github.com/pribylovaa/storefront-session/pkg/log"
	"github.com/pribylovaa/storefront-session/pkg/redact"
)

// Login выполняет логин через issuer'а под свежим идентификатором сессии.
//
// Результат попытки (включая отказ issuer'а) кэшируется под идентификатором
// на ResultTTL. При успехе с access-токеном и пользователем выпускается
// sync-cookie со сроком не дольше реального срока refresh-токена.
// Статус issuer'а возвращается без изменений; отказ — как *upstream.StatusError.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (*LoginResult, error) {
	const op = "session.Login"

	sid := s.newID()
	ctx, log := logctx.With(ctx, "session", redact.SessionID(sid))
	log = log.With("op", op)

	resp, err := s.issuer.Login(ctx, creds)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) {
			s.metrics.Login(se.Status)
			s.cacheSet(ctx, sid, &cache.Entry{Status: se.Status, CreatedAt: s.now().UTC()})
		} else {
			s.metrics.Login(0)
		}

		log.Warn("login_failed", "email", redact.Email(creds.Email), "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	s.metrics.Login(resp.Status)

	rt := s.refreshValue(resp)
	s.cacheSet(ctx, sid, &cache.Entry{
		Status:       resp.Status,
		AccessToken:  resp.Auth.AccessToken,
		RefreshToken: rt,
		User:         resp.Auth.User,
		CreatedAt:    now.UTC(),
	})

	res := &LoginResult{
		Status:      resp.Status,
		SessionID:   sid,
		AccessToken: resp.Auth.AccessToken,
		User:        resp.Auth.User,
		Cookies: Cookies{
			Relay:   s.relayable(resp.Cookies),
			Session: sid,
		},
	}
	res.ExpiresAt, res.ExpiresIn = expiry(resp.Auth, now)

	refreshExp := s.refreshExpiry(resp, now)
	if rt != "" {
		res.Cookies.Refresh = rt
		res.Cookies.RefreshMaxAge = refreshExp.Sub(now)
	}

	if resp.Auth.AccessToken != "" {
		res.Cookies.Sync, res.Cookies.SyncMaxAge = s.mintSync(ctx, resp.Auth.User, refreshExp, now)
	}

	log.Info("login_succeeded",
		"status", resp.Status,
		"user_id", userIDOf(resp.Auth.User),
		"email", redact.Email(creds.Email),
		"access_token", redact.Token(resp.Auth.AccessToken),
		"refresh_token", redact.Token(rt),
	)

	return res, nil
}

func userIDOf(u *models.User) string {
	if u == nil {
		return ""
	}

	return u.ID
}
