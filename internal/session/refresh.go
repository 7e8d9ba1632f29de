package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/storefront-session/internal/upstream"
	logctx "github.com/pribylovaa/storefront-session/pkg/log"
)

// RefreshInput — то, что транспорт прочитал из входящих cookie.
type RefreshInput struct {
	RefreshToken string
	SyncCookie   string
}

// Refresh обменивает refresh-токен на новый access-токен.
//
// Если issuer ротировал refresh-токен (тело или Set-Cookie отличаются от
// отправленного), результат содержит одну запись refresh-cookie; иначе
// cookie не трогается. Sync-cookie перевыпускается, только если известен
// потолок её срока: срок ротированного токена или exp текущей sync-cookie.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	const op = "session.Refresh"

	log := logctx.From(ctx).With("op", op)

	if in.RefreshToken == "" {
		s.metrics.Refresh("NO_REFRESH_TOKEN")
		return nil, fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	resp, err := s.issuer.Refresh(ctx, in.RefreshToken, s.cfg.RefreshCookieName)
	if err != nil {
		s.metrics.Refresh("REFRESH_FAILED")

		var se *upstream.StatusError
		if errors.As(err, &se) {
			log.Warn("refresh_rejected", "status", se.Status, "code", se.Code)
		} else {
			log.Warn("refresh_failed", "err", err)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.Auth.AccessToken == "" {
		s.metrics.Refresh("NO_ACCESS_TOKEN")
		log.Error("refresh_no_access_token", "status", resp.Status)
		return nil, fmt.Errorf("%s: %w", op, ErrNoAccessToken)
	}

	now := s.now()
	res := &RefreshResult{
		AccessToken: resp.Auth.AccessToken,
		User:        resp.Auth.User,
		Cookies: Cookies{
			Relay: s.relayable(resp.Cookies),
		},
	}
	res.ExpiresAt, res.ExpiresIn = expiry(resp.Auth, now)

	var ceiling time.Time
	if rotated := s.refreshValue(resp); rotated != "" && rotated != in.RefreshToken {
		ceiling = s.refreshExpiry(resp, now)
		res.Cookies.Refresh = rotated
		res.Cookies.RefreshMaxAge = ceiling.Sub(now)
		log.Debug("refresh_token_rotated")
	} else if p, err := s.codec.Decode(in.SyncCookie); err == nil && p.UserID == userIDOf(resp.Auth.User) {
		ceiling = time.UnixMilli(p.Exp)
	}

	if !ceiling.IsZero() {
		res.Cookies.Sync, res.Cookies.SyncMaxAge = s.mintSync(ctx, resp.Auth.User, ceiling, now)
	}

	s.metrics.Refresh("ok")
	log.Debug("refresh_succeeded", "user_id", userIDOf(resp.Auth.User), "expires_at", res.ExpiresAt)

	return res, nil
}
