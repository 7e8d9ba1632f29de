package handlers

import (
	"fmt"
	"net/http"

	apierrors "github.com/pribylovaa/storefront-session/internal/http/errors"
	"github.com/pribylovaa/storefront-session/internal/http/middleware"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/session"
)

// Login — POST /login {email, password}.
// Статус issuer'а возвращается без изменений; refresh-токен в тело не попадает.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, fmt.Errorf("%w: %v", apierrors.ErrInvalidRequest, err))
		return
	}

	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeCookies(w, res.Cookies)
	writeJSON(w, res.Status, models.LoginResponse{
		AccessToken: res.AccessToken,
		User:        res.User,
		SessionID:   res.SessionID,
		ExpiresAt:   res.ExpiresAt,
		ExpiresIn:   res.ExpiresIn,
	})
}

// Refresh — GET|POST /refresh. Читает refresh-cookie; без неё 401 NO_REFRESH_TOKEN.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Refresh(r.Context(), session.RefreshInput{
		RefreshToken: cookieValue(r, h.cfg.RefreshCookieName),
		SyncCookie:   cookieValue(r, h.cfg.SyncCookieName),
	})
	if err != nil {
		apierrors.WriteRefreshError(w, r, err)
		return
	}

	h.writeCookies(w, res.Cookies)
	writeJSON(w, http.StatusOK, models.RefreshResponse{
		AccessToken: res.AccessToken,
		User:        res.User,
		ExpiresAt:   res.ExpiresAt,
		ExpiresIn:   res.ExpiresIn,
	})
}

// Logout — POST /logout. Всегда 200 {success:true}: refresh-, sync- и
// session-cookie стираются независимо от ответа issuer'а.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	// Ошибка issuer'а уже залогирована сервисом.
	_ = h.svc.Logout(r.Context(), session.LogoutInput{
		SessionID:    cookieValue(r, h.cfg.SessionCookieName),
		SyncCookie:   cookieValue(r, h.cfg.SyncCookieName),
		AccessToken:  middleware.AccessTokenFrom(r.Context()),
		RefreshToken: cookieValue(r, h.cfg.RefreshCookieName),
	})

	h.policy.Clear(w, h.cfg.RefreshCookieName, h.cfg.SyncCookieName, h.cfg.SessionCookieName)
	writeJSON(w, http.StatusOK, models.LogoutResponse{Success: true})
}
