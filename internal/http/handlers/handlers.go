// handlers — HTTP-хендлеры маршрутов жизненного цикла сессии.
//
// Хендлеры читают cookie/тело, вызывают сервис сессий и переводят его
// результат в Set-Cookie и JSON. Атрибуты cookie задаёт cookies.Policy.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pribylovaa/storefront-session/internal/config"
	"github.com/pribylovaa/storefront-session/internal/cookies"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/session"
)

// maxBody — предел тела запроса логина.
const maxBody = 64 << 10

// Lifecycle — операции сервиса сессий, нужные хендлерам.
type Lifecycle interface {
	Login(ctx context.Context, creds models.Credentials) (*session.LoginResult, error)
	Refresh(ctx context.Context, in session.RefreshInput) (*session.RefreshResult, error)
	Logout(ctx context.Context, in session.LogoutInput) error
}

// Handlers агрегирует зависимости хендлеров.
type Handlers struct {
	svc    Lifecycle
	cfg    config.SessionConfig
	policy cookies.Policy
}

// New создаёт хендлеры. Sync-cookie — единственная читаемая клиентом cookie.
func New(svc Lifecycle, cfg config.SessionConfig) *Handlers {
	return &Handlers{
		svc: svc,
		cfg: cfg,
		policy: cookies.Policy{
			Secure:   cfg.Production,
			MaxAge:   cfg.CookieMaxAge,
			Readable: []string{cfg.SyncCookieName},
		},
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// cookieValue возвращает значение cookie или "".
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// writeCookies выставляет cookie из результата сервиса. Refresh-cookie
// пишется ровно один раз: копия issuer'а уже исключена из Relay.
func (h *Handlers) writeCookies(w http.ResponseWriter, c session.Cookies) {
	h.policy.Relay(w, c.Relay)

	if c.Refresh != "" {
		h.policy.SetWithMaxAge(w, h.cfg.RefreshCookieName, c.Refresh, c.RefreshMaxAge)
	}
	if c.Session != "" {
		h.policy.Set(w, h.cfg.SessionCookieName, c.Session)
	}
	if c.Sync != "" {
		h.policy.SetWithMaxAge(w, h.cfg.SyncCookieName, c.Sync, c.SyncMaxAge)
	}
}
