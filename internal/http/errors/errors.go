// errors стандартизирует ответы об ошибках маршрутов жизненного цикла.
// На вход принимает доменную ошибку (сервиса сессий или клиента issuer'а),
// на выход даёт:
//   - HTTP-статус (статус issuer'а сохраняется без изменений);
//   - плоское тело {error, code, request_id?}.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/pribylovaa/storefront-session/internal/session"
	"github.com/pribylovaa/storefront-session/internal/upstream"
)

// StatusClientClosedRequest — нестандартный код «клиент закрыл соединение».
const StatusClientClosedRequest = 499

// Коды ошибок для фронта.
const (
	CodeNoRefreshToken   = "NO_REFRESH_TOKEN"
	CodeRefreshFailed    = "REFRESH_FAILED"
	CodeNoAccessToken    = "NO_ACCESS_TOKEN"
	CodeServerError      = "SERVER_ERROR"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUpstreamRejected = "UPSTREAM_REJECTED"
	CodeUpstreamDown     = "UPSTREAM_UNAVAILABLE"
	CodeCanceled         = "CANCELED"
)

// ErrInvalidRequest — тело запроса не разбирается.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorResponse — единый формат ошибки.
// Error — безопасное человекочитаемое описание; Code — стабильный машиночитаемый код.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/SERVER_ERROR;
//   - *upstream.StatusError — статус issuer'а, его код (или UPSTREAM_REJECTED) и сообщение;
//   - upstream.ErrTransient — 504 при таймауте, иначе 502;
//   - session.ErrNoRefreshToken — 401, session.ErrNoAccessToken — 500;
//   - прочее — 500/SERVER_ERROR без утечки деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	var se *upstream.StatusError

	switch {
	case err == nil:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeServerError}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: CodeInvalidRequest}
	case errors.Is(err, session.ErrNoRefreshToken):
		return http.StatusUnauthorized, ErrorResponse{Error: "no refresh token", Code: CodeNoRefreshToken}
	case errors.Is(err, session.ErrNoAccessToken):
		return http.StatusInternalServerError, ErrorResponse{Error: "no access token in upstream response", Code: CodeNoAccessToken}
	case errors.As(err, &se):
		code := se.Code
		if code == "" {
			code = CodeUpstreamRejected
		}
		return se.Status, ErrorResponse{Error: se.Message, Code: code}
	case errors.Is(err, upstream.ErrTransient):
		if isTimeout(err) {
			return http.StatusGatewayTimeout, ErrorResponse{Error: "upstream timeout", Code: CodeUpstreamDown}
		}
		return http.StatusBadGateway, ErrorResponse{Error: "upstream unavailable", Code: CodeUpstreamDown}
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrorResponse{Error: "canceled", Code: CodeCanceled}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeServerError}
	}
}

// ToRefreshHTTP — ToHTTP для /refresh: отказы и недоступность issuer'а
// получают код REFRESH_FAILED, статус сохраняется.
func ToRefreshHTTP(err error) (int, ErrorResponse) {
	status, resp := ToHTTP(err)

	var se *upstream.StatusError
	if errors.As(err, &se) || errors.Is(err, upstream.ErrTransient) {
		resp.Code = CodeRefreshFailed
	}

	return status, resp
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteRefreshError — WriteError с кодами /refresh.
func WriteRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToRefreshHTTP(err)
	write(w, r, status, resp)
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
