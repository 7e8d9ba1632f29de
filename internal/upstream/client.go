// upstream — HTTP-клиент issuer'а токенов (POST /auth/login, /auth/refresh, /auth/logout).
//
// Клиент не повторяет запросы: транспортные ошибки возвращаются как ErrTransient,
// ответы не-2xx — как *StatusError с сохранёнными статусом и кодом issuer'а.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pribylovaa/storefront-session/internal/cookies"
	"github.com/pribylovaa/storefront-session/internal/metrics"
	"github.com/pribylovaa/storefront-session/internal/models"
)

// RefreshHeader — заголовок, в котором дублируется refresh-токен.
const RefreshHeader = "X-Refresh-Token"

// maxBody — предел чтения тела ответа issuer'а.
const maxBody = 1 << 20

var (
	// ErrTransient — сеть/таймаут; безопасно повторить вызывающей стороне.
	ErrTransient = errors.New("upstream unavailable")
	// ErrMalformedResponse — 2xx с телом, которое не разбирается.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError — issuer ответил не-2xx. Статус и код передаются клиенту без изменений.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// AuthResponse — тело успешного ответа login/refresh.
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	User         *models.User `json:"user,omitempty"`
	ExpiresIn    int64        `json:"expiresIn,omitempty"` // секунды
	ExpiresAt    int64        `json:"expiresAt,omitempty"` // epoch-ms
}

// Response — успешный ответ issuer'а вместе с его Set-Cookie.
type Response struct {
	Status  int
	Auth    AuthResponse
	Cookies []*http.Cookie
}

// errorBody — тело ошибки issuer'а; поддерживаются поля error/message/code.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client — клиент issuer'а.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (например, в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics включает учёт длительности вызовов.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New создаёт клиент; timeout ограничивает каждый вызов целиком.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Login — POST /auth/login с учётными данными.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*Response, error) {
	const op = "upstream.Login"

	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, "/auth/login", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c.doAuth(req, op, "login")
}

// Refresh — POST /auth/refresh. Токен передаётся телом, заголовком
// X-Refresh-Token и кукой cookieName: issuer'ы ожидают его по-разному.
func (c *Client) Refresh(ctx context.Context, refreshToken, cookieName string) (*Response, error) {
	const op = "upstream.Refresh"

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, "/auth/refresh", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set(RefreshHeader, refreshToken)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: refreshToken})

	return c.doAuth(req, op, "refresh")
}

// Logout — POST /auth/logout с bearer-токеном и refresh-кукой (если есть).
// Ответ issuer'а, кроме статуса, не используется.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken, cookieName string) error {
	const op = "upstream.Logout"

	req, err := c.newRequest(ctx, "/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if refreshToken != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: refreshToken})
	}

	resp, raw, err := c.do(req, "logout")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %w", op, statusError(resp.StatusCode, raw))
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do выполняет запрос и читает тело. Транспортные ошибки оборачиваются в ErrTransient.
func (c *Client) do(req *http.Request, metric string) (*http.Response, []byte, error) {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Upstream(metric, 0, time.Since(start))
		return nil, nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.metrics.Upstream(metric, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	return resp, raw, nil
}

func (c *Client) doAuth(req *http.Request, op, metric string) (*Response, error) {
	resp, raw, err := c.do(req, metric)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w", op, statusError(resp.StatusCode, raw))
	}

	out := &Response{
		Status:  resp.StatusCode,
		Cookies: cookies.Parse(resp.Header.Values("Set-Cookie")),
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out.Auth); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
		}
	}

	return out, nil
}

func statusError(status int, raw []byte) *StatusError {
	se := &StatusError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		se.Code = eb.Code
		se.Message = eb.Error
		if se.Message == "" {
			se.Message = eb.Message
		}
	}

	if se.Message == "" {
		se.Message = http.StatusText(status)
	}

	return se
}
