package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/synccookie"
)

// GatewayError — ответ шлюза не-2xx в формате {error, code}.
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway status %d (%s): %s", e.Status, e.Code, e.Message)
}

// GatewayClient — HTTP-клиент шлюза сессий с cookie jar: refresh-, sync- и
// session-cookie живут в jar так же, как в браузере.
type GatewayClient struct {
	base     *url.URL
	http     *http.Client
	syncName string
}

// NewGatewayClient создаёт клиент. syncCookieName — имя sync-cookie ("" — "auth-sync").
func NewGatewayClient(baseURL string, timeout time.Duration, syncCookieName string) (*GatewayClient, error) {
	const op = "scheduler.NewGatewayClient"

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: gateway url %q must be absolute", op, baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if syncCookieName == "" {
		syncCookieName = "auth-sync"
	}

	return &GatewayClient{
		base:     u,
		http:     &http.Client{Timeout: timeout, Jar: jar},
		syncName: syncCookieName,
	}, nil
}

// Login — POST /login.
func (c *GatewayClient) Login(ctx context.Context, creds models.Credentials) (*models.LoginResponse, error) {
	const op = "scheduler.GatewayClient.Login"

	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out models.LoginResponse
	if err := c.send(ctx, "/login", body, "", &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Refresh — POST /refresh; возвращает новый access-токен. Реализует Refresher.
func (c *GatewayClient) Refresh(ctx context.Context) (string, error) {
	const op = "scheduler.GatewayClient.Refresh"

	var out models.RefreshResponse
	if err := c.send(ctx, "/refresh", nil, "", &out); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return out.AccessToken, nil
}

// Logout — POST /logout с Bearer-токеном (если передан).
func (c *GatewayClient) Logout(ctx context.Context, accessToken string) error {
	const op = "scheduler.GatewayClient.Logout"

	var out models.LogoutResponse
	if err := c.send(ctx, "/logout", nil, accessToken, &out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Session возвращает payload sync-cookie из jar без проверки подписи.
// ok=false, если cookie нет или она не читается.
func (c *GatewayClient) Session() (synccookie.Payload, bool) {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name != c.syncName || ck.Value == "" {
			continue
		}
		p, err := synccookie.Peek(ck.Value)
		return p, err == nil
	}

	return synccookie.Payload{}, false
}

func (c *GatewayClient) send(ctx context.Context, path string, body []byte, bearer string, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ge := &GatewayError{Status: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			ge.Code, ge.Message = eb.Code, eb.Error
		}
		return ge
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	return json.Unmarshal(raw, out)
}
