package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile — утилита записи временного файла конфигурации.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir — смена текущего рабочего каталога с авто-возвратом.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const testSecret = "0123456789abcdef0123456789abcdef"

// Полный корректный YAML под текущую структуру config.go.
const sampleYAML = `
env: "prod"
http:
  host: "0.0.0.0"
  port: "8080"
metrics:
  host: "127.0.0.1"
  port: "9090"
upstream:
  base_url: "http://issuer.local:4000/api"
  timeout: "4s"
redis:
  redis_url: "redis://localhost:6379/0"
  prefix: "shop:"
  op_timeout: "150ms"
session:
  signing_secret: "` + testSecret + `"
  refresh_cookie_name: "rt"
  sync_cookie_name: "auth-sync"
  session_cookie_name: "sid"
  cookie_max_age: "72h"
  result_ttl: "30s"
  production: true
timeouts:
  service: "3s"
`

// Минимальный YAML: обязательные поля, остальное — дефолты.
const minimalYAML = `
env: "stage"
upstream:
  base_url: "http://issuer.local"
session:
  signing_secret: "` + testSecret + `"
`

const brokenYAML = `
env: [unclosed
`

const weakSecretYAML = `
upstream:
  base_url: "http://issuer.local"
session:
  signing_secret: "short"
`

func TestHTTPConfig_Addr(t *testing.T) {
	t.Parallel()
	cfg := HTTPConfig{Host: "0.0.0.0", Port: "8080"}
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestMetricsConfig_Addr(t *testing.T) {
	t.Parallel()
	cfg := MetricsConfig{Host: "127.0.0.1", Port: "9090"}
	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "8080", cfg.HTTP.Port)
	require.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr())
	require.Equal(t, "http://issuer.local:4000/api", cfg.Upstream.BaseURL)
	require.Equal(t, 4*time.Second, cfg.Upstream.Timeout)
	require.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	require.Equal(t, "shop:", cfg.Redis.Prefix)
	require.Equal(t, 150*time.Millisecond, cfg.Redis.OpTimeout)
	require.Equal(t, testSecret, cfg.Session.SigningSecret)
	require.Equal(t, "rt", cfg.Session.RefreshCookieName)
	require.Equal(t, "sid", cfg.Session.SessionCookieName)
	require.Equal(t, 72*time.Hour, cfg.Session.CookieMaxAge)
	require.Equal(t, 30*time.Second, cfg.Session.ResultTTL)
	require.True(t, cfg.Session.Production)
	require.Equal(t, 3*time.Second, cfg.Timeouts.Service)
}

func TestLoad_Minimal_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "stage", cfg.Env)
	require.Equal(t, "refreshToken", cfg.Session.RefreshCookieName)
	require.Equal(t, "auth-sync", cfg.Session.SyncCookieName)
	require.Equal(t, "session-id", cfg.Session.SessionCookieName)
	require.Equal(t, 168*time.Hour, cfg.Session.CookieMaxAge)
	require.Equal(t, 30*time.Second, cfg.Session.ResultTTL)
	require.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	require.Equal(t, "session:", cfg.Redis.Prefix)
	require.Empty(t, cfg.Redis.URL)
	require.Equal(t, 200*time.Millisecond, cfg.Redis.OpTimeout)
	require.False(t, cfg.Session.Production)
}

func TestLoad_EnvOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)
	t.Setenv("REFRESH_TOKEN_COOKIE_NAME", "jid")
	t.Setenv("PRODUCTION", "true")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "jid", cfg.Session.RefreshCookieName)
	require.True(t, cfg.Session.Production)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_WeakSecret_Rejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "weak.yaml", weakSecretYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid session config")
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "from_env_path.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
}

func TestLoad_EnvOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("UPSTREAM_BASE_URL", "http://issuer.env")
	t.Setenv("SYNC_SIGNING_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://issuer.env", cfg.Upstream.BaseURL)
	require.Equal(t, "7000", cfg.HTTP.Port)
}

func TestLoad_EnvOnly_MissingRequired(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("UPSTREAM_BASE_URL", "")
	t.Setenv("SYNC_SIGNING_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
}

func TestSessionConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := SessionConfig{
		SigningSecret:     testSecret,
		RefreshCookieName: "rt",
		SyncCookieName:    "auth-sync",
		SessionCookieName: "sid",
		CookieMaxAge:      time.Hour,
		ResultTTL:         30 * time.Second,
	}
	require.NoError(t, valid.Validate())

	dup := valid
	dup.SyncCookieName = "rt"
	require.Error(t, dup.Validate())

	empty := valid
	empty.SessionCookieName = ""
	require.Error(t, empty.Validate())

	ttl := valid
	ttl.ResultTTL = 0
	require.Error(t, ttl.Validate())
}

func TestLoadAgent(t *testing.T) {
	t.Setenv("GATEWAY_URL", "http://gw.local")
	t.Setenv("AGENT_EMAIL", "bot@shop.local")
	t.Setenv("AGENT_PASSWORD", "secret")
	t.Setenv("REFRESH_BUFFER", "1m")

	cfg, err := LoadAgent()
	require.NoError(t, err)
	require.Equal(t, "http://gw.local", cfg.GatewayURL)
	require.Equal(t, time.Minute, cfg.RefreshBuffer)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
}
