// config - источник загрузки конфигурации для session-gateway.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// Конфигурация собирается один раз при старте процесса и передаётся в
// хендлеры, сервис сессий и кэш явно; окружение нигде больше не читается.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// MinSigningSecretLen — минимальная длина секрета подписи sync-cookie (байт).
const MinSigningSecretLen = 32

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

// TimeoutConfig — общий дедлайн входящего запроса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"TIMEOUT_SERVICE" env-default:"15s"`
}

// HTTPConfig — публичный REST-сервер шлюза.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50090"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// MetricsConfig — отдельный HTTP для Prometheus.
type MetricsConfig struct {
	Host string `yaml:"host"   env:"METRICS_HOST"   env-default:"0.0.0.0"`
	Port string `yaml:"port"   env:"METRICS_PORT"   env-default:"50085"`
}

func (m MetricsConfig) Addr() string { return net.JoinHostPort(m.Host, m.Port) }

// UpstreamConfig — адрес и таймаут identity-бэкенда (issuer).
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" env:"UPSTREAM_BASE_URL" env-required:"true"`
	Timeout time.Duration `yaml:"timeout"  env:"UPSTREAM_TIMEOUT"  env-default:"10s"`
}

// RedisConfig — кэш результатов логина. Пустой URL — in-memory кэш.
// OpTimeout ограничивает каждую операцию кэша: недоступный Redis не должен
// съедать дедлайн запроса.
type RedisConfig struct {
	URL       string        `yaml:"redis_url"  env:"REDIS_URL"`
	Prefix    string        `yaml:"prefix"     env:"REDIS_PREFIX"     env-default:"session:"`
	OpTimeout time.Duration `yaml:"op_timeout" env:"REDIS_OP_TIMEOUT" env-default:"200ms"`
}

// SessionConfig — параметры жизненного цикла сессии и cookie.
type SessionConfig struct {
	SigningSecret     string        `yaml:"signing_secret"      env:"SYNC_SIGNING_SECRET"       env-required:"true"`
	RefreshCookieName string        `yaml:"refresh_cookie_name" env:"REFRESH_TOKEN_COOKIE_NAME" env-default:"refreshToken"`
	SyncCookieName    string        `yaml:"sync_cookie_name"    env:"SYNC_COOKIE_NAME"          env-default:"auth-sync"`
	SessionCookieName string        `yaml:"session_cookie_name" env:"SESSION_COOKIE_NAME"       env-default:"session-id"`
	CookieMaxAge      time.Duration `yaml:"cookie_max_age"      env:"COOKIE_MAX_AGE"            env-default:"168h"`
	ResultTTL         time.Duration `yaml:"result_ttl"          env:"SESSION_RESULT_TTL"        env-default:"30s"`
	Production        bool          `yaml:"production"          env:"PRODUCTION"                env-default:"false"`
}

// Validate проверяет инварианты, которые cleanenv выразить не может.
func (s SessionConfig) Validate() error {
	if len(s.SigningSecret) < MinSigningSecretLen {
		return fmt.Errorf("signing secret must be at least %d bytes", MinSigningSecretLen)
	}

	if s.RefreshCookieName == "" || s.SyncCookieName == "" || s.SessionCookieName == "" {
		return errors.New("cookie names must not be empty")
	}

	if s.RefreshCookieName == s.SyncCookieName || s.RefreshCookieName == s.SessionCookieName ||
		s.SyncCookieName == s.SessionCookieName {
		return errors.New("cookie names must be distinct")
	}

	if s.CookieMaxAge <= 0 || s.ResultTTL <= 0 {
		return errors.New("cookie max age and result ttl must be positive")
	}

	return nil
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}

// AgentConfig — конфигурация session-agent (только ENV).
type AgentConfig struct {
	Env            string        `env:"ENV"              env-default:"local"`
	GatewayURL     string        `env:"GATEWAY_URL"      env-required:"true"`
	Email          string        `env:"AGENT_EMAIL"      env-required:"true"`
	Password       string        `env:"AGENT_PASSWORD"   env-required:"true"`
	RefreshBuffer  time.Duration `env:"REFRESH_BUFFER"   env-default:"5m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"  env-default:"10s"`
}

// LoadAgent читает AgentConfig из переменных окружения.
func LoadAgent() (*AgentConfig, error) {
	var cfg AgentConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read agent env: %w", err)
	}

	if cfg.RefreshBuffer < 0 || cfg.RequestTimeout <= 0 {
		return nil, errors.New("refresh buffer must be >= 0 and request timeout > 0")
	}

	return &cfg, nil
}
