// session-agent — долгоживущий клиент шлюза сессий: логинится, держит
// access-токен свежим через scheduler и выходит из сессии по сигналу.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pribylovaa/storefront-session/internal/config"
	"github.com/pribylovaa/storefront-session/internal/models"
	"github.com/pribylovaa/storefront-session/internal/scheduler"
	"github.com/pribylovaa/storefront-session/pkg/redact"
)

func main() {
	cfg, err := config.LoadAgent()
	if err != nil {
		slog.Error("agent_config_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	gw, err := scheduler.NewGatewayClient(cfg.GatewayURL, cfg.RequestTimeout, "")
	if err != nil {
		log.Error("gateway_client_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	loginCtx, loginCancel := context.WithTimeout(rootCtx, cfg.RequestTimeout)
	resp, err := gw.Login(loginCtx, models.Credentials{Email: cfg.Email, Password: cfg.Password})
	loginCancel()
	if err != nil {
		log.Error("login_failed", slog.String("email", redact.Email(cfg.Email)), slog.String("err", err.Error()))
		os.Exit(1)
	}
	if resp.AccessToken == "" {
		log.Error("login_without_access_token", slog.String("session", redact.SessionID(resp.SessionID)))
		os.Exit(1)
	}

	log.Info("logged_in",
		slog.String("email", redact.Email(cfg.Email)),
		slog.String("session", redact.SessionID(resp.SessionID)),
	)

	var current atomic.Value
	current.Store(resp.AccessToken)

	buffer := cfg.RefreshBuffer
	if buffer == 0 {
		buffer = scheduler.DefaultBuffer
	}

	sch := scheduler.New(gw, scheduler.Options{
		Buffer:  buffer,
		Timeout: cfg.RequestTimeout,
		Logger:  log.With(slog.String("component", "scheduler")),
		OnToken: func(tok string) {
			current.Store(tok)
			if p, ok := gw.Session(); ok {
				log.Info("token_refreshed", slog.String("session_until", time.UnixMilli(p.Exp).UTC().Format(time.RFC3339)))
				return
			}
			log.Info("token_refreshed")
		},
	})
	sch.Schedule(resp.AccessToken)

	<-rootCtx.Done()
	log.Info("shutdown_requested")

	sch.Stop()

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer logoutCancel()

	if err := gw.Logout(logoutCtx, current.Load().(string)); err != nil {
		log.Warn("logout_failed", slog.String("err", err.Error()))
	}

	log.Info("agent_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case "dev":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
