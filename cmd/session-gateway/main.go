package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/storefront-session/internal/cache"
	"github.com/pribylovaa/storefront-session/internal/config"
	gwhttp "github.com/pribylovaa/storefront-session/internal/http"
	"github.com/pribylovaa/storefront-session/internal/http/handlers"
	"github.com/pribylovaa/storefront-session/internal/metrics"
	"github.com/pribylovaa/storefront-session/internal/session"
	"github.com/pribylovaa/storefront-session/internal/synccookie"
	"github.com/pribylovaa/storefront-session/internal/upstream"
	"github.com/pribylovaa/storefront-session/pkg/redact"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const sweepPeriod = time.Minute

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting session-gateway", "env", cfg.Env, "upstream", cfg.Upstream.BaseURL)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	codec, err := synccookie.NewCodec([]byte(cfg.Session.SigningSecret))
	if err != nil {
		log.Error("sync_codec_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	sessionCache, err := setupCache(rootCtx, cfg.Redis, log)
	if err != nil {
		log.Error("cache_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if cerr := sessionCache.Close(); cerr != nil {
			log.Warn("cache_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	issuer := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, upstream.WithMetrics(m))
	svc := session.New(issuer, sessionCache, codec, cfg.Session,
		session.WithMetrics(m),
		session.WithCacheTimeout(cfg.Redis.OpTimeout),
	)
	log.Info("service_initialized")

	apiHandler := gwhttp.NewRouter(svc, cfg.Session, gwhttp.Options{
		Logger:  log,
		Metrics: m,
		Timeout: cfg.Timeouts.Service,
	})

	var ready atomic.Bool

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/livez", handlers.Livez)
	opsMux.HandleFunc("/healthz", handlers.Healthz(&ready))
	opsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           apiHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	opsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr(),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	apiLn, err := net.Listen("tcp", apiSrv.Addr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", apiSrv.Addr), slog.String("err", err.Error()))
		os.Exit(1)
	}
	opsLn, err := net.Listen("tcp", opsSrv.Addr)
	if err != nil {
		log.Error("metrics_listen_failed", slog.String("addr", opsSrv.Addr), slog.String("err", err.Error()))
		_ = apiLn.Close()
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
	log.Info("metrics_listen_start", slog.String("addr", opsSrv.Addr))

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return serve(apiSrv, apiLn) })
	g.Go(func() error { return serve(opsSrv, opsLn) })

	ready.Store(true)
	log.Info("gateway_ready")

	<-gctx.Done()
	if rootCtx.Err() != nil {
		log.Info("shutdown_requested")
	}

	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		log.Error("http_serve_failed", slog.String("err", err.Error()))
	}

	log.Info("service_stopped")
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupCache выбирает Redis при заданном REDIS_URL, иначе in-memory кэш.
// Недоступный Redis не мешает старту: ошибки кэша поглощает сервис сессий.
func setupCache(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (cache.SessionCache, error) {
	if cfg.URL == "" {
		mc := cache.NewMemoryCache()
		startCacheJanitor(ctx, mc, log, sweepPeriod)
		log.Info("cache_memory")
		return mc, nil
	}

	rc, err := cache.NewRedisCache(cfg.URL, cfg.Prefix, cfg.OpTimeout)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rc.Ping(pingCtx); err != nil {
		log.Warn("redis_unreachable", slog.String("url", redact.URL(cfg.URL)), slog.String("err", err.Error()))
	} else {
		log.Info("redis_connected", slog.String("url", redact.URL(cfg.URL)))
	}

	return rc, nil
}

// startCacheJanitor периодически удаляет просроченные записи in-memory кэша.
func startCacheJanitor(ctx context.Context, mc *cache.MemoryCache, log *slog.Logger, period time.Duration) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := mc.Sweep(); n > 0 {
					log.Debug("cache_swept", slog.Int("removed", n))
				}
			}
		}
	}()
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
