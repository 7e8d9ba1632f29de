package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/storefront-session/internal/config"
	"github.com/pribylovaa/storefront-session/internal/http/handlers"
	"github.com/pribylovaa/storefront-session/internal/http/middleware"
	"github.com/pribylovaa/storefront-session/internal/metrics"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Timeout  time.Duration
	BasePath string // например, "/api/auth"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.Lifecycle, cfg config.SessionConfig, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),             // безопасно ловим паники
		middleware.RequestID(),           // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),  // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics), // длительность по шаблону маршрута
		middleware.AuthBearer(),          // Bearer для logout issuer'а
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, cfg)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации маршрутов жизненного цикла.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	r.Post("/login", h.Login)
	r.Get("/refresh", h.Refresh)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
}
