// log хранит request-scoped *slog.Logger в context.Context.
//
// Логгер кладётся в контекст HTTP-мидлваром (см. internal/http/middleware.Logging)
// и достаётся в глубине стека: сервис сессий, клиент апстрима, планировщик.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}

	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}

// With достаёт логгер из контекста, дополняет его атрибутами и кладёт обратно.
// Удобно, когда атрибут (например, session_id) появляется посреди обработки.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := From(ctx).With(args...)
	return Into(ctx, l), l
}
