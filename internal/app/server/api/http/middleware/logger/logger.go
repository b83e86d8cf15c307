package logger

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"paysync/internal/app/server/api/http/middleware/auth"
)

// Logger пишет access log.
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "http_logger")),
	}
}

func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		method := ctx.Method()
		path := ctx.URL().Path

		next(ctx)

		attrs := []any{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", ctx.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		if tenant := ctx.Header(auth.TenantHeader); tenant != "" {
			attrs = append(attrs, slog.String("tenant_id", tenant))
		}

		if ctx.Status() >= 500 {
			l.log.Warn("HTTP request", attrs...)
			return
		}
		l.log.Info("HTTP request", attrs...)
	}
}
