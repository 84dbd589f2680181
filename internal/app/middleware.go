package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/motorledger/motorledger/internal/observability"
)

const httprateWindow = time.Minute

// MiddlewareStack wires the global middleware chain onto the router.
func MiddlewareStack(r chi.Router, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) {
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.AppRequestTimeout))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         !cfg.IsProduction(),
	})
	r.Use(secureMiddleware.Handler)

	r.Use(middleware.Compress(5))
	r.Use(httprate.Limit(120, httprateWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))

	if metrics != nil {
		r.Use(metrics.Middleware)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
