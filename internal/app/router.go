package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorledger/motorledger/internal/backup"
	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/observability"
	"github.com/motorledger/motorledger/internal/photos"
	"github.com/motorledger/motorledger/jobs"
)

// RouterParams bundles the handlers mounted on the HTTP router.
type RouterParams struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Ledger *ledger.Handler
	Backup *backup.Handler
	Photos *photos.Handler
	Jobs   *jobs.Handler

	// PhotoDir is served read-only under /photos.
	PhotoDir string
}

// NewRouter assembles the full route tree.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	MiddlewareStack(r, p.Config, p.Logger, p.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		p.Ledger.MountRoutes(api)
		if p.Backup != nil {
			p.Backup.MountRoutes(api)
		}
		if p.Photos != nil {
			api.Route("/photos", func(rr chi.Router) {
				p.Photos.MountRoutes(rr)
			})
		}
	})

	if p.Jobs != nil {
		r.Route("/jobs", func(rr chi.Router) {
			p.Jobs.MountRoutes(rr)
		})
	}

	if p.PhotoDir != "" {
		fs := http.StripPrefix("/photos/", http.FileServer(http.Dir(p.PhotoDir)))
		r.Get("/photos/*", fs.ServeHTTP)
	}

	return r
}
