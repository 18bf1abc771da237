package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/waitlist/internal/middleware"
)

// Router mounts the Handler on every configured path, plus a health probe
// and the Prometheus scrape endpoint.  Every method reaches the Handler so
// it can answer OPTIONS and 405 itself.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	if a.Config.HTTP.ForceHTTPS {
		r.Use(middleware.ForceHTTPS)
	}

	for _, p := range a.Config.HTTP.Paths {
		r.Handle(p, a.Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, a.Config.Metrics.Path, promhttp.Handler())
	return r
}
