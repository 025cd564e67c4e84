package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acarin/missionmind/internal/bus"
	"github.com/acarin/missionmind/internal/store"
	"github.com/acarin/missionmind/internal/summarizer"
)

// Sweeper triggers one immediate risk sweep, used by the admin surface.
type Sweeper interface {
	SweepOnce(ctx context.Context)
}

func NewRouter(s store.Store, eval Evaluators, events bus.Client, sum summarizer.Client, sweeper Sweeper, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(120))

	tasks := NewTasksHandler(s, eval, events, sum, logger)
	explain := NewExplainHandler(s, eval.Scorer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/{id}/score", tasks.Score)
		r.Get("/tasks/{id}/risk", tasks.Risk)
		r.Post("/tasks/{id}/route", tasks.Route)
		r.Get("/tasks/{id}/authority-suggestions", tasks.AuthoritySuggestions)
		r.Get("/tasks/{id}/quality-check", tasks.QualityCheck)
		r.Get("/tasks/{id}/summary", tasks.Summary)

		r.Get("/scoring/explain/{task_id}", explain.Explain)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Post("/admin/sweep", func(w http.ResponseWriter, req *http.Request) {
				if sweeper == nil {
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sweep not running"})
					return
				}
				sweeper.SweepOnce(req.Context())
				writeJSON(w, http.StatusOK, map[string]string{"status": "sweep complete"})
			})
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
