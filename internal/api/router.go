package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(svc Service, adminToken string, requestsPerMinute int, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(requestsPerMinute))

	enrichments := NewEnrichmentsHandler(svc)
	databases := NewDatabasesHandler(svc)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/enrichments", enrichments.Create)
		r.Get("/enrichments", enrichments.List)
		r.Get("/enrichments/{id}", enrichments.Get)
		r.Get("/enrichments/{id}/report", enrichments.Report)

		r.Get("/databases", databases.List)
		r.Get("/databases/{name}", databases.Get)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Put("/databases/{name}/namespaces/{namespace}", databases.ImportNamespace)
			r.Put("/databases/{name}/aliases", databases.ImportAliases)
			r.Delete("/databases/{name}", databases.Delete)
		})
	})

	return r
}

// NewMetricsRouter serves /health and the metrics gathered by g.
func NewMetricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}
