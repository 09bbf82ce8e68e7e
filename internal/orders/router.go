package orders

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/telemetry"
)

// NewRouter mounts the orders API. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", telemetry.WithHTTPRoute(h.HandlePlace))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
