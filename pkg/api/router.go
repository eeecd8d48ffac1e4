package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shareguard/shareguard/pkg/metrics"
)

// NewRouter assembles the chi router.
//
// Routes:
//   - GET  /health                      - liveness probe
//   - GET  /metrics                     - Prometheus exposition (when enabled)
//   - POST /api/scan                    - on-demand ACL scan
//   - GET  /api/snapshots               - cached snapshot lookup
//   - GET  /api/changes                 - change record listing
//   - POST /api/health/run              - trigger analyzer
//   - GET  /api/health/score            - latest score and issue counts
//   - GET  /api/health/history          - score trend
//   - GET  /api/health/issues           - issue listing
//   - PATCH /api/health/issues/{id}     - issue status transition
//   - POST /api/monitor/start           - start/extend the watch loop
//   - POST /api/monitor/stop            - stop the watch loop
//   - GET  /api/monitor/status          - watch loop state
//   - GET  /api/ws                      - notification WebSocket
func NewRouter(h *Handlers, jwtService *JWTService, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(httpMetrics(m))
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Liveness)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(JWTAuth(jwtService))

		// The WebSocket route must not sit behind the timeout
		// middleware; subscriptions outlive any request deadline.
		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			if requestTimeout > 0 {
				r.Use(chimw.Timeout(requestTimeout))
			}

			r.Post("/scan", h.Scan)
			r.Get("/snapshots", h.Snapshot)
			r.Get("/changes", h.Changes)

			r.Route("/health", func(r chi.Router) {
				r.Post("/run", h.HealthRun)
				r.Get("/score", h.HealthScore)
				r.Get("/history", h.HealthHistory)
				r.Get("/issues", h.Issues)
				r.Patch("/issues/{id}", h.SetIssueStatus)
			})

			r.Route("/monitor", func(r chi.Router) {
				r.Post("/start", h.MonitorStart)
				r.Post("/stop", h.MonitorStop)
				r.Get("/status", h.MonitorStatus)
			})
		})
	})

	return r
}
