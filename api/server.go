/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the coaching frontend

ROUTE GROUPS:
  /api/assignments/*    Batch creation, listing, lifecycle
  /api/progress/*       Individual progress updates
  /api/admin/*          Manual reaper activation
  /api/scenarios/*      Demo seeding (only when ScenariosEnabled)

AUTHENTICATION:
  The assigner is taken from the X-Assigner-ID header as already
  authenticated by the gateway; the Authorizer decides what it may do.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tohka53/gtrehabiMovement/logger"
)

// AssignerHeader carries the authenticated assigner id.
const AssignerHeader = "X-Assigner-ID"

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", AssignerHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", h.ListAssignments)
			r.Post("/", h.CreateAssignments)
			r.Get("/{id}", h.GetAssignment)
			r.Post("/{id}/cancel", h.CancelAssignment)
			r.Post("/{id}/pause", h.PauseAssignment)
			r.Post("/{id}/resume", h.ResumeAssignment)
			r.Post("/{id}/complete", h.CompleteAssignment)
		})

		r.Route("/progress", func(r chi.Router) {
			r.Put("/{id}", h.UpdateProgress)
			r.Put("/{id}/notes", h.UpdateNotes)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reap", h.TriggerReap)
		})

		if h.ScenariosEnabled {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log).With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
