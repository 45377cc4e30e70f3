package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Long-lived routes, relative to the base path.
const (
	routeCameraSubscribe = "/samplecentring/camera/subscribe"
	routeCameraWS        = "/samplecentring/camera/ws"
	routeEvents          = "/samplecentring/events"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	if s.cfg.BasePath == "" || s.cfg.BasePath == "/" {
		s.mountSampleCentring(r)
	} else {
		r.Route(strings.TrimRight(s.cfg.BasePath, "/"), s.mountSampleCentring)
	}

	return r
}

// mountSampleCentring registers the sample centring routes.
//
// Static segments win over {id} in chi, so /centring/startauto and
// /centring/{id} coexist; the same holds for /status and /{id}/status.
func (s *Server) mountSampleCentring(r chi.Router) {
	r.Route("/samplecentring", func(r chi.Router) {
		// Camera
		r.Get("/camera/subscribe", s.handleCameraSubscribe)
		r.Get("/camera/unsubscribe", s.handleCameraUnsubscribe)
		r.Get("/camera/ws", s.handleCameraWebSocket)
		r.Put("/snapshot", s.handleSnapshot)

		// Hardware events (WebSocket)
		r.Get("/events", s.handleEventsWebSocket)

		// Command journal
		r.Get("/journal", s.handleListJournal)

		// Motors
		r.Get("/status", s.handleStatus)
		r.Put("/{id}/move", s.handleMoveMotor)
		r.Get("/{id}/status", s.handleMotorStatus)

		// Centring
		r.Route("/centring", func(r chi.Router) {
			r.Get("/", s.handleListPositions)
			r.Get("/clicks", s.handleListClicks)
			r.Put("/startauto", s.handleStartAuto)
			r.Put("/start3click", s.handleStart3Click)
			r.Put("/click", s.handleImageClick)

			r.Get("/{id}", s.handleGetCentring)
			r.Post("/{id}", s.handlePostClick)
			r.Put("/{id}/save", s.handleSavePosition)
			r.Delete("/{id}/delete", s.handleDeletePosition)
			r.Put("/{id}/rename", s.handleRenamePosition)
			r.Put("/{id}/move", s.handleMoveToPosition)
		})
	})
}

// isStreamRoute reports whether route is a long-lived stream.
func isStreamRoute(route string) bool {
	return strings.HasSuffix(route, routeCameraSubscribe) ||
		strings.HasSuffix(route, routeCameraWS) ||
		strings.HasSuffix(route, routeEvents)
}

// handleHealth reports the server and dependency health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if err := c.HealthCheck(r.Context()); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, code, body)
}
