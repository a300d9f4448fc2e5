package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns the main HTTP router.
func NewRouter(ctrl Controller, sessions Sessions, bus EventBus) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{ctrl: ctrl, sessions: sessions, events: bus}

	// System state
	r.Get("/api", h.getState)
	r.Get("/api/", h.getState)

	// Sinks
	r.Get("/api/sinks", h.getSinks)
	r.Get("/api/sinks/{sid}", h.getSink)
	r.Patch("/api/sinks/{sid}", h.setSink)
	r.Delete("/api/sinks/{sid}", h.deactivateSink)
	r.Post("/api/sinks/{sid}/mute/toggle", h.toggleMute)

	// Routing
	r.Patch("/api/sinks/{sid}/outputs/{oid}", h.setConnection)
	r.Post("/api/sinks/{sid}/outputs/{oid}/toggle", h.toggleOutput)

	// Sessions
	r.Get("/api/sessions", h.getSessions)
	r.Get("/api/sessions/{sid}", h.getSession)
	r.Post("/api/session", h.createSession)
	r.Patch("/api/sessions/{sid}", h.renameSession)
	r.Delete("/api/sessions/{sid}", h.deleteSession)
	r.Post("/api/sessions/{sid}/save", h.saveSession)
	r.Post("/api/sessions/{sid}/activate", h.activateSession)

	// System
	r.Get("/api/info", h.getInfo)
	r.Post("/api/resync", h.resync)

	// SSE
	r.Get("/api/subscribe", h.sseEvents)

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
