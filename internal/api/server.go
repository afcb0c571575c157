package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatwire/sh-msg-platform/internal/core/services"
	"github.com/chatwire/sh-msg-platform/internal/health"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

// Server exposes the registry operations surface over http
type Server struct {
	registry *services.SessionRegistry
	health   *health.Status
}

// NewServer returns the api server over the given registry
func NewServer(registry *services.SessionRegistry, health *health.Status) *Server {
	return &Server{
		registry: registry,
		health:   health,
	}
}

// Routes mounts every api route on mux
func (s *Server) Routes(ctx context.Context, mux *chi.Mux) {
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.AllowAll().Handler)
	mux.Use(log.ChiMiddleware(ctx))

	mux.Get("/status", s.getStatus)
	mux.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/qr", s.getQR)
			r.Post("/media", s.uploadMedia)
			r.Get("/media/{messageID}", s.getMediaURL)
		})
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(ctx, "encoding http response", "err", err)
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, errorResponse{Message: message})
}
