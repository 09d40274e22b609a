// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"planetoidgen/internal/controller/handlers"
	"planetoidgen/internal/controller/middleware"
)

// ServerConfig holds the credentials and limits applied to the routes.
type ServerConfig struct {
	// Bearer secret for /internal routes
	InternalSecret string
	// Hex sha256 of the admin API key. Empty leaves admin routes open.
	AdminKeyHash string

	GenerateLimit float64
	GenerateBurst int

	// Served on /metrics when set
	Metrics http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, cfg ServerConfig) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      Routes(h, cfg),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Routes builds the controller's handler tree.
func Routes(h *handlers.Handlers, cfg ServerConfig) http.Handler {
	admin := middleware.RequireAdminKey(cfg.AdminKeyHash)
	internal := middleware.RequireInternalAuth(cfg.InternalSecret)
	limiter := middleware.NewRateLimiter(cfg.GenerateLimit, cfg.GenerateBurst)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Admin apis
	mux.Handle("POST /planetoids", admin(http.HandlerFunc(h.CreatePlanetoid)))
	mux.Handle("GET /planetoids", admin(http.HandlerFunc(h.ListPlanetoids)))
	mux.Handle("GET /planetoids/{id}", admin(http.HandlerFunc(h.GetPlanetoid)))
	mux.Handle("GET /planetoids/{id}/agents", admin(http.HandlerFunc(h.GetAgents)))
	mux.Handle("PUT /planetoids/{id}/agents", admin(http.HandlerFunc(h.SetAgents)))
	mux.Handle("DELETE /planetoids/{id}/agents", admin(http.HandlerFunc(h.ClearAgents)))
	mux.Handle("GET /planetoids/{id}/tiles/{z}/{x}/{y}", admin(http.HandlerFunc(h.GetTile)))
	mux.Handle("GET /agents", admin(http.HandlerFunc(h.ListAgentImplementations)))
	mux.Handle("POST /tiles/generate", admin(limiter.Middleware()(http.HandlerFunc(h.GenerateTiles))))
	mux.Handle("GET /topics", admin(http.HandlerFunc(h.ListTopics)))
	mux.Handle("DELETE /topics", admin(http.HandlerFunc(h.DeleteTopics)))
	mux.Handle("POST /topics/agents/reset", admin(http.HandlerFunc(h.ResetAgentTopics)))
	mux.Handle("GET /connections/{id}/reports", admin(http.HandlerFunc(h.DrainReports)))

	// Internal endpoints, called by reporting agents on the workers.
	mux.Handle("POST /internal/data/report", internal(http.HandlerFunc(h.InternalReport)))

	return middleware.RequestID(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
