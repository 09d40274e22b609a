// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"planetoidgen/internal/logger"
	"planetoidgen/internal/store"
	"planetoidgen/internal/tile"
	"planetoidgen/pkg/api"
)

// Store combines the repositories the controller serves.
type Store interface {
	Ping(ctx context.Context) error
	store.TileStore
	store.AgentRegistry
	store.PlanetoidStore
	store.ReportStore
}

// Scheduler queues tiles for generation.
type Scheduler interface {
	QueueTiles(ctx context.Context, tiles []tile.Address, connectionID string) (int, error)
}

// TopicManager administers the stage topics.
type TopicManager interface {
	GetAllTopics(ctx context.Context) ([]string, error)
	DeleteTopics(ctx context.Context, names []string) ([]string, error)
	DeleteAllTopics(ctx context.Context) ([]string, error)
	ResetAgentTopics(ctx context.Context) ([]string, error)
}

// Catalog lists the agent implementations known to this build.
type Catalog interface {
	Describe() map[string]string
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     Store
	scheduler Scheduler
	topics    TopicManager
	catalog   Catalog
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(s Store, scheduler Scheduler, topics TopicManager, catalog Catalog, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: s, scheduler: scheduler, topics: topics, catalog: catalog, logger: log}
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), h.logger)
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// planetoidID parses the {id} path value.
func planetoidID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
