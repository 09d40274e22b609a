package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/scheduler"
	"planetoidgen/internal/tile"
	"planetoidgen/pkg/api"
)

const maxTilesPerRequest = 1000

// GenerateTiles handles POST /tiles/generate. Tiles are queued in request
// order; when one fails the earlier ones stay queued and the error is returned.
func (h *Handlers) GenerateTiles(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateTilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlanetoidID <= 0 {
		h.httpError(w, "planetoid_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Tiles) == 0 || len(req.Tiles) > maxTilesPerRequest {
		h.httpError(w, fmt.Sprintf("Between 1 and %d tiles are required", maxTilesPerRequest), http.StatusBadRequest)
		return
	}

	connectionID := strings.TrimSpace(req.ConnectionID)
	if connectionID == "" {
		connectionID = strings.TrimSpace(r.Header.Get(api.ConnectionHeader))
	}
	if connectionID == "" {
		connectionID = uuid.NewString()
	}

	addrs := make([]tile.Address, len(req.Tiles))
	for i, t := range req.Tiles {
		addrs[i] = tile.Address{PlanetoidID: req.PlanetoidID, Z: t.Z, X: t.X, Y: t.Y}
	}

	queued, err := h.scheduler.QueueTiles(r.Context(), addrs, connectionID)
	if err != nil {
		code, msg := generateErrorStatus(err)
		if code == http.StatusInternalServerError {
			h.log(r).Error("failed to queue tiles", "planetoid_id", req.PlanetoidID, "queued_jobs", queued, "error", err)
		}
		h.respondJson(w, code, api.ErrorResponse{
			Error:   msg,
			Code:    strconv.Itoa(code),
			Details: fmt.Sprintf("%v (queued_jobs=%d)", err, queued),
		})
		return
	}

	h.log(r).Info("tiles queued", "planetoid_id", req.PlanetoidID, "tiles", len(addrs), "queued_jobs", queued, "connection_id", connectionID)
	h.respondJson(w, http.StatusAccepted, api.GenerateTilesResponse{ConnectionID: connectionID, QueuedJobs: queued})
}

func generateErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidTile):
		return http.StatusBadRequest, "Invalid tile address"
	case errors.Is(err, scheduler.ErrNoAgents):
		return http.StatusConflict, "Planetoid has no agents"
	case errors.Is(err, agent.ErrUnknownAgent), errors.Is(err, agent.ErrInvalidSettings):
		return http.StatusUnprocessableEntity, "Agent configuration error"
	}
	return http.StatusInternalServerError, "Failed to queue tiles"
}

// GetTile handles GET /planetoids/{id}/tiles/{z}/{x}/{y}. Like the workers,
// it creates the tile state on first access.
func (h *Handlers) GetTile(w http.ResponseWriter, r *http.Request) {
	id, ok := planetoidID(r)
	if !ok {
		h.httpError(w, "Invalid planetoid ID", http.StatusBadRequest)
		return
	}
	z, errZ := strconv.ParseInt(r.PathValue("z"), 10, 16)
	x, errX := strconv.ParseInt(r.PathValue("x"), 10, 64)
	y, errY := strconv.ParseInt(r.PathValue("y"), 10, 64)
	if errZ != nil || errX != nil || errY != nil {
		h.httpError(w, "Invalid tile coordinates", http.StatusBadRequest)
		return
	}
	addr := tile.Address{PlanetoidID: id, Z: int16(z), X: x, Y: y}
	if !addr.Valid() {
		h.httpError(w, "Tile is outside the grid", http.StatusBadRequest)
		return
	}

	t, err := h.store.SelectTile(r.Context(), id, addr.Z, addr.X, addr.Y)
	if err != nil {
		h.log(r).Error("failed to select tile", "tile", addr.String(), "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.TileResponse{
		ID:               t.ID,
		PlanetoidID:      t.PlanetoidID,
		Z:                t.Z,
		X:                t.X,
		Y:                t.Y,
		LastAgent:        t.LastAgent,
		LastIndexedAgent: t.LastIndexedAgent,
		CreatedAt:        t.CreatedAt,
		ModifiedAt:       t.ModifiedAt,
	})
}
