package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"planetoidgen/internal/store"
	"planetoidgen/pkg/api"
)

func toPlanetoidResponse(p store.Planetoid) api.PlanetoidResponse {
	return api.PlanetoidResponse{ID: p.ID, Title: p.Title, Seed: p.Seed, Radius: p.Radius, CreatedAt: p.CreatedAt}
}

// CreatePlanetoid handles POST /planetoids.
func (h *Handlers) CreatePlanetoid(w http.ResponseWriter, r *http.Request) {
	var req api.CreatePlanetoidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.httpError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.Radius <= 0 {
		h.httpError(w, "Radius must be positive", http.StatusBadRequest)
		return
	}

	p := &store.Planetoid{Title: req.Title, Seed: req.Seed, Radius: req.Radius}
	if _, err := h.store.CreatePlanetoid(r.Context(), p); err != nil {
		h.log(r).Error("failed to create planetoid", "error", err)
		h.httpError(w, "Failed to create planetoid", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusCreated, toPlanetoidResponse(*p))
}

// GetPlanetoid handles GET /planetoids/{id}.
func (h *Handlers) GetPlanetoid(w http.ResponseWriter, r *http.Request) {
	id, ok := planetoidID(r)
	if !ok {
		h.httpError(w, "Invalid planetoid ID", http.StatusBadRequest)
		return
	}

	p, err := h.store.GetPlanetoid(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Planetoid not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log(r).Error("failed to get planetoid", "planetoid_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, toPlanetoidResponse(*p))
}

// ListPlanetoids handles GET /planetoids.
func (h *Handlers) ListPlanetoids(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListPlanetoids(r.Context())
	if err != nil {
		h.log(r).Error("failed to list planetoids", "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	resp := api.ListPlanetoidsResponse{Planetoids: make([]api.PlanetoidResponse, 0, len(list))}
	for _, p := range list {
		resp.Planetoids = append(resp.Planetoids, toPlanetoidResponse(p))
	}
	h.respondJson(w, http.StatusOK, resp)
}
