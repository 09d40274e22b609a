package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"planetoidgen/internal/store"
	"planetoidgen/pkg/api"
)

// GetAgents handles GET /planetoids/{id}/agents.
func (h *Handlers) GetAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := planetoidID(r)
	if !ok {
		h.httpError(w, "Invalid planetoid ID", http.StatusBadRequest)
		return
	}

	agents, err := h.store.GetAgents(r.Context(), id)
	if err != nil {
		h.log(r).Error("failed to get agents", "planetoid_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, toAgentsResponse(id, agents))
}

// SetAgents handles PUT /planetoids/{id}/agents. The body replaces the whole
// pipeline; stages are numbered by list position.
func (h *Handlers) SetAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := planetoidID(r)
	if !ok {
		h.httpError(w, "Invalid planetoid ID", http.StatusBadRequest)
		return
	}

	var req api.SetAgentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Agents) == 0 {
		h.httpError(w, "At least one agent is required", http.StatusBadRequest)
		return
	}

	known := h.catalog.Describe()
	infos := make([]store.AgentInfo, len(req.Agents))
	for i, a := range req.Agents {
		if _, ok := known[a.Title]; !ok {
			h.httpError(w, fmt.Sprintf("Unknown agent %q at index %d", a.Title, i), http.StatusBadRequest)
			return
		}
		infos[i] = store.AgentInfo{Title: a.Title, Settings: a.Settings, ShouldRerunIfLast: a.ShouldRerunIfLast}
	}

	if _, err := h.store.GetPlanetoid(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Planetoid not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to get planetoid", "planetoid_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	saved, err := h.store.SetAgents(ctx, id, infos)
	if err != nil {
		h.log(r).Error("failed to set agents", "planetoid_id", id, "error", err)
		h.httpError(w, "Failed to set agents", http.StatusInternalServerError)
		return
	}
	h.log(r).Info("agents replaced", "planetoid_id", id, "count", len(saved))
	h.respondJson(w, http.StatusOK, toAgentsResponse(id, saved))
}

// ClearAgents handles DELETE /planetoids/{id}/agents.
func (h *Handlers) ClearAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := planetoidID(r)
	if !ok {
		h.httpError(w, "Invalid planetoid ID", http.StatusBadRequest)
		return
	}

	n, err := h.store.ClearAgents(r.Context(), id)
	if err != nil {
		h.log(r).Error("failed to clear agents", "planetoid_id", id, "error", err)
		h.httpError(w, "Failed to clear agents", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.ClearAgentsResponse{Removed: n})
}

// ListAgentImplementations handles GET /agents.
func (h *Handlers) ListAgentImplementations(w http.ResponseWriter, r *http.Request) {
	described := h.catalog.Describe()
	resp := api.AgentCatalogResponse{Agents: make([]api.AgentImplementation, 0, len(described))}
	for title, desc := range described {
		resp.Agents = append(resp.Agents, api.AgentImplementation{Title: title, Description: desc})
	}
	sort.Slice(resp.Agents, func(i, j int) bool { return resp.Agents[i].Title < resp.Agents[j].Title })
	h.respondJson(w, http.StatusOK, resp)
}

func toAgentsResponse(planetoidID int, agents []store.AgentInfo) api.AgentsResponse {
	resp := api.AgentsResponse{PlanetoidID: planetoidID, Agents: make([]api.AgentResponse, 0, len(agents))}
	for _, a := range agents {
		resp.Agents = append(resp.Agents, api.AgentResponse{
			IndexID:           a.IndexID,
			Title:             a.Title,
			Settings:          a.Settings,
			ShouldRerunIfLast: a.ShouldRerunIfLast,
		})
	}
	return resp
}
