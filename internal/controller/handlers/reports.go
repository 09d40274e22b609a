package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"planetoidgen/internal/messaging"
	"planetoidgen/pkg/api"
)

// InternalReport handles POST /internal/data/report, called by the reporting
// agent with the job of a finished tile. Jobs without a connection are
// acknowledged and dropped.
func (h *Handlers) InternalReport(w http.ResponseWriter, r *http.Request) {
	var job messaging.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if job.ConnectionID == "" {
		h.log(r).Debug("report without connection dropped", "job", job.String())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	payload, err := json.Marshal(api.TileReport{
		JobID:       job.ID,
		PlanetoidID: job.PlanetoidID,
		Z:           job.Z,
		X:           job.X,
		Y:           job.Y,
		AgentIndex:  job.AgentIndex,
		ReportedAt:  time.Now().UTC(),
	})
	if err != nil {
		h.httpError(w, "Failed to encode report", http.StatusInternalServerError)
		return
	}

	if err := h.store.SaveReport(r.Context(), job.ConnectionID, payload); err != nil {
		h.log(r).Error("failed to save report", "connection_id", job.ConnectionID, "error", err)
		h.httpError(w, "Failed to save report", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DrainReports handles GET /connections/{id}/reports. Returned reports are
// removed.
func (h *Handlers) DrainReports(w http.ResponseWriter, r *http.Request) {
	connectionID := strings.TrimSpace(r.PathValue("id"))
	if connectionID == "" {
		h.httpError(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	reports, err := h.store.DrainReports(r.Context(), connectionID)
	if err != nil {
		h.log(r).Error("failed to drain reports", "connection_id", connectionID, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	resp := api.ReportsResponse{ConnectionID: connectionID, Reports: make([]api.ReportEntry, 0, len(reports))}
	for _, rep := range reports {
		resp.Reports = append(resp.Reports, api.ReportEntry{ID: rep.ID, Payload: rep.Payload, CreatedAt: rep.CreatedAt})
	}
	h.respondJson(w, http.StatusOK, resp)
}
