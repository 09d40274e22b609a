package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"planetoidgen/pkg/api"
)

// ListTopics handles GET /topics.
func (h *Handlers) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.GetAllTopics(r.Context())
	if err != nil {
		h.log(r).Error("failed to list topics", "error", err)
		h.httpError(w, "Broker unavailable", http.StatusBadGateway)
		return
	}
	h.respondJson(w, http.StatusOK, api.TopicsResponse{Topics: nonNil(topics)})
}

// DeleteTopics handles DELETE /topics. Without a body, or with an empty list,
// every topic on the broker is deleted.
func (h *Handlers) DeleteTopics(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteTopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		deleted []string
		err     error
	)
	if len(req.Topics) == 0 {
		deleted, err = h.topics.DeleteAllTopics(r.Context())
	} else {
		deleted, err = h.topics.DeleteTopics(r.Context(), req.Topics)
	}
	if err != nil {
		h.log(r).Error("failed to delete topics", "error", err)
		h.httpError(w, "Failed to delete topics", http.StatusBadGateway)
		return
	}
	h.log(r).Warn("topics deleted", "topics", deleted)
	h.respondJson(w, http.StatusOK, api.TopicsResponse{Topics: nonNil(deleted)})
}

// ResetAgentTopics handles POST /topics/agents/reset. It drops every stage
// topic and recreates stage 0; queued jobs are lost.
func (h *Handlers) ResetAgentTopics(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.topics.ResetAgentTopics(r.Context())
	if err != nil {
		h.log(r).Error("failed to reset agent topics", "error", err)
		h.httpError(w, "Failed to reset agent topics", http.StatusBadGateway)
		return
	}
	h.log(r).Warn("agent topics reset", "deleted", deleted)
	h.respondJson(w, http.StatusOK, api.TopicsResponse{Topics: nonNil(deleted)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
