// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// ConnectionHeader carries the requester's connection id. Generation
// requests are rate limited per value.
const ConnectionHeader = "X-Connection-ID"

// CreatePlanetoidRequest is the request body for creating a planetoid.
type CreatePlanetoidRequest struct {
	Title  string  `json:"title"`
	Seed   int64   `json:"seed"`
	Radius float64 `json:"radius"`
}

// PlanetoidResponse represents a planetoid in API responses.
type PlanetoidResponse struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Seed      int64     `json:"seed"`
	Radius    float64   `json:"radius"`
	CreatedAt time.Time `json:"created_at"`
}

// ListPlanetoidsResponse is the response body for listing planetoids.
type ListPlanetoidsResponse struct {
	Planetoids []PlanetoidResponse `json:"planetoids"`
}

// AgentRequest is one stage in a SetAgentsRequest. Stages are numbered by
// their position in the list.
type AgentRequest struct {
	Title             string `json:"title"`
	Settings          string `json:"settings,omitempty"`
	ShouldRerunIfLast bool   `json:"should_rerun_if_last,omitempty"`
}

// SetAgentsRequest replaces the pipeline of a planetoid.
type SetAgentsRequest struct {
	Agents []AgentRequest `json:"agents"`
}

// AgentResponse is one stage of a planetoid's pipeline.
type AgentResponse struct {
	IndexID           int    `json:"index_id"`
	Title             string `json:"title"`
	Settings          string `json:"settings,omitempty"`
	ShouldRerunIfLast bool   `json:"should_rerun_if_last"`
}

// AgentsResponse is the pipeline of a planetoid, ordered by IndexID.
type AgentsResponse struct {
	PlanetoidID int             `json:"planetoid_id"`
	Agents      []AgentResponse `json:"agents"`
}

// ClearAgentsResponse reports how many stages were removed.
type ClearAgentsResponse struct {
	Removed int64 `json:"removed"`
}

// AgentImplementation describes an agent the workers can run.
type AgentImplementation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AgentCatalogResponse lists the agent implementations known to the controller.
type AgentCatalogResponse struct {
	Agents []AgentImplementation `json:"agents"`
}

// TileRequest addresses a tile of the request's planetoid.
type TileRequest struct {
	Z int16 `json:"z"`
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// GenerateTilesRequest asks for tiles to be driven through the pipeline.
// A missing ConnectionID is taken from the X-Connection-ID header or generated.
type GenerateTilesRequest struct {
	PlanetoidID  int           `json:"planetoid_id"`
	ConnectionID string        `json:"connection_id,omitempty"`
	Tiles        []TileRequest `json:"tiles"`
}

// GenerateTilesResponse reports what was queued.
type GenerateTilesResponse struct {
	ConnectionID string `json:"connection_id"`
	QueuedJobs   int    `json:"queued_jobs"`
}

// TileResponse is the pipeline progress of a tile.
type TileResponse struct {
	ID               string     `json:"id"`
	PlanetoidID      int        `json:"planetoid_id"`
	Z                int16      `json:"z"`
	X                int64      `json:"x"`
	Y                int64      `json:"y"`
	LastAgent        *int       `json:"last_agent"`
	LastIndexedAgent int        `json:"last_indexed_agent"`
	CreatedAt        time.Time  `json:"created_at"`
	ModifiedAt       *time.Time `json:"modified_at,omitempty"`
}

// TopicsResponse lists broker topics.
type TopicsResponse struct {
	Topics []string `json:"topics"`
}

// DeleteTopicsRequest names the topics to delete. An empty list deletes all.
type DeleteTopicsRequest struct {
	Topics []string `json:"topics"`
}

// TileReport is posted for a tile that went through its reporting stage.
type TileReport struct {
	JobID       string    `json:"job_id"`
	PlanetoidID int       `json:"planetoid_id"`
	Z           int16     `json:"z"`
	X           int64     `json:"x"`
	Y           int64     `json:"y"`
	AgentIndex  int       `json:"agent_index"`
	ReportedAt  time.Time `json:"reported_at"`
}

// ReportEntry is a stored report.
type ReportEntry struct {
	ID        int64           `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReportsResponse holds the drained reports of a connection, oldest first.
type ReportsResponse struct {
	ConnectionID string        `json:"connection_id"`
	Reports      []ReportEntry `json:"reports"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
