package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"planetoidgen/pkg/api"
)

// Client handles API calls to the planetoidgen controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and admin token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends body as JSON and decodes a successful response into out. Any 2xx
// status is success.
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage prefers the structured error of the body over the raw text.
func errorMessage(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		if e.Details != "" {
			return e.Error + ": " + e.Details
		}
		return e.Error
	}
	return string(bytes.TrimSpace(body))
}

// CreatePlanetoid sends POST /planetoids.
func (c *Client) CreatePlanetoid(req api.CreatePlanetoidRequest) (*api.PlanetoidResponse, error) {
	var result api.PlanetoidResponse
	if err := c.do(http.MethodPost, "/planetoids", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPlanetoids sends GET /planetoids.
func (c *Client) ListPlanetoids() ([]api.PlanetoidResponse, error) {
	var result api.ListPlanetoidsResponse
	if err := c.do(http.MethodGet, "/planetoids", nil, &result); err != nil {
		return nil, err
	}
	return result.Planetoids, nil
}

// GetAgents sends GET /planetoids/{id}/agents.
func (c *Client) GetAgents(planetoidID int) (*api.AgentsResponse, error) {
	var result api.AgentsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/planetoids/%d/agents", planetoidID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAgents sends PUT /planetoids/{id}/agents, replacing the pipeline.
func (c *Client) SetAgents(planetoidID int, req api.SetAgentsRequest) (*api.AgentsResponse, error) {
	var result api.AgentsResponse
	if err := c.do(http.MethodPut, fmt.Sprintf("/planetoids/%d/agents", planetoidID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearAgents sends DELETE /planetoids/{id}/agents.
func (c *Client) ClearAgents(planetoidID int) (int64, error) {
	var result api.ClearAgentsResponse
	if err := c.do(http.MethodDelete, fmt.Sprintf("/planetoids/%d/agents", planetoidID), nil, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// ListAgentImplementations sends GET /agents.
func (c *Client) ListAgentImplementations() ([]api.AgentImplementation, error) {
	var result api.AgentCatalogResponse
	if err := c.do(http.MethodGet, "/agents", nil, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// GenerateTiles sends POST /tiles/generate.
func (c *Client) GenerateTiles(req api.GenerateTilesRequest) (*api.GenerateTilesResponse, error) {
	var result api.GenerateTilesResponse
	if err := c.do(http.MethodPost, "/tiles/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTile sends GET /planetoids/{id}/tiles/{z}/{x}/{y}.
func (c *Client) GetTile(planetoidID int, z int16, x, y int64) (*api.TileResponse, error) {
	var result api.TileResponse
	path := fmt.Sprintf("/planetoids/%d/tiles/%d/%d/%d", planetoidID, z, x, y)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTopics sends GET /topics.
func (c *Client) ListTopics() ([]string, error) {
	var result api.TopicsResponse
	if err := c.do(http.MethodGet, "/topics", nil, &result); err != nil {
		return nil, err
	}
	return result.Topics, nil
}

// DeleteTopics sends DELETE /topics. No names deletes every topic.
func (c *Client) DeleteTopics(names []string) ([]string, error) {
	var result api.TopicsResponse
	if err := c.do(http.MethodDelete, "/topics", api.DeleteTopicsRequest{Topics: names}, &result); err != nil {
		return nil, err
	}
	return result.Topics, nil
}

// ResetAgentTopics sends POST /topics/agents/reset.
func (c *Client) ResetAgentTopics() ([]string, error) {
	var result api.TopicsResponse
	if err := c.do(http.MethodPost, "/topics/agents/reset", nil, &result); err != nil {
		return nil, err
	}
	return result.Topics, nil
}

// DrainReports sends GET /connections/{id}/reports.
func (c *Client) DrainReports(connectionID string) ([]api.ReportEntry, error) {
	var result api.ReportsResponse
	if err := c.do(http.MethodGet, "/connections/"+url.PathEscape(connectionID)+"/reports", nil, &result); err != nil {
		return nil, err
	}
	return result.Reports, nil
}
