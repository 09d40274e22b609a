package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"planetoidgen/internal/agent/builtin"
	"planetoidgen/internal/store"
	"planetoidgen/internal/store/memory"
	"planetoidgen/internal/tile"
)

// mockStore serves from an in-memory store unless an error hook is set.
type mockStore struct {
	*memory.Store

	pingErr       error
	getAgentsErr  error
	setAgentsErr  error
	selectTileErr error
	saveReportErr error
	drainErr      error
}

func newMockStore() *mockStore {
	return &mockStore{Store: memory.New()}
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) GetAgents(ctx context.Context, planetoidID int) ([]store.AgentInfo, error) {
	if m.getAgentsErr != nil {
		return nil, m.getAgentsErr
	}
	return m.Store.GetAgents(ctx, planetoidID)
}

func (m *mockStore) SetAgents(ctx context.Context, planetoidID int, agents []store.AgentInfo) ([]store.AgentInfo, error) {
	if m.setAgentsErr != nil {
		return nil, m.setAgentsErr
	}
	return m.Store.SetAgents(ctx, planetoidID, agents)
}

func (m *mockStore) SelectTile(ctx context.Context, planetoidID int, z int16, x, y int64) (*store.Tile, error) {
	if m.selectTileErr != nil {
		return nil, m.selectTileErr
	}
	return m.Store.SelectTile(ctx, planetoidID, z, x, y)
}

func (m *mockStore) SaveReport(ctx context.Context, connectionID string, payload json.RawMessage) error {
	if m.saveReportErr != nil {
		return m.saveReportErr
	}
	return m.Store.SaveReport(ctx, connectionID, payload)
}

func (m *mockStore) DrainReports(ctx context.Context, connectionID string) ([]store.Report, error) {
	if m.drainErr != nil {
		return nil, m.drainErr
	}
	return m.Store.DrainReports(ctx, connectionID)
}

type mockScheduler struct {
	queued int
	err    error

	// Spies
	capturedTiles        []tile.Address
	capturedConnectionID string
}

func (m *mockScheduler) QueueTiles(ctx context.Context, tiles []tile.Address, connectionID string) (int, error) {
	m.capturedTiles = tiles
	m.capturedConnectionID = connectionID
	return m.queued, m.err
}

type mockTopics struct {
	topics  []string
	err     error
	deleted []string

	calledDeleteAll bool
	calledReset     bool
}

func (m *mockTopics) GetAllTopics(ctx context.Context) ([]string, error) {
	return m.topics, m.err
}

func (m *mockTopics) DeleteTopics(ctx context.Context, names []string) ([]string, error) {
	m.deleted = names
	return names, m.err
}

func (m *mockTopics) DeleteAllTopics(ctx context.Context) ([]string, error) {
	m.calledDeleteAll = true
	return m.topics, m.err
}

func (m *mockTopics) ResetAgentTopics(ctx context.Context) ([]string, error) {
	m.calledReset = true
	return m.topics, m.err
}

type fixture struct {
	store     *mockStore
	scheduler *mockScheduler
	topics    *mockTopics
	h         *Handlers
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMockStore(),
		scheduler: &mockScheduler{},
		topics:    &mockTopics{},
	}
	f.h = New(f.store, f.scheduler, f.topics, builtin.NewRegistry(), nil)
	return f
}

// request builds a request with a JSON body and path values given as
// name/value pairs.
func request(method, target string, body any, pathValues ...string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}
